package nzbfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleNZB = `<?xml version="1.0" encoding="iso-8859-1"?>
<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<head>
<meta type="category">TV</meta>
</head>
<file poster="poster@example.com" date="1000000000" subject="&quot;show.s01e01.mkv&quot; yEnc (1/2)">
<groups>
<group>alt.binaries.tv</group>
</groups>
<segments>
<segment bytes="1000" number="2">msg2@example.com</segment>
<segment bytes="1000" number="1">msg1@example.com</segment>
</segments>
</file>
</nzb>
`

func TestParseOrdersSegmentsByNumber(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleNZB))
	require.NoError(t, err)
	require.Len(t, p.Files, 1)
	require.Len(t, p.Files[0].Segments, 2)
	require.Equal(t, 1, p.Files[0].Segments[0].Number)
	require.Equal(t, "msg1@example.com", p.Files[0].Segments[0].MessageID)
	require.Equal(t, 2, p.Files[0].Segments[1].Number)
}

func TestToCollectionBuildsFiles(t *testing.T) {
	p, err := Parse(strings.NewReader(sampleNZB))
	require.NoError(t, err)

	c := ToCollection(p, "show.s01e01", "show.nzb", "/downloads/show", "TV", 0)
	require.Len(t, c.Files, 1)
	require.Equal(t, int64(2000), c.TotalBytes)
	require.Equal(t, int64(2000), c.RemainingSize)
}

func TestSubjectGuessPrefersQuotedSegment(t *testing.T) {
	got := subjectGuess(`"show.s01e01.mkv" yEnc (1/2)`)
	require.Equal(t, "show.s01e01.mkv", got)
}

func TestCategoryNameFallsBackToOther(t *testing.T) {
	require.Equal(t, "TV", CategoryName("5000"))
	require.Equal(t, "Other", CategoryName("9999"))
}
