package nzbfile

import (
	"html"
	"regexp"
	"strings"
)

var (
	reYenc     = regexp.MustCompile(`(?i)\s+yenc.*$`)
	reLeadCtr  = regexp.MustCompile(`^\[\d+/\d+\]\s+`)
	reBadChars = regexp.MustCompile(`[\\/:*?"<>|]`)
)

// subjectGuess derives a filename from a posted article subject when the
// NZB itself carries no explicit filename attribute. Grounded on the
// teacher's processor.sanitizeFileName: prefer the double-quoted segment
// convention most posters use, else strip the yEnc/counter metadata
// convention as a fallback.
func subjectGuess(subject string) string {
	res := html.UnescapeString(subject)

	first := strings.Index(res, `"`)
	last := strings.LastIndex(res, `"`)
	if first != -1 && last != -1 && first < last {
		res = res[first+1 : last]
	} else {
		res = reYenc.ReplaceAllString(res, "")
		res = reLeadCtr.ReplaceAllString(res, "")
	}

	res = reBadChars.ReplaceAllString(res, "_")
	return strings.TrimSpace(res)
}
