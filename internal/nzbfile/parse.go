// Package nzbfile parses NZB documents and converts them into the
// model's Collection/File/Segment shape the queue coordinator ingests.
package nzbfile

import (
	"fmt"
	"io"
	"sort"

	"github.com/javi11/nzbparser"

	"github.com/nzbcore/nzbcore/internal/model"
)

// Parsed is the decoded NZB, already converted away from nzbparser's wire
// shape into the types the rest of the pipeline understands.
type Parsed struct {
	Meta     map[string]string
	Files    []ParsedFile
	Category string
}

// ParsedFile is one posted file within a Parsed NZB.
type ParsedFile struct {
	Subject  string
	Filename string
	Poster   string
	Groups   []string
	Size     int64
	Segments []model.Segment
}

// Parse reads an NZB document from r and returns it ready for
// queue.Coordinator.AddNZB. File order follows the NZB's own <file>
// ordering (spec §3 "an ordered list of Files"); segments within a file
// are sorted by their declared number since posters do not guarantee wire
// order.
func Parse(r io.Reader) (*Parsed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading nzb: %w", err)
	}

	doc, err := nzbparser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing nzb: %w", err)
	}

	out := &Parsed{Meta: doc.Meta}
	if cat, ok := doc.Meta["category"]; ok {
		out.Category = cat
	}

	for _, nf := range doc.Files {
		pf := ParsedFile{
			Subject:  nf.Subject,
			Filename: nf.Filename,
			Poster:   nf.Poster,
			Groups:   nf.Groups,
			Size:     nf.Bytes,
		}
		pf.Segments = make([]model.Segment, 0, len(nf.Segments))
		for _, seg := range nf.Segments {
			pf.Segments = append(pf.Segments, model.Segment{
				Number:    seg.Number,
				Bytes:     int64(seg.Bytes),
				MessageID: seg.ID,
			})
		}
		sort.Slice(pf.Segments, func(i, j int) bool {
			return pf.Segments[i].Number < pf.Segments[j].Number
		})
		out.Files = append(out.Files, pf)
	}

	return out, nil
}

// ToCollection builds a queued Collection from a Parsed NZB. destDir and
// category are resolved by the caller (category config lookup happens in
// app.Facade.AddNZBFile); priority is taken as given.
func ToCollection(p *Parsed, name, nzbFilename, destDir, category string, priority int) *model.Collection {
	c := model.NewCollection(name, nzbFilename, destDir, category, priority)
	for i, pf := range p.Files {
		filename := pf.Filename
		if filename == "" {
			filename = subjectGuess(pf.Subject)
		}
		f := model.NewFile(c.ID, i, pf.Subject, filename, pf.Size, pf.Groups, pf.Segments)
		c.AddFile(f)
	}
	return c
}
