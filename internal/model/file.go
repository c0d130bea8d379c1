package model

import (
	"strings"
	"time"
)

// isParFile identifies a posted file as a par-recovery volume by
// filename, grounded on the teacher's domain.DownloadFile.IsPars check:
// a case-insensitive ".par2" suffix, which covers both main pars and
// volNNN+MM.par2 volumes.
func isParFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".par2")
}

// File is one posted Usenet file within a Collection (spec §3).
type File struct {
	ID                int64
	CollectionID      string
	Index             int
	Subject           string
	Filename          string
	FilenameConfirmed bool
	Size              int64
	RemainingSize     int64
	Paused            bool
	Deleted           bool
	ActiveDownloads   int
	Groups            []string
	Progress          time.Time
	IsParFile         bool

	PartPath  string
	FinalPath string

	Articles []*Article
}

// NewFile constructs a File from its NZB-declared segments. Remaining size
// starts at the declared size when it is positive; otherwise Size and
// RemainingSize are both set to the sum of article sizes.
func NewFile(collectionID string, index int, subject, filename string, size int64, groups []string, segments []Segment) *File {
	f := &File{
		CollectionID: collectionID,
		Index:        index,
		Subject:      subject,
		Filename:     filename,
		Size:         size,
		Groups:       groups,
		IsParFile:    isParFile(filename),
	}
	f.Articles = make([]*Article, len(segments))
	var total int64
	for i, seg := range segments {
		f.Articles[i] = NewArticle(i, seg.MessageID, seg.Bytes)
		total += seg.Bytes
	}
	if size > 0 {
		f.RemainingSize = size
	} else {
		f.RemainingSize = total
		f.Size = total
	}
	return f
}

// Segment is the NZB-declared shape of one article before it becomes a
// live model.Article (distinguishing "what the NZB said" from "what we
// are tracking" keeps nzbfile decoupled from the queue's mutable state).
type Segment struct {
	Number    int
	Bytes     int64
	MessageID string
}

// IsComplete reports whether the file has no remaining bytes to fetch.
// Spec §8 boundary behavior: zero articles in a file completes it
// immediately with remaining_size=0, which this formula already satisfies.
func (f *File) IsComplete() bool {
	return f.RemainingSize <= 0
}

// IsFullyFailed reports whether every article in the file has reached a
// terminal failed state with none still pending/running.
func (f *File) IsFullyFailed() bool {
	if len(f.Articles) == 0 {
		return false
	}
	for _, a := range f.Articles {
		if a.Status != ArticleFailed {
			return false
		}
	}
	return true
}

// ConfirmFilename updates the decoded filename once a real one is parsed
// from an article's yEnc header, per spec §3 "confirmed from article
// headers once one arrives".
func (f *File) ConfirmFilename(name string) {
	if f.FilenameConfirmed || name == "" {
		return
	}
	f.Filename = name
	f.FilenameConfirmed = true
	f.IsParFile = isParFile(name)
}
