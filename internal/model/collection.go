package model

import "time"

// PostParams is the name→value set of post-processing parameters spec §3
// names; categories apply their defaults into this same map (§4.4
// set-category).
type PostParams map[string]string

// ServerStat is a collection's per-server byte contribution, used for
// debug dumps and history display.
type ServerStat struct {
	ServerID int
	Bytes    int64
}

// Collection is one user-visible NZB job (spec §3). It owns its Files
// exclusively; all other components reach a File only through the
// queue's lookup by (collection id, file index) — never a stored pointer
// (§9 "Cyclic ownership").
type Collection struct {
	ID              string
	Name            string
	NZBFilename     string
	DestDir         string
	InterimDir      string
	Category        string
	Priority        int
	DupeKey         string
	DupeScore       int
	DupeMode        DupeMode

	TotalBytes    int64
	RemainingSize int64
	PausedSize    int64
	FailedSize    int64
	ParFailedSize int64

	TotalArticles  int64
	SuccessArticle int64
	FailedArticle  int64

	Health         int // per-mille
	CriticalHealth int // per-mille

	Params PostParams

	Files             []*File
	CompletedFilenames []string
	ServerStats       []ServerStat

	Paused          bool
	ActiveDownloads int

	Stage          CollectionStage
	ParStatus      StageStatus
	UnpackStatus   UnpackStatus
	MoveStatus     StageStatus
	ScriptStatus   StageStatus
	DeleteStatus   DeleteStatus
	MarkStatus     MarkStatus
	RenameStatus   StageStatus
	CleanupStatus  StageStatus
	// AvoidHistory marks a final-delete (spec §4.4 group-delete "final"
	// variant): the collection is removed outright and never recorded to
	// history, grounded on original_source's NZBInfo::SetAvoidHistory.
	AvoidHistory bool

	Password string

	CreatedAt time.Time
	StartedAt time.Time

	// generation is bumped on every structural mutation so editors and
	// the scheduler can detect "the queue changed under me" without a
	// second lock (the queue guard already serializes actual mutation;
	// this is only used for stale-snapshot detection in tests).
	generation uint64
}

// NewCollection builds a queued collection from parsed NZB files. Files
// are attached separately via AddFile so nzbfile stays decoupled from the
// live queue's id assignment.
func NewCollection(name, nzbFilename, destDir, category string, priority int) *Collection {
	return &Collection{
		ID:             NewCollectionID(),
		Name:           name,
		NZBFilename:    nzbFilename,
		DestDir:        destDir,
		Category:       category,
		Priority:       priority,
		DupeMode:       DupeModeScore,
		Params:         make(PostParams),
		Stage:          StageQueued,
		ParStatus:      StageNone,
		UnpackStatus:   UnpackNone,
		MoveStatus:     StageNone,
		ScriptStatus:   StageNone,
		DeleteStatus:   DeleteNone,
		MarkStatus:     MarkNone,
		RenameStatus:   StageNone,
		CleanupStatus:  StageNone,
		CriticalHealth: 1000, // §9 Open Question: no par files ⇒ any loss is critical
		CreatedAt:      time.Now(),
	}
}

// AddFile appends a file and folds its size into the collection's totals.
func (c *Collection) AddFile(f *File) {
	c.Files = append(c.Files, f)
	c.TotalBytes += f.Size
	c.RemainingSize += f.RemainingSize
	c.TotalArticles += int64(len(f.Articles))
	c.generation++
}

// IsPaused implements §9's Open Question resolution: pause-download and
// pause-download2 are independent booleans OR'd together. This module
// keeps a single Paused flag, so IsPaused simply reports it; there is no
// second pause flag to combine.
func (c *Collection) IsPaused() bool {
	return c.Paused
}

// RecalculateRemaining restores the invariant Collection.remaining_size =
// Σ File.remaining_size over non-deleted files (spec §3, §8 first
// invariant). Called after any file-level mutation whose effect on the
// aggregate isn't tracked incrementally (e.g. after an edit).
func (c *Collection) RecalculateRemaining() {
	var remaining int64
	for _, f := range c.Files {
		if f.Deleted {
			continue
		}
		remaining += f.RemainingSize
	}
	c.RemainingSize = remaining
	c.generation++
}

// AllFilesTerminal reports whether every non-deleted file has either
// completed or fully failed — the gate for "ready to enter
// post-processing" (spec §4.3 step 4, §8 invariant about post-process
// entry).
func (c *Collection) AllFilesTerminal() bool {
	for _, f := range c.Files {
		if f.Deleted {
			continue
		}
		if !f.IsComplete() && !f.IsFullyFailed() {
			return false
		}
	}
	return true
}

// ComputeHealth derives the per-mille health used by the §4.5 health
// gate: health = 1000 * success_bytes / total_bytes.
func (c *Collection) ComputeHealth() int {
	if c.TotalBytes <= 0 {
		return 1000
	}
	success := c.TotalBytes - c.FailedSize
	if success < 0 {
		success = 0
	}
	h := int(1000 * success / c.TotalBytes)
	c.Health = h
	return h
}

// InPostProcess reports whether the collection has left QUEUED.
func (c *Collection) InPostProcess() bool {
	return c.Stage != StageQueued
}

func (c *Collection) Generation() uint64 { return c.generation }
func (c *Collection) Touch()             { c.generation++ }
