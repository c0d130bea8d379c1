package model

import "time"

// HistoryEntry is a terminal snapshot of a Collection after completion or
// deletion (spec §3), or a compact dupe-info placeholder once detail is
// aged out by the keep-history policy.
type HistoryEntry struct {
	ID           string
	CollectionID string
	Name         string
	Category     string
	DupeKey      string
	DupeScore    int
	DupeMode     DupeMode
	// DupeBackup is the flag the editor's `set-dupe-backup` action sets;
	// it is stored and persisted, and no code in the module reads it back
	// (Redownload addresses history entries by id).
	DupeBackup bool

	Size          int64
	ParStatus     StageStatus
	UnpackStatus  UnpackStatus
	MoveStatus    StageStatus
	ScriptStatus  StageStatus
	DeleteStatus  DeleteStatus
	MarkStatus    MarkStatus

	NZBFilename string
	DestDir     string
	Params      PostParams

	// Compact carries true once the entry has been pruned down to a
	// dupe-info placeholder by the keep-history policy — only ID, Name,
	// DupeKey, DupeScore, DupeMode and DeleteStatus remain meaningful.
	Compact bool

	CompletedAt time.Time
}

// NewHistoryEntry snapshots a terminated collection. The snapshot is a
// value copy of every field History must preserve; it does not retain any
// reference back into the live queue arena.
func NewHistoryEntry(c *Collection) *HistoryEntry {
	return &HistoryEntry{
		ID:           NewHistoryDupeID(),
		CollectionID: c.ID,
		Name:         c.Name,
		Category:     c.Category,
		DupeKey:      c.DupeKey,
		DupeScore:    c.DupeScore,
		DupeMode:     c.DupeMode,
		Size:         c.TotalBytes,
		ParStatus:    c.ParStatus,
		UnpackStatus: c.UnpackStatus,
		MoveStatus:   c.MoveStatus,
		ScriptStatus: c.ScriptStatus,
		DeleteStatus: c.DeleteStatus,
		MarkStatus:   c.MarkStatus,
		NZBFilename:  c.NZBFilename,
		DestDir:      c.DestDir,
		Params:       c.Params,
		CompletedAt:  time.Now(),
	}
}

// Compactify prunes a history entry down to a dupe-info placeholder,
// per spec §3's "compact dupe-info placeholder after detail is aged out".
func (h *HistoryEntry) Compactify() {
	h.Compact = true
	h.NZBFilename = ""
	h.DestDir = ""
	h.Params = nil
}

// Succeeded reports whether this entry represents a clean completion,
// used by the duplicate-dominance check (spec §4.3).
func (h *HistoryEntry) Succeeded() bool {
	return h.DeleteStatus == DeleteNone &&
		h.ParStatus != StageFailure &&
		h.UnpackStatus != UnpackFailure &&
		h.UnpackStatus != UnpackPassword &&
		h.UnpackStatus != UnpackSpace
}
