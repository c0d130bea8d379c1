package model

import "errors"

// Sentinel errors shared across the pipeline. Each one carries a single,
// well-known origin so the post-processor and coordinator can classify a
// failure without string matching.
var (
	// ErrServerBusy means every connection slot on a server (at the
	// requested level/group) is already checked out.
	ErrServerBusy = errors.New("all connections busy")

	// ErrArticleNotFound means the server returned 430 for a message-id.
	ErrArticleNotFound = errors.New("article not found")

	// ErrServerBlocked means the server is in its back-off window after
	// repeated connection failures.
	ErrServerBlocked = errors.New("server temporarily blocked")

	// ErrCRCMismatch means a decoded article's CRC32 did not match the
	// yEnc trailer.
	ErrCRCMismatch = errors.New("yenc crc mismatch")

	// ErrDiskFull means a write failed because the configured disk-space
	// floor was breached.
	ErrDiskFull = errors.New("insufficient disk space")

	// ErrNotFound is returned by persistence lookups for a missing id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means an edit action was requested against a
	// collection in a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid state transition")
)
