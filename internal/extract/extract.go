// Package extract detects and unpacks the compressed archives a
// downloaded collection produced (spec §4.5 UNPACKING stage), merged from
// the teacher's internal/processor/{detector,unrar,fs}.go and
// internal/extraction/{7z,unzip,extraction}.go into a single package.
package extract

import (
	"context"
	"fmt"
	"strings"
)

// Extractor handles one archive format.
type Extractor interface {
	// Extract unpacks archivePath into destDir. The returned slice is
	// for the paths of files written; the CLI-backed extractors in this
	// package (unrar, 7z, unzip) always return an empty slice.
	Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error)

	// CanExtract reports whether this extractor owns filePath, verified
	// by extension plus magic-byte signature.
	CanExtract(filePath string) (bool, error)

	// Name is the human-readable format label shown in history/logs.
	Name() string
}

// Manager owns every extractor whose backing CLI binary was found on
// PATH at startup, grounded on processor/detector.go's Manager.
type Manager struct {
	extractors []Extractor
}

// NewManager probes for unrar/7z/unzip and registers whichever are
// available; a missing binary only drops that one format, not the whole
// manager (spec §4.5: unpack failure mode is per-archive, not fatal to
// the daemon).
func NewManager() *Manager {
	m := &Manager{}
	if e, err := NewCLIUnrar(); err == nil {
		m.extractors = append(m.extractors, e)
	}
	if e, err := NewCLI7z(); err == nil {
		m.extractors = append(m.extractors, e)
	}
	if e, err := NewCLIUnzip(); err == nil {
		m.extractors = append(m.extractors, e)
	}
	return m
}

// Available lists the names of the registered extractors.
func (m *Manager) Available() []string {
	names := make([]string, len(m.extractors))
	for i, e := range m.extractors {
		names[i] = e.Name()
	}
	return names
}

// HasExtractors reports whether any backing binary was found.
func (m *Manager) HasExtractors() bool {
	return len(m.extractors) > 0
}

// Detect scans filePaths (a collection's final file paths) and returns,
// for each archive found, the extractor that claims it. Non-archive
// files and non-first RAR parts are silently skipped.
func (m *Manager) Detect(filePaths []string) (map[string]Extractor, error) {
	found := make(map[string]Extractor)
	for _, path := range filePaths {
		for _, e := range m.extractors {
			ok, err := e.CanExtract(path)
			if err != nil {
				return nil, fmt.Errorf("extract: %s: %w", e.Name(), err)
			}
			if ok {
				found[path] = e
				break
			}
		}
	}
	return found, nil
}

// Extract runs the matched extractor against archivePath, returning
// ErrNoExtractorAvailable if archivePath's format has no registered
// handler (e.g. the CLI binary wasn't found at startup).
func (m *Manager) Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error) {
	for _, e := range m.extractors {
		ok, err := e.CanExtract(archivePath)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.Extract(ctx, archivePath, destDir, password)
		}
	}
	return nil, fmt.Errorf("extract: %s: %w", archivePath, ErrNoExtractorAvailable)
}

// ErrNoExtractorAvailable is returned when no registered extractor
// claims an archive, used by the caller to set UnpackStatus=failure
// with a descriptive cause.
var ErrNoExtractorAvailable = errNoExtractor{}

type errNoExtractor struct{}

func (errNoExtractor) Error() string { return "no extractor available for this archive format" }

// isFirstRarPart reports whether name is either a non-multipart RAR file
// or the first part of one (spec §4.5: only the first part of a
// multi-volume RAR set is ever handed to the CLI, which follows the
// .rNN/.partNN chain itself).
func isFirstRarPart(name string) bool {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, ".part") {
		return true
	}
	return strings.Contains(lower, ".part01.rar") ||
		strings.Contains(lower, ".part001.rar") ||
		strings.Contains(lower, ".part1.rar")
}
