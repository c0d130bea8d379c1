package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// persistSyncInterval governs how often the live queue is snapshotted to
// disk; spec §4.6 only requires "durable enough to resume after a
// crash", not per-mutation fsync, so a short ticker is enough to bound
// how much in-flight progress a crash can lose.
const persistSyncInterval = 5 * time.Second

func (f *Facade) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(persistSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Store.Sync(f.Queue); err != nil {
				f.Logger.Error("app: periodic sync failed: %v", err)
			}
		}
	}
}

// watchDirInterval bounds how quickly a dropped .nzb file is picked up.
const watchDirInterval = 2 * time.Second

// watchDir polls dir for new .nzb files and queues each one exactly
// once: the file is first moved into a "processed" subdirectory, so a
// restart doesn't re-ingest it, and then queued from its new path —
// grounded on the original's nzb-dir scan-and-move
// behavior (spec §6 "watch directory").
func (f *Facade) watchDir(ctx context.Context, dir string) {
	processedDir := filepath.Join(dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		f.Logger.Error("app: watch-dir: create processed dir: %v", err)
		return
	}

	ticker := time.NewTicker(watchDirInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.scanWatchDir(dir, processedDir)
		}
	}
}

func (f *Facade) scanWatchDir(dir, processedDir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		f.Logger.Error("app: watch-dir: read %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".nzb") {
			continue
		}
		src := filepath.Join(dir, e.Name())
		dst := filepath.Join(processedDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			f.Logger.Error("app: watch-dir: move %s to processed: %v", src, err)
			continue
		}
		if _, err := f.AddNZBFile(dst, "", 0); err != nil {
			f.Logger.Error("app: watch-dir: %v", err)
		}
	}
}
