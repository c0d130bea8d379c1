// Package app wires the Usenet News-Server Pool (C1), Article Downloader
// (C2), Queue Coordinator (C3), Queue Editor (C4), Post-Processor (C5)
// and State Persistor (C6) into one runnable daemon — the seam
// cmd/nzbcored's main.go drives.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nzbcore/nzbcore/internal/config"
	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/editor"
	"github.com/nzbcore/nzbcore/internal/extract"
	"github.com/nzbcore/nzbcore/internal/logx"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
	"github.com/nzbcore/nzbcore/internal/nzbfile"
	"github.com/nzbcore/nzbcore/internal/persist"
	"github.com/nzbcore/nzbcore/internal/platform"
	"github.com/nzbcore/nzbcore/internal/postprocess"
	"github.com/nzbcore/nzbcore/internal/queue"
	"github.com/nzbcore/nzbcore/internal/repair"
)

func newRepairer() *repair.CLIPar2 {
	return repair.NewCLIPar2()
}

// Facade owns every component and the goroutines that tie them
// together. Exported methods are the surface cmd/nzbcored (and, in the
// future, any status/editor front-end) is expected to call.
type Facade struct {
	Config *config.Config
	Logger *logx.Logger

	Pool      *nntppool.Pool
	Queue     *queue.Coordinator
	Editor    *editor.Editor
	Process   *postprocess.Processor
	Store     *persist.Store
	Extractor *extract.Manager

	categories map[string]model.Category
}

// New builds every component named by cfg but does not start any
// goroutines yet — call Run to do that.
func New(cfg *config.Config) (*Facade, error) {
	logger, err := logx.New(cfg.Log.ToModel())
	if err != nil {
		return nil, fmt.Errorf("app: build logger: %w", err)
	}

	missingOptional, err := platform.ValidateDependencies()
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	for _, bin := range missingOptional {
		logger.Warn("app: optional dependency %q not found in PATH, its archive format will be unavailable", bin)
	}

	store, err := persist.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("app: open persistence store: %w", err)
	}

	pool := nntppool.New(cfg.ServerModels(), logger)

	directWriter := downloader.NewDirectWriter()
	cacheMB := 0
	cache := downloader.NewArticleCache(cacheMB, directWriter)
	writerFor := func(*model.File) downloader.Writer { return directWriter }

	q := queue.New(pool, cache, writerFor, logger, cfg.Queue.ToModel())

	categories := cfg.CategoryModels()
	ed := editor.New(q, store, categories)

	extractor := extract.NewManager()
	repairer := newRepairer()
	proc := postprocess.New(q, repairer, extractor, store, logger, cfg.PostProc.ToModel())

	return &Facade{
		Config:     cfg,
		Logger:     logger,
		Pool:       pool,
		Queue:      q,
		Editor:     ed,
		Process:    proc,
		Store:      store,
		Extractor:  extractor,
		categories: categories,
	}, nil
}

// Run reconciles any collections a prior crash left on disk, then starts
// the queue scheduler and post-processor and blocks until ctx is
// cancelled, periodically snapshotting the live queue to disk for the
// next crash-recovery pass (spec §4.6).
func (f *Facade) Run(ctx context.Context) error {
	if err := f.Store.Reconcile(f.Queue); err != nil {
		return fmt.Errorf("app: reconcile persisted collections: %w", err)
	}

	done := make(chan struct{})
	go func() {
		f.Queue.Run(ctx)
		close(done)
	}()
	go f.Process.Run(ctx)
	go f.syncLoop(ctx)

	if f.Config.WatchDir != "" {
		go f.watchDir(ctx, f.Config.WatchDir)
	}

	<-done
	return nil
}

// Close releases the logger and persistence store. Call once Run
// returns.
func (f *Facade) Close() {
	if err := f.Store.Sync(f.Queue); err != nil {
		f.Logger.Error("app: final sync failed: %v", err)
	}
	f.Store.Close()
	f.Logger.Close()
}

// AddNZBFile reads, parses and queues one .nzb document from disk,
// applying cat's defaults if the named category is configured. This is
// the entry point both the watch-directory scan and the cmd/nzbcored
// "add" command call.
func (f *Facade) AddNZBFile(path, category string, priority int) (*model.Collection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("app: open nzb %s: %w", path, err)
	}
	defer file.Close()

	parsed, err := nzbfile.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("app: parse nzb %s: %w", path, err)
	}
	if category == "" {
		category = parsed.Category
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	destDir := f.Config.Download.OutDir
	if cat, ok := f.categories[category]; ok && cat.DestDir != "" {
		destDir = cat.DestDir
	}

	col := nzbfile.ToCollection(parsed, name, path, destDir, category, priority)
	col.InterimDir = f.Config.Download.InterimDir
	if cat, ok := f.categories[category]; ok {
		cat.ApplyDefaults(col)
	}

	ok, reason := f.Queue.AddNZB(col)
	if !ok {
		return nil, fmt.Errorf("app: %s rejected: %s", path, reason)
	}
	return col, nil
}
