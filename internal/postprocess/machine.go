package postprocess

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/nzbcore/nzbcore/internal/extract"
	"github.com/nzbcore/nzbcore/internal/logx"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/queue"
	"github.com/nzbcore/nzbcore/internal/repair"
)

// parRepairer is the slice of internal/repair.CLIPar2 the post-processor
// needs, kept as an interface so par2 verify/repair can be faked in
// tests instead of shelling out to a real binary.
type parRepairer interface {
	Verify(ctx context.Context, dir, parFile string, onProgress repair.ProgressFunc) (repair.Result, error)
	Repair(ctx context.Context, dir, parFile string, onProgress repair.ProgressFunc) (repair.Result, error)
}

// archiveExtractor is the slice of internal/extract.Manager the
// post-processor needs.
type archiveExtractor interface {
	HasExtractors() bool
	Detect(filePaths []string) (map[string]extract.Extractor, error)
	Extract(ctx context.Context, archivePath, destDir, password string) ([]string, error)
}

// HistoryWriter is the slice of the State Persistor (component C6) the
// post-processor needs once a collection reaches FINISHED: recording it
// to history and releasing its live queue slot. Kept as an interface so
// this package builds and tests before internal/persist exists, the same
// pattern internal/editor's HistoryStore uses.
type HistoryWriter interface {
	Add(col *model.Collection) error
}

// Processor consumes EventCollectionEnteredPostProcess notifications off
// the queue coordinator and drives each collection through the stage
// chain spec §4.5 names, grounded on PrePostProcessor's per-job
// StartJob/RunScript loop.
type Processor struct {
	queue     *queue.Coordinator
	repairer  parRepairer
	extractor archiveExtractor
	history   HistoryWriter
	logger    *logx.Logger
	cfg       Config
	pause     *pauseGate
}

// New builds a Processor. history may be nil during tests that don't
// care about the FINISHED hand-off.
func New(q *queue.Coordinator, repairer parRepairer, extractor archiveExtractor, history HistoryWriter, logger *logx.Logger, cfg Config) *Processor {
	p := &Processor{
		queue:     q,
		repairer:  repairer,
		extractor: extractor,
		history:   history,
		logger:    logger,
		cfg:       cfg,
	}
	p.pause = newPauseGate(nil)
	return p
}

// IsDownloadPaused reports whether any post-process stage currently has
// the "pause queue while I run" flag raised — exposed for the status
// surface spec §6 names; wiring it into the scheduler's own capacity
// check would need a Coordinator hook that doesn't exist yet, so this is
// informational only for now, same tracked-gap shape as the scheduler's
// hang-check cooperative-cancel note.
func (p *Processor) IsDownloadPaused() bool {
	return p.pause.IsPaused()
}

// Run drains the coordinator's event channel and post-processes every
// collection that enters post-process, bounded to cfg.ParallelJobs
// concurrent jobs via sourcegraph/conc (pulled in for the same bounded
// fan-out javi11-altmount/javi11-postie use their worker pools for).
func (p *Processor) Run(ctx context.Context) {
	limit := p.cfg.ParallelJobs
	if limit <= 0 {
		limit = 1
	}
	workers := pool.New().WithMaxGoroutines(limit)

	for {
		select {
		case <-ctx.Done():
			workers.Wait()
			return
		case ev, ok := <-p.queue.Events():
			if !ok {
				workers.Wait()
				return
			}
			if ev.Kind != queue.EventCollectionEnteredPostProcess {
				continue
			}
			id := ev.CollectionID
			workers.Go(func() {
				p.processOne(ctx, id)
			})
		}
	}
}

// processOne runs the full stage chain for one collection id, grounded
// on PrePostProcessor::StartJob's sequential bUnpack/bParFailed/bCleanup/
// bMoveInter/bPostScript decision chain. Every stage runs in order and
// decides for itself whether to skip; only a health-gate failure ends the
// chain early. Each stage mutates the shared Collection directly since
// only one goroutine at a time works a given collection.
func (p *Processor) processOne(ctx context.Context, collectionID string) {
	col, ok := p.queue.Collection(collectionID)
	if !ok {
		return
	}

	col.Stage = model.StageLoadingPars
	p.runRename(col)

	p.runParCheck(ctx, col)

	if col.DeleteStatus == model.DeleteHealth {
		p.finish(col)
		return
	}

	p.runUnpack(ctx, col)
	p.runCleanup(col)
	p.runMove(col)
	p.runPostScript(ctx, col)

	p.finish(col)
}

// finish moves the collection to FINISHED and, if wired, hands it to the
// State Persistor's history table before removing it from the live
// queue.
func (p *Processor) finish(col *model.Collection) {
	col.Stage = model.StageFinished
	if p.history != nil {
		if err := p.history.Add(col); err != nil {
			p.logger.Error("postprocess: %s: history write failed: %v", col.Name, err)
		}
	}
	p.queue.Remove(col.ID)
}
