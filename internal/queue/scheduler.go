package queue

import (
	"context"
	"sort"
	"time"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/model"
)

// downloadsLimitLocked is spec §4.3 step 2: the pool's total capacity,
// further capped by the operator's configured connection ceiling if one
// is set below it.
func (c *Coordinator) downloadsLimitLocked() int {
	capacity := c.pool.TotalCapacity()
	if c.cfg.MaxTotalConnections > 0 && c.cfg.MaxTotalConnections < capacity {
		return c.cfg.MaxTotalConnections
	}
	return capacity
}

// orderedCollectionsLocked returns the queue in scheduling order:
// priority descending, then insertion (FIFO) order for ties (spec §4.3
// step 1).
func (c *Coordinator) orderedCollectionsLocked() []*model.Collection {
	out := make([]*model.Collection, len(c.collections))
	copy(out, c.collections)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// scheduleLocked fills spare capacity by repeatedly finding the next
// schedulable article and dispatching it, until the pool is saturated or
// nothing more can be scheduled this tick (spec §4.3 steps 1-3).
func (c *Coordinator) scheduleLocked(ctx context.Context) {
	limit := c.downloadsLimitLocked()
	for c.activeDownloads < limit {
		col, file, art, offset, conn, group, ok := c.findAndAcquireLocked()
		if !ok {
			return
		}
		c.dispatchLocked(ctx, col, file, art, offset, conn, group)
	}
}

// findAndAcquireLocked walks the queue in scheduling order and returns the
// first pending article for which the pool can hand out a connection at
// its required tier. It gives up after scanning ScheduleScanLimit
// candidate articles, so a queue full of momentarily-unschedulable work
// can't make every tick cost O(queue) (spec §4.3 step 3: "if none found,
// break (wait)", generalized to a bounded search rather than a single
// head-of-queue check, so one busy server doesn't stall every other
// collection's independent articles).
func (c *Coordinator) findAndAcquireLocked() (*model.Collection, *model.File, *model.Article, int64, *model.Connection, string, bool) {
	scanned := 0
	for _, col := range c.orderedCollectionsLocked() {
		if col.Paused || col.InPostProcess() {
			continue
		}
		for _, file := range col.Files {
			if file.Deleted || file.Paused || file.IsComplete() || file.IsFullyFailed() {
				continue
			}
			var offset int64
			for _, art := range file.Articles {
				if art.Status != model.ArticlePending {
					offset += art.Size
					continue
				}
				conn, ok := c.pool.Acquire(art.RequiredLevel(), art.FailedGroups)
				if ok {
					return col, file, art, offset, conn, c.pool.GroupOf(conn.ServerID), true
				}
				offset += art.Size
				scanned++
				if scanned >= c.cfg.ScheduleScanLimit {
					return nil, nil, nil, 0, nil, "", false
				}
			}
		}
	}
	return nil, nil, nil, 0, nil, "", false
}

func (c *Coordinator) dispatchLocked(ctx context.Context, col *model.Collection, file *model.File, art *model.Article, offset int64, conn *model.Connection, group string) {
	art.MarkRunning()
	file.ActiveDownloads++
	col.ActiveDownloads++
	c.activeDownloads++

	key := runningKey{collectionID: col.ID, fileIndex: file.Index, articleIndex: art.Index}
	taskCtx, cancel := context.WithCancel(ctx)
	c.running[key] = time.Now()
	c.cancels[key] = cancel

	task := downloader.Task{
		CollectionID: col.ID,
		File:         file,
		Article:      art,
		Offset:       offset,
		DirectWrite:  true,
	}

	go func() {
		res := c.fetch(taskCtx, task, conn)
		select {
		case c.results <- articleResult{col: col, file: file, art: art, res: res, group: group}:
		case <-c.done:
		}
	}()
}

// harvestLocked applies one article result's outcome to the article,
// file and collection (spec §4.2 operations 4-7, §4.3 step 4) and checks
// whether the owning file/collection has just reached a terminal state.
func (c *Coordinator) harvestLocked(r articleResult) {
	col, file, art := r.col, r.file, r.art
	key := runningKey{collectionID: col.ID, fileIndex: file.Index, articleIndex: art.Index}
	if cancel, ok := c.cancels[key]; ok {
		cancel()
		delete(c.cancels, key)
	}
	delete(c.running, key)

	c.activeDownloads--
	file.ActiveDownloads--
	col.ActiveDownloads--

	switch r.res.Outcome {
	case downloader.OutcomeSucceeded:
		art.MarkSucceeded(r.res.CRC32)
		file.RemainingSize -= r.res.BytesWritten
		if file.RemainingSize < 0 {
			file.RemainingSize = 0
		}
		col.SuccessArticle++
		c.speed.Bump(r.res.BytesWritten)
	case downloader.OutcomeNotFoundOrMismatch:
		c.handleNotFoundLocked(col, file, art, r.group)
	case downloader.OutcomeTransient:
		c.handleTransientLocked(col, file, art)
	}
	col.RecalculateRemaining()

	if file.IsComplete() {
		c.finishFileLocked(col, file)
	}

	if col.AllFilesTerminal() {
		c.enterPostProcessLocked(col)
	}
}

// handleNotFoundLocked is spec §4.2 operation 4/5: the article is
// unavailable or corrupt on this server. It escalates the article's
// excluded-group set, and once ArticleLevelAttempts failures have
// accumulated at the current tier, escalates to the next tier — finally
// failing the article if no higher tier exists.
func (c *Coordinator) handleNotFoundLocked(col *model.Collection, file *model.File, art *model.Article, group string) {
	art.EscalateLevel(group)
	art.LevelAttempts++
	if art.LevelAttempts < c.cfg.ArticleLevelAttempts {
		art.Status = model.ArticlePending
		return
	}
	art.LevelAttempts = 0
	art.EscalateToNextLevel()
	if art.TriedLevel > c.pool.MaxLevel() {
		c.finallyFailArticleLocked(col, file, art)
		return
	}
	art.Status = model.ArticlePending
}

// handleTransientLocked is spec §4.2 operations 6/7: a connection-level
// failure bumps the retry counter; once it exceeds article-retries the
// article is finally failed.
func (c *Coordinator) handleTransientLocked(col *model.Collection, file *model.File, art *model.Article) {
	art.RequeueAfterTransientError()
	if art.Retries > c.cfg.ArticleRetries {
		c.finallyFailArticleLocked(col, file, art)
	}
}

func (c *Coordinator) finallyFailArticleLocked(col *model.Collection, file *model.File, art *model.Article) {
	art.MarkFailed()
	col.FailedArticle++
	col.FailedSize += art.Size
	if file.IsParFile {
		col.ParFailedSize += art.Size
	}
	file.RemainingSize -= art.Size
	if file.RemainingSize < 0 {
		file.RemainingSize = 0
	}
}

// finishFileLocked flushes any cached bytes, closes the write target and
// emits FileCompleted (spec §4.2 "Article cache" flush-on-completion,
// §9 typed-event redesign).
func (c *Coordinator) finishFileLocked(col *model.Collection, file *model.File) {
	if c.cache != nil && c.cache.Enabled() {
		_ = c.cache.Flush(file.PartPath)
	}
	if w := c.writerFor(file); w != nil {
		_ = w.CloseFile(file.PartPath, file.Size)
	}
	col.CompletedFilenames = append(col.CompletedFilenames, file.Filename)
	c.emit(Event{Kind: EventFileCompleted, CollectionID: col.ID, FileIndex: file.Index})
}

// enterPostProcessLocked transitions a collection out of QUEUED once
// every file has reached a terminal state (spec §4.3 step 4, §4.5 entry
// gate).
func (c *Coordinator) enterPostProcessLocked(col *model.Collection) {
	if col.InPostProcess() {
		return
	}
	col.ComputeHealth()
	col.Stage = model.StageLoadingPars
	col.StartedAt = time.Now()
	c.emit(Event{Kind: EventCollectionEnteredPostProcess, CollectionID: col.ID})
}

// hangCheckLocked is spec §5's 100ms hang-check timer: it surfaces
// articles that have been running longer than HangTimeout. The fetch
// goroutine's context is cancelled, which downloader.FetchArticle
// observes at its next Dial/connect boundary — a cooperative cancel, not
// a hard socket kill: nntppool.Pool.Fetch takes no context, so a BODY
// read already in progress is not interrupted.
func (c *Coordinator) hangCheckLocked() {
	now := time.Now()
	for key, since := range c.running {
		if now.Sub(since) < c.cfg.HangTimeout {
			continue
		}
		if cancel, ok := c.cancels[key]; ok {
			cancel()
		}
		c.logger.Warn("queue: article %s/%d/%d has been running for %s, cancelling", key.collectionID, key.fileIndex, key.articleIndex, now.Sub(since))
	}
}
