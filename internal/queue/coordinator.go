// Package queue implements the Queue Coordinator (spec §4.3, component
// C3): the single goroutine that owns the collection/file/article arena,
// schedules article fetches against the News-Server Pool, and harvests
// their results. It is grounded on engine.QueueManager's locked-slice,
// per-job-cancel idiom, generalized with the scheduling/speed/hang-check
// timers and dupe-dominance policy the teacher never needed because it
// only ever ran one job at a time.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nzbcore/nzbcore/internal/downloader"
	"github.com/nzbcore/nzbcore/internal/logx"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/nntppool"
)

// Config tunes the scheduling loop. Zero-value fields are replaced with
// their defaults by New.
type Config struct {
	// MaxTotalConnections caps concurrent downloads below the pool's own
	// capacity; <=0 means "use the pool's capacity unmodified".
	MaxTotalConnections int
	// ArticleRetries is how many transient-error retries an article gets
	// before it is finally failed (spec §4.2 operation 7).
	ArticleRetries int
	// ArticleLevelAttempts is how many not-found/mismatch failures at one
	// server level an article tolerates before escalating to the next
	// level (spec §4.3 escalation).
	ArticleLevelAttempts int
	// ScheduleScanLimit bounds how many pending articles one scheduling
	// pass inspects before giving up for this tick, so a queue full of
	// temporarily-unschedulable articles can't make every tick O(queue).
	ScheduleScanLimit int

	ScheduleInterval  time.Duration
	SpeedInterval     time.Duration
	HangCheckInterval time.Duration
	HangTimeout       time.Duration
}

func (c *Config) setDefaults() {
	if c.ArticleRetries <= 0 {
		c.ArticleRetries = 3
	}
	if c.ArticleLevelAttempts <= 0 {
		c.ArticleLevelAttempts = 1
	}
	if c.ScheduleScanLimit <= 0 {
		c.ScheduleScanLimit = 2000
	}
	if c.ScheduleInterval <= 0 {
		c.ScheduleInterval = 200 * time.Millisecond
	}
	if c.SpeedInterval <= 0 {
		c.SpeedInterval = time.Second
	}
	if c.HangCheckInterval <= 0 {
		c.HangCheckInterval = 100 * time.Millisecond
	}
	if c.HangTimeout <= 0 {
		c.HangTimeout = 2 * time.Minute
	}
}

// fetchFunc is the injected article-fetch call; production wiring binds
// it to downloader.FetchArticle, tests substitute a fake so the scheduler
// can be exercised without real network I/O.
type fetchFunc func(ctx context.Context, t downloader.Task, conn *model.Connection) downloader.Result

type articleResult struct {
	col   *model.Collection
	file  *model.File
	art   *model.Article
	res   downloader.Result
	group string
}

type runningKey struct {
	collectionID string
	fileIndex    int
	articleIndex int
}

// Coordinator is the C3 Queue Coordinator. Exactly one goroutine should
// call Run; AddNZB and the accessor methods are safe to call from any
// goroutine (they take the same guard Run uses for scheduling).
type Coordinator struct {
	mu          sync.Mutex
	collections []*model.Collection
	byID        map[string]*model.Collection

	pool      *nntppool.Pool
	cache     *downloader.ArticleCache
	writerFor func(*model.File) downloader.Writer
	logger    *logx.Logger
	cfg       Config

	speed *SpeedMeter
	fetch fetchFunc

	activeDownloads int
	running         map[runningKey]time.Time
	cancels         map[runningKey]context.CancelFunc

	events  chan Event
	wake    chan struct{}
	results chan articleResult
	done    chan struct{}

	nextFileID int64
}

// New builds a Coordinator. writerFor selects DirectWriter or JoinWriter
// per file (spec §4.2 write modes); production callers typically return
// the same *downloader.DirectWriter for every file.
func New(pool *nntppool.Pool, cache *downloader.ArticleCache, writerFor func(*model.File) downloader.Writer, logger *logx.Logger, cfg Config) *Coordinator {
	cfg.setDefaults()
	c := &Coordinator{
		byID:      make(map[string]*model.Collection),
		pool:      pool,
		cache:     cache,
		writerFor: writerFor,
		logger:    logger,
		cfg:       cfg,
		speed:     NewSpeedMeter(),
		running:   make(map[runningKey]time.Time),
		cancels:   make(map[runningKey]context.CancelFunc),
		events:    make(chan Event, 256),
		wake:      make(chan struct{}, 1),
		results:   make(chan articleResult, 256),
		done:      make(chan struct{}),
	}
	c.fetch = func(ctx context.Context, t downloader.Task, conn *model.Connection) downloader.Result {
		return downloader.FetchArticle(ctx, c.pool, c.writerFor(t.File), c.cache, t, conn)
	}
	return c
}

func (c *Coordinator) wakeLocked() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// AddNZB queues a parsed collection, applying the dupe-dominance policy
// against whatever is already queued (spec §4.3 "Duplicate handling").
// It returns false with a reason when the candidate loses to an existing
// collection and is not queued.
func (c *Coordinator) AddNZB(col *model.Collection) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col.DupeKey != "" {
		for _, existing := range c.collections {
			switch decideDupe(existing, col) {
			case dupeActionReject:
				return false, "duplicate: an existing collection with an equal or higher dupe score is already queued"
			case dupeActionAccept:
				if existing.DupeKey == col.DupeKey {
					c.removeCollectionLocked(existing.ID)
					existing.DeleteStatus = model.DeleteDupe
					c.emit(Event{Kind: EventCollectionRemoved, CollectionID: existing.ID})
				}
			case dupeActionAcceptAlongside:
				// both stay queued
			}
		}
	}

	col.CreatedAt = time.Now()
	for _, f := range col.Files {
		c.nextFileID++
		f.ID = c.nextFileID
	}
	c.collections = append(c.collections, col)
	c.byID[col.ID] = col
	c.emit(Event{Kind: EventNzbAdded, CollectionID: col.ID})
	c.wakeLocked()
	return true, ""
}

// FindFile locates a file by its global id across every queued
// collection (spec §4.4's file-scope edit actions address files this
// way, mirroring the teacher's flat FileInfo-id space even though this
// module's arena keys files by (collection id, index) internally).
func (c *Coordinator) FindFile(fileID int64) (*model.Collection, *model.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FindFileLocked(fileID)
}

// FindFileLocked is FindFile for a caller that already holds Lock() (the
// editor package runs every multi-step edit under one held lock).
func (c *Coordinator) FindFileLocked(fileID int64) (*model.Collection, *model.File, bool) {
	for _, col := range c.collections {
		for _, f := range col.Files {
			if f.ID == fileID {
				return col, f, true
			}
		}
	}
	return nil, nil, false
}

// CollectionLocked is Collection for a caller that already holds Lock().
func (c *Coordinator) CollectionLocked(id string) (*model.Collection, bool) {
	col, ok := c.byID[id]
	return col, ok
}

func (c *Coordinator) removeCollectionLocked(id string) {
	delete(c.byID, id)
	for i, col := range c.collections {
		if col.ID == id {
			c.collections = append(c.collections[:i], c.collections[i+1:]...)
			return
		}
	}
}

// Remove deletes a collection from the live queue outright (used by the
// editor's group-delete action once post-processing has nothing left to
// do with it).
func (c *Coordinator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeCollectionLocked(id)
}

// Collection returns a pointer to the live collection by id. Callers
// that mutate it must do so only via editor actions routed through the
// coordinator's guard — direct field writes from other goroutines race.
func (c *Coordinator) Collection(id string) (*model.Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.byID[id]
	return col, ok
}

// Collections returns a shallow copy of the live queue slice.
func (c *Coordinator) Collections() []*model.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Collection, len(c.collections))
	copy(out, c.collections)
	return out
}

// Stats is the snapshot spec §4.3/§6's status surface reports.
type Stats struct {
	QueueCount      int
	ActiveDownloads int
	RemainingBytes  int64
	SpeedBytesPerS  int64
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var remaining int64
	for _, col := range c.collections {
		remaining += col.RemainingSize
	}
	return Stats{
		QueueCount:      len(c.collections),
		ActiveDownloads: c.activeDownloads,
		RemainingBytes:  remaining,
		SpeedBytesPerS:  c.speed.CurrentSpeed(),
	}
}

// Lock/Unlock expose the queue guard to the editor package (spec §4.4
// actions must run under the same guard the scheduler uses, per §9's
// "single mutex" redesign — there is exactly one guard in this module).
// The *Locked methods below assume the caller already holds it, so a
// multi-step edit (e.g. group delete + a file-level cascade) stays
// atomic with respect to the scheduler.
func (c *Coordinator) Lock()   { c.mu.Lock() }
func (c *Coordinator) Unlock() { c.mu.Unlock() }

// CollectionsLocked returns the live queue slice itself (not a copy) —
// callers under Lock() may reorder it via MoveCollectionLocked but must
// not retain it past Unlock().
func (c *Coordinator) CollectionsLocked() []*model.Collection { return c.collections }

// RemoveLocked deletes a collection from the live queue and arena.
func (c *Coordinator) RemoveLocked(id string) { c.removeCollectionLocked(id) }

// MoveCollectionLocked repositions a collection within the queue slice to
// newIndex (clamped to the valid range), implementing the group
// move-top/move-bottom/move-offset actions (spec §4.4). Priority-based
// scheduling order is independent of this slice order — this only
// affects FIFO tie-breaks and the order history/queue listings show.
func (c *Coordinator) MoveCollectionLocked(id string, newIndex int) {
	idx := -1
	for i, col := range c.collections {
		if col.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(c.collections)-1 {
		newIndex = len(c.collections) - 1
	}
	col := c.collections[idx]
	c.collections = append(c.collections[:idx], c.collections[idx+1:]...)
	c.collections = append(c.collections[:newIndex], append([]*model.Collection{col}, c.collections[newIndex:]...)...)
}

// InsertLocked adds an already-queued collection back into the live
// queue/arena without the dupe check AddNZB performs — used by the
// history "return to queue" action (spec §4.4), which re-enters a
// collection that already passed duplicate handling once.
func (c *Coordinator) InsertLocked(col *model.Collection) {
	for _, f := range col.Files {
		if f.ID == 0 {
			c.nextFileID++
			f.ID = c.nextFileID
		}
	}
	c.collections = append(c.collections, col)
	c.byID[col.ID] = col
	c.wakeLocked()
}

// Run drives the scheduling/speed/hang-check timers and the article
// result channel until ctx is cancelled. It must run in its own
// goroutine; every other Coordinator method is safe to call concurrently
// with it.
func (c *Coordinator) Run(ctx context.Context) {
	scheduleTick := time.NewTicker(c.cfg.ScheduleInterval)
	speedTick := time.NewTicker(c.cfg.SpeedInterval)
	hangTick := time.NewTicker(c.cfg.HangCheckInterval)
	defer scheduleTick.Stop()
	defer speedTick.Stop()
	defer hangTick.Stop()

	for {
		select {
		case <-ctx.Done():
			close(c.done)
			return
		case <-c.wake:
			c.mu.Lock()
			c.scheduleLocked(ctx)
			c.mu.Unlock()
		case <-scheduleTick.C:
			c.mu.Lock()
			c.scheduleLocked(ctx)
			c.mu.Unlock()
		case <-speedTick.C:
			c.speed.Tick()
		case <-hangTick.C:
			c.mu.Lock()
			c.hangCheckLocked()
			c.mu.Unlock()
		case r := <-c.results:
			c.mu.Lock()
			c.harvestLocked(r)
			c.scheduleLocked(ctx)
			c.mu.Unlock()
		}
	}
}
