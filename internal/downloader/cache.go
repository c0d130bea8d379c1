package downloader

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	path   string
	offset int64
	data   []byte
}

// ArticleCache is the in-memory LRU bounded by `article-cache` (MB) spec
// §4.2 names: decoded article bodies may be held here instead of being
// written immediately, flushed by the file-completion step or evicted
// (write-through) once the cache is over budget. A disabled cache
// (budget<=0) makes Put a direct pass-through write.
type ArticleCache struct {
	mu         sync.Mutex
	budget     int64
	used       int64
	lru        *lru.Cache[string, cacheEntry]
	underlying Writer
}

// NewArticleCache builds a cache flushing evicted entries into
// underlying. budgetMB<=0 disables caching entirely.
func NewArticleCache(budgetMB int, underlying Writer) *ArticleCache {
	c := &ArticleCache{budget: int64(budgetMB) * 1024 * 1024, underlying: underlying}
	// The entry-count ceiling only bounds map growth; real eviction is
	// byte-budget driven in Put, so a generous count avoids the LRU's
	// own count-based eviction firing first.
	l, _ := lru.NewWithEvict[string, cacheEntry](1<<20, c.onEvict)
	c.lru = l
	return c
}

func key(path string, offset int64) string {
	return fmt.Sprintf("%s\x00%d", path, offset)
}

func (c *ArticleCache) onEvict(_ string, e cacheEntry) {
	c.used -= int64(len(e.data))
	_ = c.underlying.WriteAt(e.path, e.data, e.offset)
}

// Enabled reports whether caching is active; callers bypass Put/Flush
// entirely and write straight through when false.
func (c *ArticleCache) Enabled() bool { return c.budget > 0 }

// Put stores a decoded article body, evicting the oldest entries
// (write-through) until the cache is back under budget.
func (c *ArticleCache) Put(path string, offset int64, data []byte) error {
	if !c.Enabled() {
		return c.underlying.WriteAt(path, data, offset)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	c.lru.Add(key(path, offset), cacheEntry{path: path, offset: offset, data: cp})
	c.used += int64(len(cp))

	for c.used > c.budget {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

// Flush forces every cached entry belonging to path out to the
// underlying writer — called by the file-completion step (spec §4.2
// "Article cache").
func (c *ArticleCache) Flush(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if !ok || e.path != path {
			continue
		}
		if err := c.underlying.WriteAt(e.path, e.data, e.offset); err != nil {
			return err
		}
		// Remove fires onEvict, which writes the entry once more and
		// subtracts it from used.
		c.lru.Remove(k)
	}
	return nil
}
