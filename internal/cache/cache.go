package cache

import (
	"sync"
	"time"

	"github.com/OCAP2/framereplay/pkg/core"
)

// Key identifies one version of a source file. A changed modification time
// or size means the file has to be loaded again.
type Key struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Matches reports whether k and other describe the same file version.
func (k Key) Matches(other Key) bool {
	return k.Path == other.Path && k.ModTime.Equal(other.ModTime) && k.Size == other.Size
}

type entry struct {
	key     Key
	dataset core.Dataset
}

// Datasets memoizes loaded datasets, one entry per path. Returned datasets
// share their Records slice with the cache and must be treated as read-only.
type Datasets struct {
	m       sync.RWMutex
	entries map[string]entry

	Hits   SafeCounter
	Misses SafeCounter
}

func NewDatasets() *Datasets {
	return &Datasets{
		entries: make(map[string]entry),
	}
}

// Get returns the dataset stored for key.Path if it was loaded from the
// same file version.
func (c *Datasets) Get(key Key) (core.Dataset, bool) {
	c.m.RLock()
	e, ok := c.entries[key.Path]
	c.m.RUnlock()

	if !ok || !e.key.Matches(key) {
		c.Misses.Inc()
		return core.Dataset{}, false
	}
	c.Hits.Inc()
	return e.dataset, true
}

// Put stores ds for key, replacing any older version of the same path.
func (c *Datasets) Put(key Key, ds core.Dataset) {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[key.Path] = entry{key: key, dataset: ds}
}

// Invalidate drops the entry for path.
func (c *Datasets) Invalidate(path string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.entries, path)
}

// Len returns the number of cached paths.
func (c *Datasets) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.entries)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
