package cache

import (
	"athand/internal/model"
)

// MonthCache maps month keys to already-fetched month timelines so that a
// month is fetched from the remote source at most once per process lifetime.
//
// There is no eviction and no TTL: only two keys are live at any moment
// (current and next month), and one retained MonthTimeline is a few KB, so
// growth over a long-running process stays negligible. Access is confined
// to the scheduler goroutine, so no locking is needed.
type MonthCache struct {
	entries map[model.MonthKey]model.MonthTimeline
}

// New returns an empty MonthCache.
func New() *MonthCache {
	return &MonthCache{
		entries: make(map[model.MonthKey]model.MonthTimeline),
	}
}

// Get returns the cached timeline for key, if present.
func (c *MonthCache) Get(key model.MonthKey) (model.MonthTimeline, bool) {
	mt, ok := c.entries[key]
	return mt, ok
}

// Put stores the timeline for key, replacing any previous entry.
func (c *MonthCache) Put(key model.MonthKey, mt model.MonthTimeline) {
	c.entries[key] = mt
}

// Len reports the number of cached months.
func (c *MonthCache) Len() int {
	return len(c.entries)
}
