package cache

import (
	"github.com/marmos91/dittoraid/internal/logger"
)

// Stats is a snapshot of the cache counters.
type Stats struct {
	Capacity  int     `json:"capacity" yaml:"capacity"`
	Entries   int     `json:"entries" yaml:"entries"`
	Queries   uint64  `json:"queries" yaml:"queries"`
	Hits      uint64  `json:"hits" yaml:"hits"`
	Inserts   uint64  `json:"inserts" yaml:"inserts"`
	Evictions uint64  `json:"evictions" yaml:"evictions"`
	HitRate   float64 `json:"hit_rate" yaml:"hit_rate"`
}

// Stats returns the current counters. HitRate is a percentage and is 0 when
// there were no queries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Capacity:  len(c.entries),
		Entries:   c.occupancyLocked(),
		Queries:   c.queries,
		Hits:      c.hits,
		Inserts:   c.inserts,
		Evictions: c.evictions,
	}
	if s.Queries > 0 {
		s.HitRate = 100 * float64(s.Hits) / float64(s.Queries)
	}
	return s
}

// LogHitRate writes the hit/query counters to the operational log.
func (c *Cache) LogHitRate() {
	s := c.Stats()
	logger.Info("Cache hit rate",
		logger.KeyCacheHits, s.Hits,
		logger.KeyCacheQueries, s.Queries,
		logger.KeyCacheHitRate, s.HitRate,
		logger.KeyEvicted, s.Evictions)
}
