// Package cache implements the client-side block cache of the RAID array.
//
// The cache is a fixed-length table of entries keyed by physical location
// (disk, block). Lookups and inserts are a linear scan: the table is small
// and bounded (MaxCapacity entries), and the scan order is what makes the
// eviction tie-break deterministic.
//
// Eviction policy (LFU with earliest tie-break):
//   - an invalid (empty) slot is always preferred, lowest index first
//   - otherwise the slot with the lowest access count is evicted
//   - among slots sharing the lowest count, the lowest index wins
//
// Every entry starts with an access count of 1 when (re)inserted; each hit
// and each Update increments it.
//
// Lifecycle: the zero Cache is uninitialized. Create allocates the table,
// Destroy releases it. Create on a live table fails rather than silently
// reusing it. All operations are safe for concurrent use; each of Lookup,
// Update and Insert is atomic on its own, but a miss followed by an insert
// is two separate critical sections.
package cache

import (
	"sync"
	"time"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

const (
	// MinCapacity is the smallest table Create accepts.
	MinCapacity = 2

	// MaxCapacity is the largest table Create accepts.
	MaxCapacity = 4096
)

// entry is one cached physical block.
type entry struct {
	valid    bool
	loc      jbod.Location
	content  jbod.Block
	accesses uint64
}

// Cache is a fixed-capacity LFU table of blocks.
type Cache struct {
	mu      sync.Mutex
	entries []entry

	// Counters survive Destroy so a final hit-rate report can still be
	// logged after teardown.
	queries   uint64
	hits      uint64
	inserts   uint64
	evictions uint64

	metrics CacheMetrics
}

// New returns an uninitialized cache. Call Create before use.
//
// metrics may be nil, in which case no metrics are recorded.
func New(metrics CacheMetrics) *Cache {
	return &Cache{metrics: metrics}
}

// Create allocates a zeroed table of capacity entries.
func (c *Cache) Create(capacity int) error {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return jbod.NewError(jbod.CodeInvalidArgument, "cache create",
			"capacity %d outside [%d, %d]", capacity, MinCapacity, MaxCapacity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil {
		return jbod.NewError(jbod.CodeInvalidArgument, "cache create",
			"cache already exists with %d entries", len(c.entries))
	}

	c.entries = make([]entry, capacity)
	logger.Debug("Cache created", logger.KeyCacheCapacity, capacity)
	if c.metrics != nil {
		c.metrics.RecordCapacity(capacity)
	}
	return nil
}

// Destroy releases the table, returning the cache to the uninitialized state.
func (c *Cache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return jbod.NewError(jbod.CodeNotInitialized, "cache destroy", "no cache to destroy")
	}

	c.entries = nil
	logger.Debug("Cache destroyed")
	if c.metrics != nil {
		c.metrics.RecordCapacity(0)
		c.metrics.RecordOccupancy(0)
	}
	return nil
}

// Enabled reports whether a table exists and has non-zero capacity.
func (c *Cache) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) > 0
}

// Capacity returns the number of slots in the table, 0 when uninitialized.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Len returns the number of valid entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.occupancyLocked()
}

// Lookup copies the cached content of loc into out.
//
// A miss is reported as (false, nil) and is not a failure; callers fall back
// to the device. An error is returned only when the cache is uninitialized or
// out is nil.
func (c *Cache) Lookup(loc jbod.Location, out *jbod.Block) (bool, error) {
	start := time.Now()

	c.mu.Lock()
	if c.entries == nil {
		c.mu.Unlock()
		return false, jbod.NewError(jbod.CodeNotInitialized, "cache lookup", "cache not created")
	}
	if out == nil {
		c.mu.Unlock()
		return false, jbod.NewError(jbod.CodeInvalidArgument, "cache lookup", "nil output block")
	}

	c.queries++
	i := c.findLocked(loc)
	if i >= 0 {
		*out = c.entries[i].content
		c.entries[i].accesses++
		c.hits++
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveLookup(i >= 0, time.Since(start))
	}
	return i >= 0, nil
}

// Update overwrites the content of loc if it is cached.
//
// Update never inserts: an absent location, or an uninitialized cache,
// leaves the table unchanged.
func (c *Cache) Update(loc jbod.Location, in *jbod.Block) {
	if in == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return
	}
	if i := c.findLocked(loc); i >= 0 {
		c.entries[i].content = *in
		c.entries[i].accesses++
	}
}

// Insert stores a copy of in under loc, evicting a victim if the table is
// full.
func (c *Cache) Insert(loc jbod.Location, in *jbod.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return jbod.NewError(jbod.CodeNotInitialized, "cache insert", "cache not created")
	}
	if in == nil {
		return jbod.NewError(jbod.CodeInvalidArgument, "cache insert", "nil input block")
	}
	if !loc.Valid() {
		return jbod.NewError(jbod.CodeInvalidArgument, "cache insert", "invalid location %s", loc)
	}

	victim, err := c.victimLocked(loc)
	if err != nil {
		return err
	}

	evicted := c.entries[victim].valid
	if evicted {
		c.evictions++
		logger.Debug("Cache eviction",
			logger.KeyDisk, c.entries[victim].loc.Disk,
			logger.KeyBlock, c.entries[victim].loc.Block,
			logger.KeyAccesses, c.entries[victim].accesses)
	}

	c.entries[victim] = entry{
		valid:    true,
		loc:      loc,
		content:  *in,
		accesses: 1,
	}
	c.inserts++

	if c.metrics != nil {
		c.metrics.RecordInsert(evicted)
		c.metrics.RecordOccupancy(c.occupancyLocked())
	}
	return nil
}

// victimLocked scans the table once and picks the slot for loc.
//
// The scan rejects duplicates of loc up to the point where the victim is
// known. An invalid slot ends the scan early; since entries only become
// invalid all at once (Destroy), every valid entry lives before the first
// invalid slot, so no duplicate can be hiding past it.
func (c *Cache) victimLocked(loc jbod.Location) (int, error) {
	victim := -1
	var minAccesses uint64

	for i := range c.entries {
		e := &c.entries[i]
		if !e.valid {
			return i, nil
		}
		if e.loc == loc {
			return -1, jbod.NewError(jbod.CodeDuplicateKey, "cache insert", "%s already cached", loc)
		}
		// Strict comparison keeps the lowest index among equal minimums.
		if victim < 0 || e.accesses < minAccesses {
			victim = i
			minAccesses = e.accesses
		}
	}

	if victim < 0 {
		return -1, jbod.NewError(jbod.CodeInvalidArgument, "cache insert", "no victim in empty table")
	}
	return victim, nil
}

func (c *Cache) findLocked(loc jbod.Location) int {
	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].loc == loc {
			return i
		}
	}
	return -1
}

func (c *Cache) occupancyLocked() int {
	n := 0
	for i := range c.entries {
		if c.entries[i].valid {
			n++
		}
	}
	return n
}
