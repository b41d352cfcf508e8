package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoraid/pkg/jbod"
)

func blockOf(b byte) *jbod.Block {
	var blk jbod.Block
	for i := range blk {
		blk[i] = b
	}
	return &blk
}

func loc(disk, block uint32) jbod.Location {
	return jbod.Location{Disk: disk, Block: block}
}

func newCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c := New(nil)
	require.NoError(t, c.Create(capacity))
	t.Cleanup(func() {
		if c.Enabled() {
			_ = c.Destroy()
		}
	})
	return c
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestCreate_Bounds(t *testing.T) {
	tests := []struct {
		capacity int
		wantErr  bool
	}{
		{-1, true},
		{0, true},
		{1, true},
		{MinCapacity, false},
		{100, false},
		{MaxCapacity, false},
		{MaxCapacity + 1, true},
	}

	for _, tt := range tests {
		c := New(nil)
		err := c.Create(tt.capacity)
		if tt.wantErr {
			assert.ErrorIs(t, err, jbod.ErrInvalidArgument, "capacity %d", tt.capacity)
			assert.False(t, c.Enabled())
			continue
		}
		require.NoError(t, err, "capacity %d", tt.capacity)
		assert.True(t, c.Enabled())
		assert.Equal(t, tt.capacity, c.Capacity())
	}
}

func TestCreate_Twice(t *testing.T) {
	c := newCache(t, 4)

	err := c.Create(4)
	assert.ErrorIs(t, err, jbod.ErrInvalidArgument)
	assert.Equal(t, 4, c.Capacity(), "failed create must not replace the table")

	require.NoError(t, c.Destroy())
	require.NoError(t, c.Create(8), "create succeeds again after destroy")
	assert.Equal(t, 8, c.Capacity())
}

func TestDestroy_Uninitialized(t *testing.T) {
	c := New(nil)
	assert.ErrorIs(t, c.Destroy(), jbod.ErrNotInitialized)

	require.NoError(t, c.Create(2))
	require.NoError(t, c.Destroy())
	assert.ErrorIs(t, c.Destroy(), jbod.ErrNotInitialized)
}

func TestEnabled(t *testing.T) {
	var nilCache *Cache
	assert.False(t, nilCache.Enabled())
	assert.False(t, New(nil).Enabled())
	assert.True(t, newCache(t, 2).Enabled())
}

func TestOperations_Uninitialized(t *testing.T) {
	c := New(nil)
	var out jbod.Block

	found, err := c.Lookup(loc(0, 0), &out)
	assert.False(t, found)
	assert.ErrorIs(t, err, jbod.ErrNotInitialized)

	assert.ErrorIs(t, c.Insert(loc(0, 0), blockOf(1)), jbod.ErrNotInitialized)

	// Update is silent.
	c.Update(loc(0, 0), blockOf(1))
	assert.Equal(t, 0, c.Len())
}

// ============================================================================
// Lookup / Insert
// ============================================================================

func TestInsertThenLookup(t *testing.T) {
	c := newCache(t, 4)

	require.NoError(t, c.Insert(loc(3, 17), blockOf(0xAB)))

	var out jbod.Block
	found, err := c.Lookup(loc(3, 17), &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, *blockOf(0xAB), out)
}

func TestInsert_CopiesContent(t *testing.T) {
	c := newCache(t, 2)
	in := blockOf(1)
	require.NoError(t, c.Insert(loc(0, 0), in))

	in[0] = 99

	var out jbod.Block
	found, err := c.Lookup(loc(0, 0), &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, byte(1), out[0])
}

func TestLookup_Miss(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))

	out := *blockOf(7)
	found, err := c.Lookup(loc(1, 0), &out)
	require.NoError(t, err, "a miss is not an error")
	assert.False(t, found)
	assert.Equal(t, *blockOf(7), out, "a miss leaves the buffer untouched")
}

func TestLookup_NilBuffer(t *testing.T) {
	c := newCache(t, 2)
	_, err := c.Lookup(loc(0, 0), nil)
	assert.ErrorIs(t, err, jbod.ErrInvalidArgument)
}

func TestInsert_InvalidArguments(t *testing.T) {
	c := newCache(t, 2)

	assert.ErrorIs(t, c.Insert(loc(0, 0), nil), jbod.ErrInvalidArgument)
	assert.ErrorIs(t, c.Insert(loc(jbod.NumDisks, 0), blockOf(1)), jbod.ErrInvalidArgument)
	assert.ErrorIs(t, c.Insert(loc(0, jbod.BlocksPerDisk), blockOf(1)), jbod.ErrInvalidArgument)
	assert.Equal(t, 0, c.Len())
}

func TestInsert_Duplicate(t *testing.T) {
	c := newCache(t, 4)
	require.NoError(t, c.Insert(loc(1, 1), blockOf(1)))
	require.NoError(t, c.Insert(loc(2, 2), blockOf(2)))

	err := c.Insert(loc(1, 1), blockOf(3))
	assert.ErrorIs(t, err, jbod.ErrDuplicateKey)

	var out jbod.Block
	found, _ := c.Lookup(loc(1, 1), &out)
	require.True(t, found)
	assert.Equal(t, *blockOf(1), out, "duplicate insert must not overwrite")
	assert.Equal(t, 2, c.Len())
}

func TestInsert_DuplicateInFullTable(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(1)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(2)))

	// The duplicate sits after the would-be victim (slot 0).
	assert.ErrorIs(t, c.Insert(loc(0, 1), blockOf(3)), jbod.ErrDuplicateKey)
	assert.Equal(t, 2, c.Len())
}

// ============================================================================
// Eviction
// ============================================================================

func TestEviction_FillsEmptySlotsFirst(t *testing.T) {
	c := newCache(t, 3)
	for i := uint32(0); i < 3; i++ {
		require.NoError(t, c.Insert(loc(0, i), blockOf(byte(i))))
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestEviction_LowestAccessCountLowestIndex(t *testing.T) {
	c := newCache(t, 3)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))
	require.NoError(t, c.Insert(loc(0, 2), blockOf(2)))

	// Access counts become {5, 1, 1}.
	var out jbod.Block
	for i := 0; i < 4; i++ {
		found, err := c.Lookup(loc(0, 0), &out)
		require.NoError(t, err)
		require.True(t, found)
	}

	require.NoError(t, c.Insert(loc(0, 3), blockOf(3)))

	found, _ := c.Lookup(loc(0, 1), &out)
	assert.False(t, found, "index 1 is the lowest index among minimum counts")

	for _, l := range []jbod.Location{loc(0, 0), loc(0, 2), loc(0, 3)} {
		found, _ := c.Lookup(l, &out)
		assert.True(t, found, "%s should still be cached", l)
	}
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestEviction_PrefersLeastFrequentlyUsed(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))

	var out jbod.Block
	_, _ = c.Lookup(loc(0, 1), &out)
	_, _ = c.Lookup(loc(0, 1), &out)

	// Slot 0 has count 1, slot 1 has count 3.
	require.NoError(t, c.Insert(loc(0, 2), blockOf(2)))

	found, _ := c.Lookup(loc(0, 0), &out)
	assert.False(t, found)
	found, _ = c.Lookup(loc(0, 1), &out)
	assert.True(t, found)
}

func TestEviction_ReinsertedEntryRestartsAtOne(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))

	var out jbod.Block
	_, _ = c.Lookup(loc(0, 0), &out) // {2, 1}

	require.NoError(t, c.Insert(loc(0, 2), blockOf(2))) // evicts slot 1 -> {2, 1}
	_, _ = c.Lookup(loc(0, 2), &out)                    // {2, 2}
	_, _ = c.Lookup(loc(0, 2), &out)                    // {2, 3}

	require.NoError(t, c.Insert(loc(0, 3), blockOf(3))) // evicts slot 0

	found, _ := c.Lookup(loc(0, 0), &out)
	assert.False(t, found)
	found, _ = c.Lookup(loc(0, 2), &out)
	assert.True(t, found)
}

func TestNoDuplicateValidEntries(t *testing.T) {
	c := newCache(t, 8)
	for round := 0; round < 4; round++ {
		for i := uint32(0); i < 12; i++ {
			_ = c.Insert(loc(i%3, i), blockOf(byte(i)))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[jbod.Location]bool)
	for _, e := range c.entries {
		if !e.valid {
			continue
		}
		assert.False(t, seen[e.loc], "duplicate entry for %s", e.loc)
		seen[e.loc] = true
	}
}

// ============================================================================
// Update
// ============================================================================

func TestUpdate_Present(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(4, 4), blockOf(1)))

	c.Update(loc(4, 4), blockOf(2))

	var out jbod.Block
	found, err := c.Lookup(loc(4, 4), &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, *blockOf(2), out)
}

func TestUpdate_AbsentNeverInserts(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(1)))

	before := c.Stats()
	c.Update(loc(9, 9), blockOf(2))
	after := c.Stats()

	assert.Equal(t, before.Entries, after.Entries)
	assert.Equal(t, before.Inserts, after.Inserts)

	var out jbod.Block
	found, _ := c.Lookup(loc(9, 9), &out)
	assert.False(t, found)
}

func TestUpdate_CountsAsAccess(t *testing.T) {
	c := newCache(t, 2)
	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))

	c.Update(loc(0, 0), blockOf(5)) // {2, 1}
	require.NoError(t, c.Insert(loc(0, 2), blockOf(2)))

	var out jbod.Block
	found, _ := c.Lookup(loc(0, 0), &out)
	assert.True(t, found)
	found, _ = c.Lookup(loc(0, 1), &out)
	assert.False(t, found)
}

// ============================================================================
// Stats and metrics
// ============================================================================

func TestStats_HitRate(t *testing.T) {
	c := newCache(t, 2)
	assert.Equal(t, float64(0), c.Stats().HitRate, "no queries yet")

	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))

	var out jbod.Block
	_, _ = c.Lookup(loc(0, 0), &out)
	_, _ = c.Lookup(loc(0, 0), &out)
	_, _ = c.Lookup(loc(0, 0), &out)
	_, _ = c.Lookup(loc(1, 0), &out)

	s := c.Stats()
	assert.Equal(t, uint64(4), s.Queries)
	assert.Equal(t, uint64(3), s.Hits)
	assert.InDelta(t, 75.0, s.HitRate, 0.001)

	c.LogHitRate()
}

type recordingMetrics struct {
	hits, misses int
	inserts      int
	evictions    int
	occupancy    int
	capacity     int
}

func (m *recordingMetrics) ObserveLookup(hit bool, _ time.Duration) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) RecordInsert(evicted bool) {
	m.inserts++
	if evicted {
		m.evictions++
	}
}

func (m *recordingMetrics) RecordOccupancy(entries int) { m.occupancy = entries }
func (m *recordingMetrics) RecordCapacity(entries int)  { m.capacity = entries }

func TestMetrics(t *testing.T) {
	m := &recordingMetrics{}
	c := New(m)
	require.NoError(t, c.Create(2))
	assert.Equal(t, 2, m.capacity)

	require.NoError(t, c.Insert(loc(0, 0), blockOf(0)))
	require.NoError(t, c.Insert(loc(0, 1), blockOf(1)))
	require.NoError(t, c.Insert(loc(0, 2), blockOf(2)))

	var out jbod.Block
	_, _ = c.Lookup(loc(0, 2), &out)
	_, _ = c.Lookup(loc(0, 0), &out)

	assert.Equal(t, 3, m.inserts)
	assert.Equal(t, 1, m.evictions)
	assert.Equal(t, 2, m.occupancy)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)

	require.NoError(t, c.Destroy())
	assert.Equal(t, 0, m.capacity)
}

func TestErrorsAreTyped(t *testing.T) {
	c := New(nil)
	err := c.Destroy()

	var jerr *jbod.Error
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, jbod.CodeNotInitialized, jerr.Code)
}
