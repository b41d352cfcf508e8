// Package memory provides an in-memory block store.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Store keeps blocks in a map indexed by array-wide block index. Only
// written blocks take memory.
type Store struct {
	mu     sync.RWMutex
	blocks map[uint32]*jbod.Block
	closed bool
}

// New creates a new in-memory block store.
func New() *Store {
	return &Store{blocks: make(map[uint32]*jbod.Block)}
}

func (s *Store) ReadBlock(_ context.Context, loc jbod.Location, out *jbod.Block) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	if b, ok := s.blocks[loc.Index()]; ok {
		*out = *b
	} else {
		*out = jbod.Block{}
	}
	return nil
}

func (s *Store) WriteBlock(_ context.Context, loc jbod.Location, in *jbod.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	copied := *in
	s.blocks[loc.Index()] = &copied
	return nil
}

// Close marks the store as closed and drops its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.blocks = nil
	return nil
}

// BlockCount returns the number of blocks written so far.
func (s *Store) BlockCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

var _ store.Store = (*Store)(nil)
