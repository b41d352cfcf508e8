// Package badger provides a block store persisted in a BadgerDB directory.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Config holds configuration for the Badger block store.
type Config struct {
	// Path is the database directory. Empty runs Badger in memory.
	Path string

	// SyncWrites makes every write durable before it is acknowledged.
	SyncWrites bool

	// ValueLogFileSize caps each value log file. 0 keeps Badger's default.
	ValueLogFileSize int64
}

// Store keeps one key per written block: "d/<disk>/b/<block>".
type Store struct {
	db     *badgerdb.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the database described by cfg.
func New(cfg Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).
		WithLogger(nil).
		WithSyncWrites(cfg.SyncWrites)
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
	}
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func blockKey(loc jbod.Location) []byte {
	return fmt.Appendf(nil, "d/%02d/b/%03d", loc.Disk, loc.Block)
}

func (s *Store) ReadBlock(_ context.Context, loc jbod.Location, out *jbod.Block) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}

	return s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blockKey(loc))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			*out = jbod.Block{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("badger get %s: %w", loc, err)
		}
		return item.Value(func(val []byte) error {
			if len(val) != jbod.BlockSize {
				return fmt.Errorf("badger value for %s has %d bytes", loc, len(val))
			}
			copy(out[:], val)
			return nil
		})
	})
}

func (s *Store) WriteBlock(_ context.Context, loc jbod.Location, in *jbod.Block) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}

	val := make([]byte, jbod.BlockSize)
	copy(val, in[:])
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(blockKey(loc), val)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", loc, err)
	}
	return nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
