// Package raid maps a linear byte address space onto the blocks of a JBOD
// array reached through a device transport.
//
// An Array owns one session: the mount and write-permission state, the
// transport it talks through and an optional block cache. Reads consult
// the cache before the device and fill it on a miss. Writes are
// write-through: every modified block goes to the device before the cache
// entry, if any, is refreshed. A write never allocates a cache entry.
package raid

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittoraid/internal/logger"
	"github.com/marmos91/dittoraid/internal/telemetry"
	"github.com/marmos91/dittoraid/pkg/cache"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Transport performs one request/response exchange with the device. On a
// ReadBlock the returned block is copied into block.
//
// *transport.Client is the production implementation.
type Transport interface {
	Operation(ctx context.Context, op jbod.Opcode, block *jbod.Block) error
}

// Array is a client session over a JBOD device.
//
// Methods are safe for concurrent use; calls are serialized so the seek
// and read/write opcodes of one block never interleave with another call's.
type Array struct {
	mu        sync.Mutex
	transport Transport
	cache     *cache.Cache
	id        string

	mounted  bool
	writable bool
}

// New creates an unmounted, unwritable session over t. c may be nil, in
// which case the array gets its own uninitialized cache; call CreateCache
// to enable it.
func New(t Transport, c *cache.Cache) *Array {
	if c == nil {
		c = cache.New(nil)
	}
	return &Array{transport: t, cache: c, id: uuid.NewString()}
}

// ID returns the session identifier attached to logs and spans.
func (a *Array) ID() string { return a.id }

// Mounted reports whether the array is mounted.
func (a *Array) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// Writable reports whether write permission is held.
func (a *Array) Writable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writable
}

// Mount mounts the array. State changes only if the device accepts the
// request, so mounting twice fails with the device's refusal.
func (a *Array) Mount(ctx context.Context) error {
	return a.control(ctx, "mount", jbod.CmdMount, func() { a.mounted = true })
}

// Unmount unmounts the array.
func (a *Array) Unmount(ctx context.Context) error {
	return a.control(ctx, "unmount", jbod.CmdUnmount, func() { a.mounted = false })
}

// GrantWrite acquires write permission.
func (a *Array) GrantWrite(ctx context.Context) error {
	return a.control(ctx, "grant_write", jbod.CmdWritePermission, func() { a.writable = true })
}

// RevokeWrite releases write permission.
func (a *Array) RevokeWrite(ctx context.Context) error {
	return a.control(ctx, "revoke_write", jbod.CmdRevokeWritePermission, func() { a.writable = false })
}

func (a *Array) control(ctx context.Context, op string, cmd jbod.Command, apply func()) error {
	ctx, span := telemetry.StartArraySpan(ctx, op, telemetry.SessionID(a.id))
	defer span.End()
	ctx = a.logContext(ctx, op)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.transport.Operation(ctx, jbod.NewOpcode(cmd, 0, 0), nil); err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Array state change refused", logger.Command(cmd.String()), logger.Err(err))
		return err
	}
	apply()
	logger.DebugCtx(ctx, "Array state changed",
		logger.KeyMounted, a.mounted, logger.KeyWritable, a.writable)
	return nil
}

// CreateCache enables the block cache with capacity entries.
func (a *Array) CreateCache(capacity int) error {
	return a.cache.Create(capacity)
}

// DestroyCache disables the block cache and drops its contents.
func (a *Array) DestroyCache() error {
	return a.cache.Destroy()
}

// CacheEnabled reports whether reads and writes consult the cache.
func (a *Array) CacheEnabled() bool {
	return a.cache.Enabled()
}

// Cache returns the array's block cache.
func (a *Array) Cache() *cache.Cache {
	return a.cache
}

// Read copies length bytes starting at logical address addr into buf and
// returns the number of bytes read.
//
// A failure on any block aborts the call; bytes already copied into buf
// are left in place.
func (a *Array) Read(ctx context.Context, addr, length uint32, buf []byte) (int, error) {
	ctx, span := telemetry.StartArraySpan(ctx, "read",
		telemetry.SessionID(a.id), telemetry.Address(addr), telemetry.Length(length))
	defer span.End()
	ctx = a.logContext(ctx, "read")

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mounted {
		return 0, jbod.NewError(jbod.CodePermissionDenied, "read", "array not mounted")
	}
	if err := checkRange("read", addr, length, buf); err != nil || length == 0 {
		return 0, err
	}

	n := 0
	var err error
	telemetry.ProfileOperation(ctx, "read", a.id, func(ctx context.Context) {
		var block jbod.Block
		err = forEachBlock(addr, length, func(loc jbod.Location, off, count uint32) error {
			if err := a.fetch(ctx, loc, &block, true); err != nil {
				return err
			}
			n += copy(buf[n:n+int(count)], block[off:off+count])
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}

	logger.DebugCtx(ctx, "Read complete", logger.Address(addr), logger.KeyBytesRead, n)
	return n, nil
}

// Write stores length bytes from buf at logical address addr and returns
// the number of bytes written. Partially covered blocks are read, patched
// and written back whole.
//
// A failure on any block aborts the call. Blocks already written stay
// written.
func (a *Array) Write(ctx context.Context, addr, length uint32, buf []byte) (int, error) {
	ctx, span := telemetry.StartArraySpan(ctx, "write",
		telemetry.SessionID(a.id), telemetry.Address(addr), telemetry.Length(length))
	defer span.End()
	ctx = a.logContext(ctx, "write")

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mounted {
		return 0, jbod.NewError(jbod.CodePermissionDenied, "write", "array not mounted")
	}
	if !a.writable {
		return 0, jbod.NewError(jbod.CodePermissionDenied, "write", "write permission not held")
	}
	if err := checkRange("write", addr, length, buf); err != nil || length == 0 {
		return 0, err
	}

	n := 0
	var err error
	telemetry.ProfileOperation(ctx, "write", a.id, func(ctx context.Context) {
		var block jbod.Block
		err = forEachBlock(addr, length, func(loc jbod.Location, off, count uint32) error {
			if err := a.fetch(ctx, loc, &block, false); err != nil {
				return err
			}
			n += copy(block[off:off+count], buf[n:n+int(count)])

			if err := a.remote(ctx, loc, jbod.CmdWriteBlock, &block); err != nil {
				return err
			}
			if a.cache.Enabled() {
				a.cache.Update(loc, &block)
			}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, err
	}

	logger.DebugCtx(ctx, "Write complete", logger.Address(addr), logger.KeyBytesWritten, n)
	return n, nil
}

// fetch loads the current content of loc into block, from the cache when
// possible. fill controls whether a device read is inserted into the cache.
func (a *Array) fetch(ctx context.Context, loc jbod.Location, block *jbod.Block, fill bool) error {
	useCache := a.cache.Enabled()
	if useCache {
		hit, err := a.cache.Lookup(loc, block)
		if err != nil {
			return err
		}
		if hit {
			logger.DebugCtx(ctx, "Block served from cache",
				logger.Disk(loc.Disk), logger.Block(loc.Block), logger.Source("cache"))
			return nil
		}
	}

	if err := a.remote(ctx, loc, jbod.CmdReadBlock, block); err != nil {
		return err
	}

	if useCache && fill {
		if err := a.cache.Insert(loc, block); err != nil {
			logger.DebugCtx(ctx, "Cache insert skipped",
				logger.Disk(loc.Disk), logger.Block(loc.Block), logger.Err(err))
		}
	}
	return nil
}

// remote positions the device cursor on loc and runs cmd there.
func (a *Array) remote(ctx context.Context, loc jbod.Location, cmd jbod.Command, block *jbod.Block) error {
	steps := [...]jbod.Opcode{
		jbod.NewOpcode(jbod.CmdSeekToDisk, loc.Disk, 0),
		jbod.NewOpcode(jbod.CmdSeekToBlock, 0, loc.Block),
		jbod.NewOpcode(cmd, 0, 0),
	}
	for i, op := range steps {
		var b *jbod.Block
		if i == len(steps)-1 {
			b = block
		}
		if err := a.transport.Operation(ctx, op, b); err != nil {
			logger.DebugCtx(ctx, "Block operation failed",
				logger.Command(op.Command.String()), logger.Disk(loc.Disk), logger.Block(loc.Block), logger.Err(err))
			return err
		}
	}
	return nil
}

func (a *Array) logContext(ctx context.Context, op string) context.Context {
	lc := logger.NewLogContext(a.id).WithOperation(op)
	if telemetry.IsEnabled() {
		lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	}
	return logger.WithContext(ctx, lc)
}
