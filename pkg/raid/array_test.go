package raid

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoraid/pkg/cache"
	"github.com/marmos91/dittoraid/pkg/device"
	"github.com/marmos91/dittoraid/pkg/device/server/servertest"
	"github.com/marmos91/dittoraid/pkg/device/store/memory"
	"github.com/marmos91/dittoraid/pkg/jbod"
	"github.com/marmos91/dittoraid/pkg/transport"
)

// deviceTransport runs opcodes against an in-process device and records
// every call.
type deviceTransport struct {
	mu   sync.Mutex
	dev  *device.Device
	ops  []jbod.Opcode
	fail func(op jbod.Opcode, n int) bool
}

func newDeviceTransport() *deviceTransport {
	return &deviceTransport{dev: device.New(memory.New())}
}

func (d *deviceTransport) Operation(ctx context.Context, op jbod.Opcode, block *jbod.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ops = append(d.ops, op)
	if d.fail != nil && d.fail(op, len(d.ops)) {
		return jbod.NewError(jbod.CodeRemoteFailure, "operation", "injected failure")
	}

	var in *jbod.Block
	if op.CarriesPayload() {
		in = block
	}
	var out jbod.Block
	payload, err := d.dev.Execute(ctx, op, in, &out)
	if err != nil {
		return jbod.WrapError(jbod.CodeRemoteFailure, "operation", err, "%s", op.Command)
	}
	if payload && block != nil {
		*block = out
	}
	return nil
}

func (d *deviceTransport) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = nil
}

func (d *deviceTransport) calls() []jbod.Opcode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]jbod.Opcode(nil), d.ops...)
}

func (d *deviceTransport) count(cmd jbod.Command) int {
	n := 0
	for _, op := range d.calls() {
		if op.Command == cmd {
			n++
		}
	}
	return n
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// newArray returns a mounted, writable array over an in-process device.
func newArray(t *testing.T) (*Array, *deviceTransport) {
	t.Helper()
	tr := newDeviceTransport()
	a := New(tr, nil)
	ctx := context.Background()
	require.NoError(t, a.Mount(ctx))
	require.NoError(t, a.GrantWrite(ctx))
	tr.reset()
	return a, tr
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	tr := newDeviceTransport()
	a := New(tr, nil)
	assert.NotEmpty(t, a.ID())
	assert.False(t, a.Mounted())
	assert.False(t, a.Writable())

	require.NoError(t, a.Mount(ctx))
	assert.True(t, a.Mounted())

	err := a.Mount(ctx)
	assert.ErrorIs(t, err, jbod.ErrRemoteFailure, "second mount is refused by the device")
	assert.True(t, a.Mounted())

	err = a.RevokeWrite(ctx)
	assert.ErrorIs(t, err, jbod.ErrRemoteFailure)
	assert.False(t, a.Writable())

	require.NoError(t, a.GrantWrite(ctx))
	assert.True(t, a.Writable())
	require.NoError(t, a.RevokeWrite(ctx))
	assert.False(t, a.Writable())

	require.NoError(t, a.Unmount(ctx))
	assert.False(t, a.Mounted())
	assert.ErrorIs(t, a.Unmount(ctx), jbod.ErrRemoteFailure)
}

func TestStateUnchangedOnTransportFailure(t *testing.T) {
	tr := newDeviceTransport()
	tr.fail = func(jbod.Opcode, int) bool { return true }
	a := New(tr, nil)

	assert.ErrorIs(t, a.Mount(context.Background()), jbod.ErrRemoteFailure)
	assert.False(t, a.Mounted())
}

func TestReadRequiresMount(t *testing.T) {
	tr := newDeviceTransport()
	a := New(tr, nil)

	_, err := a.Read(context.Background(), 0, 16, make([]byte, 16))
	assert.ErrorIs(t, err, jbod.ErrPermissionDenied)
	_, err = a.Read(context.Background(), 0, 0, nil)
	assert.ErrorIs(t, err, jbod.ErrPermissionDenied, "mount is checked before length")
	assert.Empty(t, tr.calls())
}

func TestWriteRequiresPermission(t *testing.T) {
	ctx := context.Background()
	tr := newDeviceTransport()
	a := New(tr, nil)

	_, err := a.Write(ctx, 0, 4, []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, jbod.ErrPermissionDenied, "unmounted")

	require.NoError(t, a.Mount(ctx))
	tr.reset()
	_, err = a.Write(ctx, 0, 4, []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, jbod.ErrPermissionDenied, "no write permission")
	assert.Empty(t, tr.calls())
}

func TestBoundaries(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)
	buf := make([]byte, 2048)

	n, err := a.Read(ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = a.Write(ctx, 500, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, tr.calls(), "zero-length transfers make no remote calls")

	_, err = a.Read(ctx, 0, 1025, buf)
	assert.ErrorIs(t, err, jbod.ErrOutOfRange)
	_, err = a.Write(ctx, 0, 1025, buf)
	assert.ErrorIs(t, err, jbod.ErrOutOfRange)

	n, err = a.Read(ctx, jbod.TotalSize-1024, 1024, buf)
	require.NoError(t, err)
	assert.Equal(t, 1024, n, "range ending exactly at capacity")

	_, err = a.Read(ctx, jbod.TotalSize-1023, 1024, buf)
	assert.ErrorIs(t, err, jbod.ErrOutOfRange, "one byte past capacity")
	_, err = a.Write(ctx, jbod.TotalSize, 1, buf)
	assert.ErrorIs(t, err, jbod.ErrOutOfRange)

	_, err = a.Read(ctx, 0, 64, make([]byte, 63))
	assert.ErrorIs(t, err, jbod.ErrInvalidArgument)
	_, err = a.Write(ctx, 0, 64, nil)
	assert.ErrorIs(t, err, jbod.ErrInvalidArgument)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	ranges := []struct {
		name         string
		addr, length uint32
	}{
		{"AlignedBlock", 512, 256},
		{"MidBlock", 1000, 10},
		{"SpansBoundary", 250, 12},
		{"StartsAndEndsMidBlock", 300, 700},
		{"MaxSize", 4096 + 17, jbod.MaxIOSize},
		{"CrossesDisk", jbod.DiskSize - 100, 300},
		{"EndOfArray", jbod.TotalSize - 5, 5},
	}

	for _, tt := range ranges {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newArray(t)
			data := pattern(int(tt.length), byte(tt.addr))

			n, err := a.Write(ctx, tt.addr, tt.length, data)
			require.NoError(t, err)
			assert.Equal(t, int(tt.length), n)

			got := make([]byte, tt.length)
			n, err = a.Read(ctx, tt.addr, tt.length, got)
			require.NoError(t, err)
			assert.Equal(t, int(tt.length), n)
			assert.Equal(t, data, got)
		})
	}
}

func TestPartialWritePreservesNeighbours(t *testing.T) {
	ctx := context.Background()
	a, _ := newArray(t)

	base := pattern(768, 3)
	_, err := a.Write(ctx, 0, 768, base)
	require.NoError(t, err)

	_, err = a.Write(ctx, 250, 20, bytes.Repeat([]byte{0xEE}, 20))
	require.NoError(t, err)

	want := append([]byte(nil), base...)
	copy(want[250:270], bytes.Repeat([]byte{0xEE}, 20))

	got := make([]byte, 768)
	_, err = a.Read(ctx, 0, 768, got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUnwrittenReadsZero(t *testing.T) {
	a, _ := newArray(t)
	got := pattern(100, 1)
	_, err := a.Read(context.Background(), 9000, 100, got)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 100), got)
}

func TestRemoteSequence(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)

	addr := uint32(3*jbod.DiskSize + 17*jbod.BlockSize + 5)
	_, err := a.Read(ctx, addr, 4, make([]byte, 4))
	require.NoError(t, err)

	assert.Equal(t, []jbod.Opcode{
		jbod.NewOpcode(jbod.CmdSeekToDisk, 3, 0),
		jbod.NewOpcode(jbod.CmdSeekToBlock, 0, 17),
		jbod.NewOpcode(jbod.CmdReadBlock, 0, 0),
	}, tr.calls())

	tr.reset()
	_, err = a.Write(ctx, addr, 4, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []jbod.Opcode{
		jbod.NewOpcode(jbod.CmdSeekToDisk, 3, 0),
		jbod.NewOpcode(jbod.CmdSeekToBlock, 0, 17),
		jbod.NewOpcode(jbod.CmdReadBlock, 0, 0),
		jbod.NewOpcode(jbod.CmdSeekToDisk, 3, 0),
		jbod.NewOpcode(jbod.CmdSeekToBlock, 0, 17),
		jbod.NewOpcode(jbod.CmdWriteBlock, 0, 0),
	}, tr.calls(), "write reads the block, then writes it back")
}

func TestFailureAbortsRemainder(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)

	reads := 0
	tr.fail = func(op jbod.Opcode, _ int) bool {
		if op.Command != jbod.CmdReadBlock {
			return false
		}
		reads++
		return reads == 2
	}

	buf := make([]byte, 600)
	n, err := a.Read(ctx, 100, 600, buf)
	assert.ErrorIs(t, err, jbod.ErrRemoteFailure)
	assert.Zero(t, n)
	assert.Equal(t, 2, tr.count(jbod.CmdReadBlock), "third block never requested")
}

func TestPartialWriteFailureKeepsAppliedBlocks(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)

	writes := 0
	tr.fail = func(op jbod.Opcode, _ int) bool {
		if op.Command != jbod.CmdWriteBlock {
			return false
		}
		writes++
		return writes == 2
	}

	data := bytes.Repeat([]byte{0x11}, 512)
	_, err := a.Write(ctx, 0, 512, data)
	assert.ErrorIs(t, err, jbod.ErrRemoteFailure)

	tr.fail = nil
	got := make([]byte, 512)
	_, err = a.Read(ctx, 0, 512, got)
	require.NoError(t, err)
	assert.Equal(t, data[:256], got[:256], "first block was written")
	assert.Equal(t, make([]byte, 256), got[256:], "second block was not")
}

// The end-to-end scenario: write 600 bytes at address 100, drop write
// permission and read them back.
func TestWriteRevokeRead(t *testing.T) {
	ctx := context.Background()
	a, _ := newArray(t)
	data := pattern(600, 42)

	n, err := a.Write(ctx, 100, 600, data)
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	require.NoError(t, a.RevokeWrite(ctx))

	got := make([]byte, 600)
	n, err = a.Read(ctx, 100, 600, got)
	require.NoError(t, err)
	assert.Equal(t, 600, n)
	assert.Equal(t, data, got)
}

func TestCache_ReadHitSkipsDevice(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)
	require.NoError(t, a.CreateCache(8))
	assert.True(t, a.CacheEnabled())

	buf := make([]byte, 600)
	_, err := a.Read(ctx, 100, 600, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.count(jbod.CmdReadBlock))
	assert.Equal(t, 3, a.Cache().Len())

	tr.reset()
	_, err = a.Read(ctx, 100, 600, buf)
	require.NoError(t, err)
	assert.Empty(t, tr.calls(), "all three blocks served from cache")

	stats := a.Cache().Stats()
	assert.Equal(t, uint64(6), stats.Queries)
	assert.Equal(t, uint64(3), stats.Hits)
}

func TestCache_WriteThroughUpdatesCachedBlock(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)
	require.NoError(t, a.CreateCache(4))

	buf := make([]byte, 256)
	_, err := a.Read(ctx, 0, 256, buf)
	require.NoError(t, err)

	tr.reset()
	_, err = a.Write(ctx, 10, 3, []byte{7, 8, 9})
	require.NoError(t, err)
	assert.Zero(t, tr.count(jbod.CmdReadBlock), "block content came from the cache")
	assert.Equal(t, 1, tr.count(jbod.CmdWriteBlock), "the device is always written")

	tr.reset()
	_, err = a.Read(ctx, 10, 3, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8, 9}, buf[:3])
	assert.Empty(t, tr.calls(), "updated block served from cache")
}

func TestCache_WriteDoesNotAllocate(t *testing.T) {
	ctx := context.Background()
	a, tr := newArray(t)
	require.NoError(t, a.CreateCache(4))

	_, err := a.Write(ctx, 1024, 16, pattern(16, 9))
	require.NoError(t, err)
	assert.Zero(t, a.Cache().Len(), "write-through never inserts")

	tr.reset()
	got := make([]byte, 16)
	_, err = a.Read(ctx, 1024, 16, got)
	require.NoError(t, err)
	assert.Equal(t, pattern(16, 9), got)
	assert.Equal(t, 1, tr.count(jbod.CmdReadBlock))
	assert.Equal(t, 1, a.Cache().Len())
}

func TestCache_Lifecycle(t *testing.T) {
	a, _ := newArray(t)
	assert.False(t, a.CacheEnabled())
	assert.ErrorIs(t, a.CreateCache(1), jbod.ErrInvalidArgument)
	require.NoError(t, a.CreateCache(2))
	assert.ErrorIs(t, a.CreateCache(2), jbod.ErrInvalidArgument, "only one cache at a time")
	require.NoError(t, a.DestroyCache())
	assert.ErrorIs(t, a.DestroyCache(), jbod.ErrNotInitialized)
	assert.False(t, a.CacheEnabled())
}

func TestSharedCache(t *testing.T) {
	c := cache.New(nil)
	require.NoError(t, c.Create(16))
	a := New(newDeviceTransport(), c)
	assert.Same(t, c, a.Cache())
	assert.True(t, a.CacheEnabled())
}

func TestOverTCP(t *testing.T) {
	ctx := context.Background()
	srv := servertest.Start(t, nil, nil)

	client, err := transport.Dial(ctx, servertest.Addr(srv), time.Second, nil)
	require.NoError(t, err)
	defer client.Close()

	a := New(client, nil)
	require.NoError(t, a.CreateCache(32))
	require.NoError(t, a.Mount(ctx))
	require.NoError(t, a.GrantWrite(ctx))

	data := pattern(1024, 5)
	n, err := a.Write(ctx, jbod.DiskSize-512, 1024, data)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)

	require.NoError(t, a.RevokeWrite(ctx))

	got := make([]byte, 1024)
	n, err = a.Read(ctx, jbod.DiskSize-512, 1024, got)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.Equal(t, data, got)

	require.NoError(t, a.Unmount(ctx))
	_, err = a.Read(ctx, 0, 1, got)
	assert.ErrorIs(t, err, jbod.ErrPermissionDenied)
}

func TestClosedConnection(t *testing.T) {
	ctx := context.Background()
	srv := servertest.Start(t, nil, nil)
	client, err := transport.Dial(ctx, servertest.Addr(srv), time.Second, nil)
	require.NoError(t, err)

	a := New(client, nil)
	require.NoError(t, a.Mount(ctx))
	require.NoError(t, client.Close())

	_, err = a.Read(ctx, 0, 8, make([]byte, 8))
	assert.ErrorIs(t, err, jbod.ErrConnectionAbsent)
}
