package jbod

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcode_PackUnpack(t *testing.T) {
	op := NewOpcode(CmdWriteBlock, 5, 200)
	word := op.Pack()

	got := Unpack(word)
	assert.Equal(t, CmdWriteBlock, got.Command)
	assert.Equal(t, uint32(5), got.Disk)
	assert.Equal(t, uint32(200), got.Block)
	assert.Equal(t, uint32(0), got.Reserved)
}

func TestOpcode_BitLayout(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		want uint32
	}{
		{"Mount", NewOpcode(CmdMount, 0, 0), 0},
		{"SeekToDisk", NewOpcode(CmdSeekToDisk, 15, 0), 2 | 15<<6},
		{"SeekToBlock", NewOpcode(CmdSeekToBlock, 0, 255), 3 | 255<<10},
		{"Reserved", Opcode{Command: CmdReadBlock, Reserved: 1}, 4 | 1<<18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Pack())
		})
	}
}

func TestOpcode_PackMasksFields(t *testing.T) {
	// Out-of-range fields are truncated, never spill into neighbours.
	op := Opcode{Command: 0xFF, Disk: 0x1F, Block: 0x1FF}
	got := Unpack(op.Pack())

	assert.Equal(t, Command(0x3F), got.Command)
	assert.Equal(t, uint32(0xF), got.Disk)
	assert.Equal(t, uint32(0xFF), got.Block)
	assert.Equal(t, uint32(0), got.Reserved)
}

func TestOpcode_CarriesPayload(t *testing.T) {
	assert.True(t, NewOpcode(CmdWriteBlock, 0, 0).CarriesPayload())
	assert.False(t, NewOpcode(CmdReadBlock, 0, 0).CarriesPayload())
	assert.False(t, NewOpcode(CmdMount, 0, 0).CarriesPayload())
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		addr   uint32
		disk   uint32
		block  uint32
		offset uint32
	}{
		{0, 0, 0, 0},
		{255, 0, 0, 255},
		{256, 0, 1, 0},
		{DiskSize - 1, 0, BlocksPerDisk - 1, BlockSize - 1},
		{DiskSize, 1, 0, 0},
		{TotalSize - 1, NumDisks - 1, BlocksPerDisk - 1, BlockSize - 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.addr), func(t *testing.T) {
			loc, off := Translate(tt.addr)
			assert.Equal(t, Location{Disk: tt.disk, Block: tt.block}, loc)
			assert.Equal(t, tt.offset, off)
			assert.True(t, loc.Valid())
		})
	}
}

func TestLocation_IndexRoundTrip(t *testing.T) {
	for _, idx := range []uint32{0, 1, 255, 256, 4095} {
		assert.Equal(t, idx, LocationOf(idx).Index())
	}
	assert.False(t, Location{Disk: NumDisks}.Valid())
	assert.False(t, Location{Block: BlocksPerDisk}.Valid())
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "READ_BLOCK", CmdReadBlock.String())
	assert.Equal(t, "UNKNOWN(42)", Command(42).String())
}

func TestError_Is(t *testing.T) {
	err := NewError(CodeOutOfRange, "read", "length %d exceeds %d", 1025, MaxIOSize)
	wrapped := fmt.Errorf("replay: %w", err)

	assert.True(t, errors.Is(wrapped, ErrOutOfRange))
	assert.False(t, errors.Is(wrapped, ErrInvalidArgument))
	assert.Equal(t, CodeOutOfRange, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(0), CodeOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "read: OutOfRange: length 1025 exceeds 1024")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(CodeRemoteFailure, "recv", cause, "response header")

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrRemoteFailure)
	assert.Equal(t, "recv: RemoteFailure: response header: connection reset", err.Error())
}
