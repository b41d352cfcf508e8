package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoraid/pkg/jbod"
)

func patternBlock(seed byte) *jbod.Block {
	var b jbod.Block
	for i := range b {
		b[i] = seed + byte(i)
	}
	return &b
}

func TestSendRequest_WriteBlockCarriesPayload(t *testing.T) {
	var buf bytes.Buffer
	op := jbod.NewOpcode(jbod.CmdWriteBlock, 5, 200)
	block := patternBlock(7)

	require.NoError(t, SendRequest(&buf, op, block))

	pkt := buf.Bytes()
	require.Len(t, pkt, HeaderSize+jbod.BlockSize)
	assert.Equal(t, op.Pack(), binary.BigEndian.Uint32(pkt[:4]))
	assert.Equal(t, InfoPayload, pkt[4])
	assert.Equal(t, block[:], pkt[HeaderSize:])
}

func TestSendRequest_NoPayload(t *testing.T) {
	tests := []struct {
		name  string
		op    jbod.Opcode
		block *jbod.Block
	}{
		{"read with buffer", jbod.NewOpcode(jbod.CmdReadBlock, 1, 2), patternBlock(1)},
		{"seek", jbod.NewOpcode(jbod.CmdSeekToDisk, 3, 0), nil},
		{"write without block", jbod.NewOpcode(jbod.CmdWriteBlock, 1, 1), nil},
		{"mount", jbod.NewOpcode(jbod.CmdMount, 0, 0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, SendRequest(&buf, tt.op, tt.block))

			pkt := buf.Bytes()
			require.Len(t, pkt, HeaderSize)
			assert.Equal(t, tt.op.Pack(), binary.BigEndian.Uint32(pkt[:4]))
			assert.Equal(t, byte(0), pkt[4])
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	op := jbod.NewOpcode(jbod.CmdWriteBlock, 15, 255)
	require.NoError(t, SendRequest(&buf, op, patternBlock(3)))

	var got jbod.Block
	h, err := ReadRequest(&buf, &got)
	require.NoError(t, err)
	assert.Equal(t, op, h.Opcode)
	assert.True(t, h.HasPayload())
	assert.False(t, h.Failed())
	assert.Equal(t, *patternBlock(3), got)
}

func TestResponseRoundTrip(t *testing.T) {
	t.Run("payload", func(t *testing.T) {
		var buf bytes.Buffer
		op := jbod.NewOpcode(jbod.CmdReadBlock, 0, 0)
		require.NoError(t, WriteResponse(&buf, op.Pack(), false, patternBlock(9)))

		var got jbod.Block
		h, err := RecvResponse(&buf, &got)
		require.NoError(t, err)
		assert.Equal(t, op, h.Opcode)
		assert.Equal(t, op.Pack(), h.Word)
		assert.True(t, h.HasPayload())
		assert.Equal(t, *patternBlock(9), got)
	})

	t.Run("failure without payload", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteResponse(&buf, jbod.NewOpcode(jbod.CmdMount, 0, 0).Pack(), true, nil))
		assert.Equal(t, HeaderSize, buf.Len())

		h, err := RecvResponse(&buf, nil)
		require.NoError(t, err)
		assert.True(t, h.Failed())
		assert.False(t, h.HasPayload())
	})

	t.Run("nil destination keeps stream aligned", func(t *testing.T) {
		var buf bytes.Buffer
		read := jbod.NewOpcode(jbod.CmdReadBlock, 0, 0).Pack()
		mount := jbod.NewOpcode(jbod.CmdMount, 0, 0).Pack()
		require.NoError(t, WriteResponse(&buf, read, false, patternBlock(1)))
		require.NoError(t, WriteResponse(&buf, mount, false, nil))

		_, err := RecvResponse(&buf, nil)
		require.NoError(t, err)
		h, err := RecvResponse(&buf, nil)
		require.NoError(t, err)
		assert.Equal(t, jbod.CmdMount, h.Opcode.Command)
	})
}

func TestRecvResponse_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, 4, false, patternBlock(0)))
	truncated := bytes.NewReader(buf.Bytes()[:HeaderSize+10])

	_, err := RecvResponse(truncated, new(jbod.Block))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
