//go:build unix

package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// step is one scripted Read or Write result.
type step struct {
	n   int
	err error
}

// scriptedReader serves data in the chunk sizes given by steps. Once the
// script is exhausted it reports io.EOF.
type scriptedReader struct {
	data  []byte
	steps []step
	calls int
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	r.calls++
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	n := min(s.n, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, s.err
}

// scriptedWriter accepts at most steps[i].n bytes on the i-th call.
type scriptedWriter struct {
	buf   bytes.Buffer
	steps []step
	calls int
}

func (w *scriptedWriter) Write(p []byte) (int, error) {
	w.calls++
	if len(w.steps) == 0 {
		return w.buf.Write(p)
	}
	s := w.steps[0]
	w.steps = w.steps[1:]
	n := min(s.n, len(p))
	w.buf.Write(p[:n])
	return n, s.err
}

func TestFullRead_PartialAndInterrupted(t *testing.T) {
	data := []byte("0123456789")
	r := &scriptedReader{
		data: data,
		steps: []step{
			{n: 3},
			{n: 0, err: unix.EINTR},
			{n: 1},
			{n: 2, err: unix.EINTR},
			{n: 10},
		},
	}

	buf := make([]byte, len(data))
	require.NoError(t, fullRead(r, buf))
	assert.Equal(t, data, buf)
	assert.Equal(t, 5, r.calls)
}

func TestFullRead_ShortStreamFails(t *testing.T) {
	r := &scriptedReader{data: []byte("abc"), steps: []step{{n: 3}}}

	err := fullRead(r, make([]byte, 5))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFullRead_EmptyStreamReportsEOF(t *testing.T) {
	err := fullRead(&scriptedReader{}, make([]byte, HeaderSize))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFullRead_DataWithEOF(t *testing.T) {
	r := &scriptedReader{data: []byte("abcde"), steps: []step{{n: 5, err: io.EOF}}}

	buf := make([]byte, 5)
	require.NoError(t, fullRead(r, buf))
	assert.Equal(t, "abcde", string(buf))
}

func TestFullRead_HardError(t *testing.T) {
	boom := errors.New("connection reset")
	r := &scriptedReader{data: []byte("abcdef"), steps: []step{{n: 2}, {n: 0, err: boom}}}

	assert.ErrorIs(t, fullRead(r, make([]byte, 6)), boom)
}

func TestFullWrite_PartialAndInterrupted(t *testing.T) {
	w := &scriptedWriter{steps: []step{
		{n: 2},
		{n: 0, err: unix.EINTR},
		{n: 1, err: unix.EINTR},
		{n: 100},
	}}

	data := []byte("hello, device")
	require.NoError(t, fullWrite(w, data))
	assert.Equal(t, data, w.buf.Bytes())
	assert.Equal(t, 4, w.calls)
}

func TestFullWrite_HardError(t *testing.T) {
	boom := errors.New("broken pipe")
	w := &scriptedWriter{steps: []step{{n: 1}, {n: 0, err: boom}}}

	assert.ErrorIs(t, fullWrite(w, []byte("abc")), boom)
}

func TestFullWrite_NoProgress(t *testing.T) {
	w := &scriptedWriter{steps: []step{{n: 0}}}

	assert.ErrorIs(t, fullWrite(w, []byte("abc")), io.ErrShortWrite)
}
