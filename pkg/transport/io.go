package transport

import (
	"errors"
	"io"
)

// fullRead fills buf from r. Interrupted calls are retried; any other
// error, or end of stream before buf is full, is a failure. A stream that
// ends before the first byte reports io.EOF, a later end io.ErrUnexpectedEOF.
func fullRead(r io.Reader, buf []byte) error {
	var got int
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		switch {
		case err == nil:
		case interrupted(err):
		case errors.Is(err, io.EOF):
			if got == 0 {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		default:
			return err
		}
	}
	return nil
}

// fullWrite writes all of buf to w, retrying interrupted calls and
// continuing after partial writes.
func fullWrite(w io.Writer, buf []byte) error {
	var sent int
	for sent < len(buf) {
		n, err := w.Write(buf[sent:])
		if n > 0 {
			sent += n
		}
		switch {
		case err == nil:
			if n <= 0 {
				return io.ErrShortWrite
			}
		case interrupted(err):
		default:
			return err
		}
	}
	return nil
}
