package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/dittoraid/pkg/jbod"
)

// HeaderSize is the size of a request or response header: a big-endian
// opcode word followed by one info byte.
const HeaderSize = 5

// Info byte flags.
const (
	// InfoFailed is set in a response when the device rejected the opcode.
	// Requests never set it.
	InfoFailed byte = 1 << 0

	// InfoPayload is set when exactly one block follows the header.
	InfoPayload byte = 1 << 1
)

// Header is a decoded request or response header.
type Header struct {
	Opcode jbod.Opcode
	Word   uint32
	Info   byte
}

// Failed reports whether the response carries the failure flag.
func (h Header) Failed() bool { return h.Info&InfoFailed != 0 }

// HasPayload reports whether a block follows the header.
func (h Header) HasPayload() bool { return h.Info&InfoPayload != 0 }

func encodeHeader(buf []byte, word uint32, info byte) {
	binary.BigEndian.PutUint32(buf[0:4], word)
	buf[4] = info
}

func decodeHeader(buf []byte) Header {
	word := binary.BigEndian.Uint32(buf[0:4])
	return Header{Opcode: jbod.Unpack(word), Word: word, Info: buf[4]}
}

// encodePacket builds a header plus optional block in one buffer so that a
// packet goes out in a single full write.
func encodePacket(word uint32, info byte, block *jbod.Block) []byte {
	size := HeaderSize
	if block != nil {
		size += jbod.BlockSize
	}
	pkt := make([]byte, size)
	encodeHeader(pkt, word, info)
	if block != nil {
		copy(pkt[HeaderSize:], block[:])
	}
	return pkt
}

// SendRequest writes one request packet. The block is sent, and the
// payload flag set, only for WriteBlock with a non-nil block.
func SendRequest(w io.Writer, op jbod.Opcode, block *jbod.Block) error {
	var info byte
	if !op.CarriesPayload() || block == nil {
		block = nil
	} else {
		info |= InfoPayload
	}

	if err := fullWrite(w, encodePacket(op.Pack(), info, block)); err != nil {
		return fmt.Errorf("send %s: %w", op.Command, err)
	}
	return nil
}

// RecvResponse reads one response packet. When the header announces a
// payload it is read into block; a nil block discards the payload so the
// stream stays aligned.
func RecvResponse(r io.Reader, block *jbod.Block) (Header, error) {
	h, err := readPacket(r, block)
	if err != nil {
		return Header{}, fmt.Errorf("receive response: %w", err)
	}
	return h, nil
}

// ReadRequest is the device side of SendRequest: it reads one request
// header and, when flagged, its block into block.
func ReadRequest(r io.Reader, block *jbod.Block) (Header, error) {
	return readPacket(r, block)
}

// WriteResponse is the device side of RecvResponse. A non-nil block is
// sent as payload.
func WriteResponse(w io.Writer, word uint32, failed bool, block *jbod.Block) error {
	var info byte
	if failed {
		info |= InfoFailed
	}
	if block != nil {
		info |= InfoPayload
	}
	return fullWrite(w, encodePacket(word, info, block))
}

func readPacket(r io.Reader, block *jbod.Block) (Header, error) {
	var hdr [HeaderSize]byte
	if err := fullRead(r, hdr[:]); err != nil {
		return Header{}, err
	}
	h := decodeHeader(hdr[:])

	if h.HasPayload() {
		if block == nil {
			block = new(jbod.Block)
		}
		if err := fullRead(r, block[:]); err != nil {
			return Header{}, fmt.Errorf("payload: %w", err)
		}
	}
	return h, nil
}
