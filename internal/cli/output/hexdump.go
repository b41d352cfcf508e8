package output

import (
	"fmt"
	"strings"
)

const hexDumpWidth = 16

// HexDump renders bytes read from the array. Each row covers 16 bytes and
// is labelled with its logical address, so rows line up with Base.
type HexDump struct {
	Base uint32 `json:"address" yaml:"address"`
	Data []byte `json:"data" yaml:"data"`
}

func (h HexDump) Headers() []string {
	return []string{"ADDRESS", "HEX", "ASCII"}
}

func (h HexDump) Rows() [][]string {
	rows := make([][]string, 0, (len(h.Data)+hexDumpWidth-1)/hexDumpWidth)
	for off := 0; off < len(h.Data); off += hexDumpWidth {
		end := min(off+hexDumpWidth, len(h.Data))
		line := h.Data[off:end]

		var hex, ascii strings.Builder
		for i, b := range line {
			if i > 0 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02x", b)
			if b >= 0x20 && b < 0x7f {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("0x%06x", h.Base+uint32(off)),
			hex.String(),
			ascii.String(),
		})
	}
	return rows
}
