package bytesize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a byte count or byte address parsed from a human-readable
// string. Besides the binary units it understands the array geometry, so
// "3disk", "10blk" and "1Ki" all name exact byte offsets.
//
// Supported formats:
//   - Plain numbers: 100, 65536
//   - Binary units (x1024): Ki/KiB, Mi/MiB
//   - Geometry units: blk/block (256 bytes), disk (65536 bytes)
//   - Bytes: B
//   - Sums of the above joined by '+': "2disk+10blk+3"
type ByteSize uint64

const (
	B   ByteSize = 1
	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB

	Block ByteSize = 256
	Disk  ByteSize = 256 * Block
)

var termPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]ByteSize{
	"":      B,
	"b":     B,
	"ki":    KiB,
	"kib":   KiB,
	"mi":    MiB,
	"mib":   MiB,
	"blk":   Block,
	"block": Block,
	"disk":  Disk,
}

// Parse parses a size expression such as "600", "4blk" or "1disk+100".
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	var total ByteSize
	for _, term := range strings.Split(s, "+") {
		v, err := parseTerm(term)
		if err != nil {
			return 0, err
		}
		if total > math.MaxUint64-v {
			return 0, fmt.Errorf("byte size overflows: %q", s)
		}
		total += v
	}
	return total, nil
}

func parseTerm(term string) (ByteSize, error) {
	matches := termPattern.FindStringSubmatch(term)
	if matches == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", term)
	}

	num, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", matches[1])
	}

	multiplier, ok := unitMultipliers[strings.ToLower(matches[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", matches[2])
	}
	if num > uint64(math.MaxUint64/multiplier) {
		return 0, fmt.Errorf("byte size overflows: %q", term)
	}
	return ByteSize(num) * multiplier, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize can be
// decoded by mapstructure and used as a flag value.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// Set implements pflag.Value.
func (b *ByteSize) Set(s string) error {
	return b.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (b *ByteSize) Type() string {
	return "bytes"
}

// String renders whole binary units compactly and falls back to a decimal
// byte count otherwise.
func (b ByteSize) String() string {
	switch {
	case b >= MiB && b%MiB == 0:
		return fmt.Sprintf("%dMiB", b/MiB)
	case b >= KiB && b%KiB == 0:
		return fmt.Sprintf("%dKiB", b/KiB)
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Uint32 returns the value as a uint32, or an error when it does not fit.
func (b ByteSize) Uint32() (uint32, error) {
	if b > math.MaxUint32 {
		return 0, fmt.Errorf("byte size %d exceeds 32 bits", uint64(b))
	}
	return uint32(b), nil
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}
