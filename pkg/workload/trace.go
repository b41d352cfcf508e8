// Package workload parses and replays trace files against an array.
//
// A trace is a line-oriented list of operations:
//
//	MOUNT
//	WRITE_PERMISSION
//	WRITE 100 600 0x2a     # address, length, fill byte
//	REVOKE_WRITE_PERMISSION
//	READ 100 600           # address, length
//	UNMOUNT
//
// Keywords are case-insensitive, numbers accept 0x/0o/0b prefixes, and
// everything after '#' is a comment. Blank lines are ignored.
package workload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Kind is the type of a trace operation.
type Kind int

const (
	KindMount Kind = iota + 1
	KindUnmount
	KindWritePermission
	KindRevokeWritePermission
	KindRead
	KindWrite
)

var kindNames = map[Kind]string{
	KindMount:                 "MOUNT",
	KindUnmount:               "UNMOUNT",
	KindWritePermission:       "WRITE_PERMISSION",
	KindRevokeWritePermission: "REVOKE_WRITE_PERMISSION",
	KindRead:                  "READ",
	KindWrite:                 "WRITE",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is one parsed trace line.
type Op struct {
	Kind   Kind
	Addr   uint32
	Length uint32
	Fill   byte
	Line   int
}

func (o Op) String() string {
	switch o.Kind {
	case KindRead:
		return fmt.Sprintf("%s %d %d", o.Kind, o.Addr, o.Length)
	case KindWrite:
		return fmt.Sprintf("%s %d %d 0x%02x", o.Kind, o.Addr, o.Length, o.Fill)
	default:
		return o.Kind.String()
	}
}

// ParseError reports a malformed trace line.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads a whole trace. It stops at the first malformed line.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		op, err := parseFields(fields)
		if err != nil {
			return nil, &ParseError{Line: line, Text: strings.TrimSpace(scanner.Text()), Msg: err.Error()}
		}
		op.Line = line
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return ops, nil
}

// ParseFile parses the trace stored at path.
func ParseFile(path string) ([]Op, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func parseFields(fields []string) (Op, error) {
	keyword := strings.ToUpper(fields[0])
	args := fields[1:]

	var kind Kind
	for k, name := range kindNames {
		if name == keyword {
			kind = k
			break
		}
	}

	switch kind {
	case KindMount, KindUnmount, KindWritePermission, KindRevokeWritePermission:
		if len(args) != 0 {
			return Op{}, fmt.Errorf("%s takes no arguments", keyword)
		}
		return Op{Kind: kind}, nil

	case KindRead:
		if len(args) != 2 {
			return Op{}, fmt.Errorf("READ takes <addr> <len>")
		}
		addr, length, err := parseRange(args[0], args[1])
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: kind, Addr: addr, Length: length}, nil

	case KindWrite:
		if len(args) != 3 {
			return Op{}, fmt.Errorf("WRITE takes <addr> <len> <byte>")
		}
		addr, length, err := parseRange(args[0], args[1])
		if err != nil {
			return Op{}, err
		}
		fill, err := strconv.ParseUint(args[2], 0, 8)
		if err != nil {
			return Op{}, fmt.Errorf("invalid fill byte %q", args[2])
		}
		return Op{Kind: kind, Addr: addr, Length: length, Fill: byte(fill)}, nil

	default:
		return Op{}, fmt.Errorf("unknown operation %q", fields[0])
	}
}

// parseRange parses an address and length. Range checks are left to the
// array so traces can exercise its error paths.
func parseRange(addrText, lengthText string) (uint32, uint32, error) {
	addr, err := strconv.ParseUint(addrText, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid address %q", addrText)
	}
	length, err := strconv.ParseUint(lengthText, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid length %q", lengthText)
	}
	return uint32(addr), uint32(length), nil
}
