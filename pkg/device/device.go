// Package device implements a reference JBOD device: it executes opcodes
// against a block store, keeping the mount state, write permission and
// seek cursor of one session.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittoraid/pkg/device/store"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

// Errors returned by Execute. Every one of them turns into the failure
// flag on the wire.
var (
	ErrAlreadyMounted      = errors.New("device already mounted")
	ErrNotMounted          = errors.New("device not mounted")
	ErrAlreadyWritable     = errors.New("write permission already granted")
	ErrNotWritable         = errors.New("write permission not granted")
	ErrInvalidDisk         = errors.New("disk id out of range")
	ErrInvalidBlock        = errors.New("block id out of range")
	ErrMissingPayload      = errors.New("write without payload")
	ErrUnknownCommand      = errors.New("unknown command")
	ErrReservedBitsNonZero = errors.New("reserved opcode bits set")
)

// State is a snapshot of a session.
type State struct {
	Mounted  bool
	Writable bool
	Disk     uint32
	Block    uint32
}

// Device is one session with the array. It is not safe for concurrent use;
// the server gives each connection its own Device over a shared store.
type Device struct {
	store store.Store
	state State
}

// New creates an unmounted, unwritable session over s with the cursor at
// disk 0, block 0.
func New(s store.Store) *Device {
	return &Device{store: s}
}

// State returns the current session state.
func (d *Device) State() State {
	return d.state
}

// Execute runs one opcode. in is the request payload, nil when none was
// sent. For a successful ReadBlock the block is copied into out and
// payload is true.
func (d *Device) Execute(ctx context.Context, op jbod.Opcode, in, out *jbod.Block) (payload bool, err error) {
	if op.Reserved != 0 {
		return false, ErrReservedBitsNonZero
	}

	if op.Command == jbod.CmdMount {
		if d.state.Mounted {
			return false, ErrAlreadyMounted
		}
		d.state.Mounted = true
		return false, nil
	}

	switch op.Command {
	case jbod.CmdUnmount, jbod.CmdSeekToDisk, jbod.CmdSeekToBlock, jbod.CmdReadBlock,
		jbod.CmdWriteBlock, jbod.CmdWritePermission, jbod.CmdRevokeWritePermission:
	default:
		return false, fmt.Errorf("%w: %d", ErrUnknownCommand, uint32(op.Command))
	}

	if !d.state.Mounted {
		return false, ErrNotMounted
	}

	switch op.Command {
	case jbod.CmdUnmount:
		d.state = State{}
		return false, nil

	case jbod.CmdWritePermission:
		if d.state.Writable {
			return false, ErrAlreadyWritable
		}
		d.state.Writable = true
		return false, nil

	case jbod.CmdRevokeWritePermission:
		if !d.state.Writable {
			return false, ErrNotWritable
		}
		d.state.Writable = false
		return false, nil

	case jbod.CmdSeekToDisk:
		if op.Disk >= jbod.NumDisks {
			return false, ErrInvalidDisk
		}
		d.state.Disk, d.state.Block = op.Disk, 0
		return false, nil

	case jbod.CmdSeekToBlock:
		if op.Block >= jbod.BlocksPerDisk {
			return false, ErrInvalidBlock
		}
		d.state.Block = op.Block
		return false, nil

	case jbod.CmdReadBlock:
		loc, err := d.cursor()
		if err != nil {
			return false, err
		}
		if out == nil {
			out = new(jbod.Block)
		}
		if err := d.store.ReadBlock(ctx, loc, out); err != nil {
			return false, fmt.Errorf("read %s: %w", loc, err)
		}
		d.state.Block++
		return true, nil

	default: // jbod.CmdWriteBlock
		if !d.state.Writable {
			return false, ErrNotWritable
		}
		if in == nil {
			return false, ErrMissingPayload
		}
		loc, err := d.cursor()
		if err != nil {
			return false, err
		}
		if err := d.store.WriteBlock(ctx, loc, in); err != nil {
			return false, fmt.Errorf("write %s: %w", loc, err)
		}
		d.state.Block++
		return false, nil
	}
}

// cursor returns the block the next read or write touches. The cursor runs
// past the end of a disk after its last block until the next seek.
func (d *Device) cursor() (jbod.Location, error) {
	loc := jbod.Location{Disk: d.state.Disk, Block: d.state.Block}
	if !loc.Valid() {
		return jbod.Location{}, ErrInvalidBlock
	}
	return loc, nil
}
