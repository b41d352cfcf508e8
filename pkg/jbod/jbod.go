// Package jbod defines the geometry, block type and opcode encoding shared by
// the RAID client, the transport and the reference device.
//
// The array is a JBOD ("just a bunch of disks"): NumDisks disks, each holding
// BlocksPerDisk blocks of BlockSize bytes. The logical address space covers
// all disks in order, so logical address a lives on disk a/DiskSize.
package jbod

import "fmt"

const (
	// NumDisks is the number of disks in the array.
	NumDisks = 16

	// BlocksPerDisk is the number of blocks on each disk.
	BlocksPerDisk = 256

	// BlockSize is the size of a single block in bytes.
	BlockSize = 256

	// DiskSize is the capacity of a single disk in bytes.
	DiskSize = BlocksPerDisk * BlockSize

	// TotalSize is the size of the logical address space in bytes.
	TotalSize = NumDisks * DiskSize

	// MaxIOSize is the largest transfer a single Read or Write may request.
	MaxIOSize = 1024
)

// Block is the content of one physical block. It is a fixed-size array so
// the exact-length contract of the wire protocol is enforced by the type.
type Block [BlockSize]byte

// Command is the operation field of an opcode.
//
// The numeric values are a contract with the device server and must not be
// reordered.
type Command uint32

const (
	CmdMount Command = iota
	CmdUnmount
	CmdSeekToDisk
	CmdSeekToBlock
	CmdReadBlock
	CmdWriteBlock
	CmdWritePermission
	CmdRevokeWritePermission
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case CmdMount:
		return "MOUNT"
	case CmdUnmount:
		return "UNMOUNT"
	case CmdSeekToDisk:
		return "SEEK_TO_DISK"
	case CmdSeekToBlock:
		return "SEEK_TO_BLOCK"
	case CmdReadBlock:
		return "READ_BLOCK"
	case CmdWriteBlock:
		return "WRITE_BLOCK"
	case CmdWritePermission:
		return "WRITE_PERMISSION"
	case CmdRevokeWritePermission:
		return "REVOKE_WRITE_PERMISSION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

// Location identifies a physical block.
type Location struct {
	Disk  uint32
	Block uint32
}

// Valid reports whether the location lies inside the array.
func (l Location) Valid() bool {
	return l.Disk < NumDisks && l.Block < BlocksPerDisk
}

func (l Location) String() string {
	return fmt.Sprintf("disk %d block %d", l.Disk, l.Block)
}

// Index returns the array-wide block index of the location.
func (l Location) Index() uint32 {
	return l.Disk*BlocksPerDisk + l.Block
}

// LocationOf maps an array-wide block index to its disk and block.
func LocationOf(index uint32) Location {
	return Location{
		Disk:  index / BlocksPerDisk,
		Block: index % BlocksPerDisk,
	}
}

// Translate maps a logical byte address to the block holding it and the
// offset of the address inside that block.
func Translate(addr uint32) (Location, uint32) {
	return LocationOf(addr / BlockSize), addr % BlockSize
}
