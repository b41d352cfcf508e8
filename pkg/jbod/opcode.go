package jbod

// Opcode word layout, least significant bit first:
//
//	bits  0..5   command
//	bits  6..9   disk index
//	bits 10..17  block index
//	bits 18..31  reserved, zero
const (
	commandBits  = 6
	diskBits     = 4
	blockBits    = 8
	reservedBits = 14

	diskShift     = commandBits
	blockShift    = diskShift + diskBits
	reservedShift = blockShift + blockBits

	commandMask  = 1<<commandBits - 1
	diskMask     = 1<<diskBits - 1
	blockMask    = 1<<blockBits - 1
	reservedMask = 1<<reservedBits - 1
)

// Opcode is the structured form of an instruction sent to the device.
//
// Fields are masked, not validated, when packed: callers are expected to
// range-check disk and block ids beforehand.
type Opcode struct {
	Command  Command
	Disk     uint32
	Block    uint32
	Reserved uint32
}

// NewOpcode builds an opcode for cmd addressing disk and block.
func NewOpcode(cmd Command, disk, block uint32) Opcode {
	return Opcode{Command: cmd, Disk: disk, Block: block}
}

// Pack encodes the opcode into its 32-bit word in host order.
func (o Opcode) Pack() uint32 {
	word := uint32(o.Command) & commandMask
	word |= (o.Disk & diskMask) << diskShift
	word |= (o.Block & blockMask) << blockShift
	word |= (o.Reserved & reservedMask) << reservedShift
	return word
}

// Unpack decodes a 32-bit opcode word.
func Unpack(word uint32) Opcode {
	return Opcode{
		Command:  Command(word & commandMask),
		Disk:     (word >> diskShift) & diskMask,
		Block:    (word >> blockShift) & blockMask,
		Reserved: (word >> reservedShift) & reservedMask,
	}
}

// CarriesPayload reports whether a request with this opcode transports a
// block to the device.
func (o Opcode) CarriesPayload() bool {
	return o.Command == CmdWriteBlock
}
