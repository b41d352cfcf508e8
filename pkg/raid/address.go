package raid

import "github.com/marmos91/dittoraid/pkg/jbod"

// checkRange validates a transfer request. A nil error with length 0 means
// there is nothing to do.
func checkRange(op string, addr, length uint32, buf []byte) error {
	if length > 0 && uint64(len(buf)) < uint64(length) {
		return jbod.NewError(jbod.CodeInvalidArgument, op,
			"buffer holds %d bytes, %d requested", len(buf), length)
	}
	if length == 0 {
		return nil
	}
	if length > jbod.MaxIOSize {
		return jbod.NewError(jbod.CodeOutOfRange, op,
			"length %d exceeds the %d byte limit", length, jbod.MaxIOSize)
	}
	if uint64(addr)+uint64(length) > jbod.TotalSize {
		return jbod.NewError(jbod.CodeOutOfRange, op,
			"range [%d, %d) beyond the %d byte array", addr, uint64(addr)+uint64(length), jbod.TotalSize)
	}
	return nil
}

// forEachBlock splits [addr, addr+length) at block boundaries and calls fn
// for each piece in address order with the block location, the offset of
// the piece inside the block and its size. Only the first piece can start
// mid-block. Iteration stops at the first error.
func forEachBlock(addr, length uint32, fn func(loc jbod.Location, off, count uint32) error) error {
	first := addr / jbod.BlockSize
	last := (addr + length - 1) / jbod.BlockSize
	off := addr % jbod.BlockSize
	remaining := length

	for idx := first; idx <= last; idx++ {
		count := min(jbod.BlockSize-off, remaining)
		if err := fn(jbod.LocationOf(idx), off, count); err != nil {
			return err
		}
		remaining -= count
		off = 0
	}
	return nil
}
