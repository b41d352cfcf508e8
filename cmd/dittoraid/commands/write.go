package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/bytesize"
	"github.com/marmos91/dittoraid/internal/cli/output"
	"github.com/marmos91/dittoraid/internal/telemetry"
)

var (
	writeAddr    bytesize.ByteSize
	writeLength  bytesize.ByteSize
	writeData    string
	writeFill    string
	writeOptions clientOptions
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write bytes to the array",
	Long: `Write a byte range to the array.

The session mounts the array, acquires write permission, writes, then
releases both. The payload is either a literal string (--data) or one
byte repeated --length times (--fill). A single call writes at most
1024 bytes.

Examples:
  # Write a string at address 100
  dittoraid write --addr 100 --data "hello"

  # Fill 600 bytes starting at block 3 with 0xAB
  dittoraid write --addr 3blk --fill 0xAB --length 600`,
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().Var(&writeAddr, "addr", "logical start address")
	writeCmd.Flags().StringVar(&writeData, "data", "", "literal payload")
	writeCmd.Flags().StringVar(&writeFill, "fill", "", "fill byte (decimal, 0x hex or 0 octal)")
	writeCmd.Flags().Var(&writeLength, "length", "number of fill bytes (with --fill)")
	writeOptions.register(writeCmd)
	writeCmd.MarkFlagsMutuallyExclusive("data", "fill")
	writeCmd.MarkFlagsOneRequired("data", "fill")
	writeCmd.MarkFlagsRequiredTogether("fill", "length")
}

// writePayload builds the bytes to write from --data or --fill/--length.
func writePayload(data, fill string, length bytesize.ByteSize) ([]byte, error) {
	if fill == "" {
		if data == "" {
			return nil, errors.New("--data must not be empty")
		}
		if err := checkLength("write", uint64(len(data))); err != nil {
			return nil, err
		}
		return []byte(data), nil
	}

	b, err := strconv.ParseUint(fill, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid --fill %q: must be a byte value", fill)
	}
	if err := checkLength("write", length.Uint64()); err != nil {
		return nil, err
	}
	n, err := length.Uint32()
	if err != nil {
		return nil, fmt.Errorf("invalid --length: %w", err)
	}
	return bytes.Repeat([]byte{byte(b)}, int(n)), nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	payload, err := writePayload(writeData, writeFill, writeLength)
	if err != nil {
		return err
	}
	addr, err := writeAddr.Uint32()
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stop, err := initObservability(ctx, cfg, telemetry.RoleClient)
	if err != nil {
		return err
	}
	defer stop()

	s, err := openSession(ctx, cfg, &writeOptions)
	if err != nil {
		return err
	}
	defer s.close()

	release, err := s.mount(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	n, err := s.array.Write(ctx, addr, uint32(len(payload)), payload)
	if err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(payload), addr, err)
	}

	output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false).
		Success(fmt.Sprintf("Wrote %d bytes at address %d", n, addr))
	return nil
}
