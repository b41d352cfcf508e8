package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/bytesize"
	"github.com/marmos91/dittoraid/internal/cli/output"
	"github.com/marmos91/dittoraid/internal/telemetry"
)

var (
	readAddr    bytesize.ByteSize
	readLength  bytesize.ByteSize
	readOutput  string
	readOptions clientOptions
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read bytes from the array",
	Long: `Read a byte range from the array and print it.

The session mounts the array, reads and unmounts. Addresses and lengths
accept plain numbers and geometry units: "3disk+10blk", "1Ki", "256".
A single call reads at most 1024 bytes.

Examples:
  # Hex dump of the first block
  dittoraid read --addr 0 --length 256

  # Bytes straddling a disk boundary, as JSON
  dittoraid read --addr 65528 --length 16 -o json`,
	RunE: runRead,
}

func init() {
	readCmd.Flags().Var(&readAddr, "addr", "logical start address")
	readCmd.Flags().Var(&readLength, "length", "number of bytes to read (max 1024)")
	readCmd.Flags().StringVarP(&readOutput, "output", "o", "table", "Output format (table|json|yaml)")
	readOptions.register(readCmd)
	_ = readCmd.MarkFlagRequired("length")
}

func runRead(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(readOutput)
	if err != nil {
		return err
	}
	addr, err := readAddr.Uint32()
	if err != nil {
		return fmt.Errorf("invalid --addr: %w", err)
	}
	if err := checkLength("read", readLength.Uint64()); err != nil {
		return err
	}
	length, err := readLength.Uint32()
	if err != nil {
		return fmt.Errorf("invalid --length: %w", err)
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

	s, err := openSession(ctx, cfg, &readOptions)
	if err != nil {
		return err
	}
	defer s.close()

	unmount, err := s.mount(ctx, false)
	if err != nil {
		return err
	}
	defer unmount()

	buf := make([]byte, length)
	n, err := s.array.Read(ctx, addr, length, buf)
	if err != nil {
		return fmt.Errorf("read %d bytes at %d: %w", length, addr, err)
	}

	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(output.HexDump{Base: addr, Data: buf[:n]})
}
