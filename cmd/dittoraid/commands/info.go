package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/internal/bytesize"
	"github.com/marmos91/dittoraid/internal/cli/output"
	"github.com/marmos91/dittoraid/pkg/jbod"
)

var infoOutput string

// geometry is the printable array layout.
type geometry struct {
	Disks         int `json:"disks" yaml:"disks"`
	BlocksPerDisk int `json:"blocks_per_disk" yaml:"blocks_per_disk"`
	BlockSize     int `json:"block_size" yaml:"block_size"`
	DiskSize      int `json:"disk_size" yaml:"disk_size"`
	TotalSize     int `json:"total_size" yaml:"total_size"`
	MaxIOSize     int `json:"max_io_size" yaml:"max_io_size"`
}

func (g geometry) Headers() []string {
	return []string{"PROPERTY", "VALUE"}
}

func (g geometry) Rows() [][]string {
	size := func(n int) string {
		return strconv.Itoa(n) + " (" + bytesize.ByteSize(n).String() + ")"
	}
	return [][]string{
		{"Disks", strconv.Itoa(g.Disks)},
		{"Blocks per disk", strconv.Itoa(g.BlocksPerDisk)},
		{"Block size", size(g.BlockSize)},
		{"Disk size", size(g.DiskSize)},
		{"Total size", size(g.TotalSize)},
		{"Max I/O per call", size(g.MaxIOSize)},
	}
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the array geometry",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(infoOutput)
		if err != nil {
			return err
		}
		g := geometry{
			Disks:         jbod.NumDisks,
			BlocksPerDisk: jbod.BlocksPerDisk,
			BlockSize:     jbod.BlockSize,
			DiskSize:      jbod.DiskSize,
			TotalSize:     jbod.TotalSize,
			MaxIOSize:     jbod.MaxIOSize,
		}
		return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(g)
	},
}

func init() {
	infoCmd.Flags().StringVarP(&infoOutput, "output", "o", "table", "Output format (table|json|yaml)")
}
