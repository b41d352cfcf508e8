// Package commands implements the dittoraid CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/cmd/dittoraid/commands/config"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittoraid/pkg/metrics/prometheus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittoraid",
	Short: "dittoraid - JBOD array client and reference device",
	Long: `dittoraid maps a flat 1 MiB address space onto a JBOD array of
16 disks x 256 blocks x 256 bytes reached over TCP, with an optional
client-side LFU block cache and write-through writes.

"dittoraid serve" runs the reference device; read, write and trace talk
to it.

Use "dittoraid [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittoraid/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(config.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
