package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoraid/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load a configuration file and report whether it is valid.

Examples:
  dittoraid config validate
  dittoraid config validate --config /etc/dittoraid/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		if _, err := config.MustLoad(configPath); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", configPath)
		return nil
	},
}
