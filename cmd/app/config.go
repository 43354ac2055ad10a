package main

import (
	"fmt"

	"stock_sim/internal/infra"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage stocksim configuration files.

Examples:
  stocksim config init stocksim.yaml
  stocksim config validate -c stocksim.yaml`,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "stocksim.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := infra.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration given by --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (provider=%s, depth_backend=%s, listen=%s)\n",
				cfg.MarketData.Provider, cfg.Storage.DepthBackend, cfg.API.Listen)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
