package main

import (
	"encoding/json"
	"fmt"
	"io"

	"stock_sim/internal/app"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "stocksim",
		Short: "Simulated share trading with synthetic market depth",
		Long: `stocksim runs a paper trading exchange for listed shares.

It provides:
  - Synthetic order book depth per instrument
  - Accounts, order entry and cancellation
  - A scheduled sweep that fills pending orders against live quotes
  - A leaderboard valued at last trade prices`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults apply when empty)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newDepthCmd(opts),
		newAccountCmd(opts),
		newOrderCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// withBootstrap initializes the application for a one-shot command and closes it afterwards.
func withBootstrap(opts *rootOptions, fn func(*app.Bootstrap) error) (err error) {
	b := app.NewBootstrap(opts.configPath)
	defer func() {
		if cerr := b.Close(); err == nil {
			err = cerr
		}
	}()
	if err := b.Initialize(); err != nil {
		return err
	}
	return fn(b)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stocksim version %s\n", version)
		},
	}
}
