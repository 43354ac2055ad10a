package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stock_sim/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withBootstrap(opts, func(b *app.Bootstrap) error {
				return b.Serve(ctx)
			})
		},
	}
}
