package main

import (
	"stock_sim/internal/app"
	"stock_sim/internal/domain"
	"stock_sim/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one execution sweep over pending orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				report, err := b.Engine.RunSweep(cmd.Context(), force)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "sweep even when the market is closed")
	return cmd
}

func newDepthCmd(opts *rootOptions) *cobra.Command {
	var maxBid, minAsk, avgVolume string
	cmd := &cobra.Command{
		Use:   "depth <code>",
		Short: "Show or create the synthetic depth of an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				if maxBid == "" && minAsk == "" && avgVolume == "" {
					rec, err := b.Depth.GetDepth(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), rec)
				}

				bid, err := decimalFlag("max-bid", maxBid)
				if err != nil {
					return err
				}
				ask, err := decimalFlag("min-ask", minAsk)
				if err != nil {
					return err
				}
				vol, err := decimalFlag("avg-volume", avgVolume)
				if err != nil {
					return err
				}
				rec, err := b.Depth.GetOrCreateDepth(cmd.Context(), args[0], bid, ask, vol)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVar(&maxBid, "max-bid", "", "best bid of a new book")
	cmd.Flags().StringVar(&minAsk, "min-ask", "", "best ask of a new book")
	cmd.Flags().StringVar(&avgVolume, "avg-volume", "", "average volume per level")
	return cmd
}

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage trading accounts",
	}

	var email, nickname string
	create := &cobra.Command{
		Use:   "create",
		Short: "Open an account with the initial cash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				acc, err := b.Trading.CreateAccount(cmd.Context(), email, nickname)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acc)
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&nickname, "nickname", "", "display name on the leaderboard")
	_ = create.MarkFlagRequired("email")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an account with its holdings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				acc, err := b.Trading.GetAccount(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				holdings, err := b.Portfolio.Holdings(cmd.Context(), acc.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"account":  acc,
					"holdings": holdings,
				})
			})
		},
	}

	leaderboard := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank accounts by total value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				board, err := b.Portfolio.Leaderboard(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), board)
			})
		},
	}

	cmd.AddCommand(create, show, leaderboard)
	return cmd
}

func newOrderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Submit and cancel orders",
	}

	var (
		req   service.OrderRequest
		price string
		fee   string
	)
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pending order",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimalFlag("price", price)
			if err != nil {
				return err
			}
			req.Price = p
			if fee != "" {
				f, err := decimalFlag("fee", fee)
				if err != nil {
					return err
				}
				req.Fee = &f
			}

			return withBootstrap(opts, func(b *app.Bootstrap) error {
				o, err := b.Trading.SubmitOrder(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
	submit.Flags().StringVar(&req.AccountID, "account", "", "account id")
	submit.Flags().StringVar((*string)(&req.Type), "type", "", "buy or sell")
	submit.Flags().StringVar((*string)(&req.Subtype), "subtype", string(domain.OrderSubtypeLimit), "market, limit or stop")
	submit.Flags().StringVar(&req.Instrument, "instrument", "", "instrument code")
	submit.Flags().StringVar(&price, "price", "", "limit, stop or reference price")
	submit.Flags().Int64Var(&req.Quantity, "quantity", 0, "number of shares")
	submit.Flags().StringVar(&fee, "fee", "", "brokerage fee (configured fee when empty)")
	for _, name := range []string{"account", "type", "instrument", "price", "quantity"} {
		_ = submit.MarkFlagRequired(name)
	}

	var account string
	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBootstrap(opts, func(b *app.Bootstrap) error {
				var (
					o   *domain.Order
					err error
				)
				if account != "" {
					o, err = b.Trading.CancelOwnedOrder(cmd.Context(), account, args[0])
				} else {
					o, err = b.Trading.CancelOrder(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
	cancel.Flags().StringVar(&account, "account", "", "only cancel if the order belongs to this account")

	cmd.AddCommand(submit, cancel)
	return cmd
}

func decimalFlag(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, domain.NewValidationError(name, "is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(name, "is not a decimal")
	}
	return d, nil
}
