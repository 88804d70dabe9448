package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bananabot/internal/app"
	"bananabot/internal/infra"
	"bananabot/internal/migrations"
)

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var balanceCmd = &cobra.Command{
	Use:   "balance <user>",
	Short: "Show a user's profile and balance (id or @username)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			user, err := a.Accounts.Find(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			prof, err := a.Accounts.Profile(ctx, user.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:        %d %s\n", prof.User.ID, prof.User.DisplayName())
			fmt.Fprintf(out, "balance:     %d\n", prof.Balance)
			fmt.Fprintf(out, "generations: %d\n", prof.Generations)
			fmt.Fprintf(out, "spent:       %s\n", prof.TotalSpent.StringFixed(2))
			fmt.Fprintf(out, "tier:        %s\n", prof.User.PreferredTier)
			return nil
		})
	},
}

var adjustCmd = &cobra.Command{
	Use:   "adjust <user> <delta>",
	Short: "Add or remove credits (the balance never drops below zero)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid delta %q", args[1])
		}
		silent, _ := cmd.Flags().GetBool("silent")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return adjust(ctx, a, args[0], delta, silent, cmd.OutOrStdout())
		})
	},
}

func adjust(ctx context.Context, a *app.App, query string, delta int64, silent bool, out io.Writer) error {
	user, err := a.Accounts.Find(ctx, query)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	balance, err := a.Accounts.Adjust(ctx, user.ID, delta)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "user %d balance: %d\n", user.ID, balance)
	if silent || delta == 0 {
		return nil
	}
	if err := a.Engine.NotifyBalanceAdjusted(ctx, user.ID, delta, balance); err != nil {
		fmt.Fprintf(out, "warning: user not notified: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, "user notified")
	return nil
}

var messageCmd = &cobra.Command{
	Use:   "message <user> <text...>",
	Short: "Send a support message to a user",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return sendMessage(ctx, a, args[0], strings.Join(args[1:], " "), cmd.OutOrStdout())
		})
	},
}

func sendMessage(ctx context.Context, a *app.App, query, text string, out io.Writer) error {
	user, err := a.Accounts.Find(ctx, query)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if err := a.Engine.SendSupportMessage(ctx, user.ID, text); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Fprintf(out, "message sent to user %d\n", user.ID)
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show user, generation and revenue totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Repos.Stats.Summary(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "users:       %d\n", stats.Users)
			fmt.Fprintf(out, "generations: %d\n", stats.Generations)
			fmt.Fprintf(out, "revenue:     %s\n", stats.Revenue.StringFixed(2))
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Refund stale generation tasks once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			age := a.Config.WatchdogStaleAfter
			if olderThan > 0 {
				age = olderThan
			}
			count, credits, err := a.Watchdog.Sweep(ctx, time.Now().UTC().Add(-age))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refunded %d tasks, %d credits\n", count, credits)
			return nil
		})
	},
}

var confirmPurchaseCmd = &cobra.Command{
	Use:   "confirm-purchase <id>",
	Short: "Mark a purchase paid and credit its package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, balance, err := a.Payments.Confirm(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purchase %s (%s, %d credits) paid; user %d balance: %d\n",
				p.ID, p.Package, p.Amount, p.UserID, balance)
			return nil
		})
	},
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List credit packages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tCREDITS\tPRICE\tPER CREDIT")
			for _, p := range a.Payments.Catalog().List() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\t%s\n", p.Key, p.Name, p.Credits, p.Price.StringFixed(0), p.Currency, p.PerCredit().StringFixed(2))
			}
			return w.Flush()
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := migrations.UpURL(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key <kie|gemini> <key>",
	Short: "Store a provider API key in the database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			store, err := a.RequireCredentials()
			if err != nil {
				return err
			}
			if err := store.Set(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s api key stored\n", args[0])
			return nil
		})
	},
}
