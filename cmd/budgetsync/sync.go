package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/amqp"
	"budgetsync/internal/cli"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Merge local records into the remote store and load the result",
	Long: `Run one reconciliation for the signed-in user: categories and
transactions present locally but missing remotely are inserted remotely,
matched by content rather than by id. Nothing is ever deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if _, ok := app.Sessions.Current(); !ok {
				return fmt.Errorf("%w: pass --user or set SESSION_USER", scheduler.ErrNoSession)
			}
			start := time.Now()
			report, err := app.Scheduler.Trigger(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", report.String(), time.Since(start).Round(time.Millisecond))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts of the local and remote stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			out := cmd.OutOrStdout()
			local, err := store.Load(ctx, app.Stores.Local, store.LocalScope)
			if err != nil {
				return fmt.Errorf("load local: %w", err)
			}
			fmt.Fprintf(out, "local (%s): %d categories, %d transactions\n",
				app.Config.SQLiteDBPath, len(local.Categories), len(local.Transactions))

			if app.Stores.Remote == nil {
				fmt.Fprintln(out, "remote: not configured")
				return nil
			}
			scope, ok := app.Sessions.Current()
			if !ok {
				fmt.Fprintf(out, "remote (%s): no user given\n", app.Config.RemoteBackend)
				return nil
			}
			remote, err := store.Load(ctx, app.Stores.Remote, scope)
			if err != nil {
				return fmt.Errorf("load remote: %w", err)
			}
			fmt.Fprintf(out, "remote (%s, %s): %d categories, %d transactions\n",
				app.Config.RemoteBackend, scope, len(remote.Categories), len(remote.Transactions))
			return nil
		})
	},
}

var triggerReason string

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask running workers to sync a user through the message broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := bootstrap()
		if err != nil {
			return err
		}
		defer closer.Close()

		user := userFlag
		if user == "" {
			user = cfg.SessionUser
		}
		if user == "" {
			return errors.New("no user: pass --user or set SESSION_USER")
		}
		if cfg.AMQPURL == "" {
			return errors.New("AMQP_URL is not configured")
		}

		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := client.PublishSyncRequest(ctx, user, triggerReason); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync requested for %s\n", user)
		return nil
	},
}

func init() {
	triggerCmd.Flags().StringVar(&triggerReason, "reason", "cli", "reason recorded with the request")
	rootCmd.AddCommand(syncCmd, statusCmd, triggerCmd)
}
