// Command budgetsync manages a budget kept in a local SQLite database and
// optionally synchronized with a remote store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"budgetsync/internal/cli"
	"budgetsync/internal/config"
	applog "budgetsync/internal/log"
)

var (
	userFlag string

	rootCmd = &cobra.Command{
		Use:   "budgetsync",
		Short: "Track categories and expenses, sync them with a remote store",
		Long: `budgetsync keeps categories and transactions in a local SQLite
database. With a remote backend configured and a user given, commands act
on that user's remote records and sync merges local data into them.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "act as this user against the remote store (default: $SESSION_USER)")
}

func main() {
	ctx, cancel := cli.SignalContext(context.Background())
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and the logger. Commands that only need
// configuration use it directly.
func bootstrap() (*config.Config, *applog.Logger, io.Closer, error) {
	return cli.Bootstrap(applog.ComponentCLI)
}

// withApp wires the full application for the duration of run.
func withApp(cmd *cobra.Command, run func(ctx context.Context, app *cli.App) error) error {
	cfg, logger, closer, err := bootstrap()
	if err != nil {
		return err
	}
	defer closer.Close()

	user := userFlag
	if user == "" {
		user = cfg.SessionUser
	}

	ctx := cmd.Context()
	app, err := cli.Wire(ctx, cfg, logger, user)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WarnContext(ctx, "Closing stores failed", applog.FieldError, err)
		}
	}()
	return run(ctx, app)
}
