package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/cli"
	"budgetsync/internal/sample"
	"budgetsync/internal/storage"
)

var (
	seedFile    string
	seedValue   uint64
	wipeConfirm bool
	summaryFrom string
	summaryTo   string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Fill an empty local store with demo categories and expenses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seed := sample.Default()
		if seedFile != "" {
			var err error
			if seed, err = sample.LoadSeed(seedFile); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			s := seedValue
			if !cmd.Flags().Changed("rand-seed") {
				s = uint64(time.Now().UnixNano())
			}
			report, err := app.Budget.GenerateSample(ctx, seed, rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		})
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every category and transaction of the current store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wipeConfirm {
			return errors.New("refusing to wipe without --yes")
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			if err := app.Budget.Wipe(ctx); err != nil {
				return err
			}
			_, scope := app.Budget.State()
			fmt.Fprintf(cmd.OutOrStdout(), "wiped %s store\n", scope)
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print spending per category and budget usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := summaryRange(summaryFrom, summaryTo, time.Now())
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			sum := app.Budget.Summary(from, to)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s → %s\n\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
			fmt.Fprintln(w, "CATEGORY\tSPENT\t")
			for _, c := range sum.ByCategory {
				fmt.Fprintf(w, "%s %s\t%s\t\n", c.Emoji, c.Name, c.Amount.Fixed())
			}
			fmt.Fprintf(w, "TOTAL\t%s\t\n", sum.Total.Fixed())
			if len(sum.Budgets) > 0 {
				fmt.Fprintln(w, "\nBUDGET\tSPENT\tLIMIT\tLEFT\tUSED")
				for _, b := range sum.Budgets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\n",
						b.Name, b.Spent.Fixed(), b.Budget.Fixed(), b.Remaining.Fixed(), b.Percent)
				}
			}
			return w.Flush()
		})
	},
}

// summaryRange resolves the inclusive day range, defaulting to the current
// UTC month.
func summaryRange(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	if fromFlag != "" {
		d, err := time.Parse("2006-01-02", fromFlag)
		if err != nil {
			return from, to, fmt.Errorf("invalid --from: %w", err)
		}
		from = d
	}
	if toFlag != "" {
		d, err := time.Parse("2006-01-02", toFlag)
		if err != nil {
			return from, to, fmt.Errorf("invalid --to: %w", err)
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return from, to, errors.New("--to is before --from")
	}
	return from, to.Add(-time.Nanosecond), nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the local database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := bootstrap()
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
		if err := storage.RunMigrations("sqlite", cfg.SQLiteDBPath); err != nil {
			return err
		}
		version, dirty, err := storage.SchemaVersion("sqlite", cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (dirty=%t)\n", cfg.SQLiteDBPath, version, dirty)
		return nil
	},
}

func init() {
	sampleCmd.Flags().StringVar(&seedFile, "seed", "", "TOML file describing the categories and notes to generate")
	sampleCmd.Flags().Uint64Var(&seedValue, "rand-seed", 0, "random seed for reproducible output")
	wipeCmd.Flags().BoolVar(&wipeConfirm, "yes", false, "confirm deletion")
	summaryCmd.Flags().StringVar(&summaryFrom, "from", "", "first day, YYYY-MM-DD (default: start of this month)")
	summaryCmd.Flags().StringVar(&summaryTo, "to", "", "last day, YYYY-MM-DD (default: end of this month)")
	rootCmd.AddCommand(sampleCmd, wipeCmd, summaryCmd, migrateCmd)
}
