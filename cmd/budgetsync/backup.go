package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"budgetsync/internal/backup"
	"budgetsync/internal/cli"
	applog "budgetsync/internal/log"
)

var (
	exportOut     string
	exportArchive bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current records as a JSON backup",
	Long: `Write the working records as a JSON backup. By default the backup
goes to stdout. With --archive it is stored under BACKUP_DIR, or in the
BACKUP_BUCKET Cloud Storage bucket when one is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			data, err := backup.Encode(app.Budget.Export())
			if err != nil {
				return fmt.Errorf("encode backup: %w", err)
			}

			switch {
			case exportArchive:
				archiver, closeArchiver, err := openArchiver(ctx, app)
				if err != nil {
					return err
				}
				defer closeArchiver()
				scope, _ := app.Sessions.Current()
				location, err := archiver.Put(ctx, backup.ObjectName(scope.UserID, time.Now()), data)
				if err != nil {
					return err
				}
				app.Logger.InfoContext(ctx, "Backup archived", applog.FieldOperation, applog.OpExport, "location", location)
				fmt.Fprintln(cmd.OutOrStdout(), location)
			case exportOut != "":
				if err := os.WriteFile(exportOut, data, 0644); err != nil {
					return fmt.Errorf("write backup: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), exportOut)
			default:
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file | gs://bucket/object | ->",
	Short: "Merge a JSON backup into the current store",
	Long: `Merge a JSON backup. Categories are matched by content and
transactions already present are skipped, so importing the same backup
twice adds nothing the second time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			data, err := readBackup(ctx, cmd, args[0])
			if err != nil {
				return err
			}
			payload, stats, err := backup.Decode(data)
			if err != nil {
				return err
			}
			report, err := app.Budget.Import(ctx, payload)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.String())
			if n := stats.SkippedCategories + stats.SkippedTransactions; n > 0 {
				fmt.Fprintf(out, "dropped malformed entries: %d categories, %d transactions\n",
					stats.SkippedCategories, stats.SkippedTransactions)
			}
			if report.SkippedTransactions > 0 {
				fmt.Fprintf(out, "already present: %d transactions\n", report.SkippedTransactions)
			}
			return err
		})
	},
}

func readBackup(ctx context.Context, cmd *cobra.Command, source string) ([]byte, error) {
	switch {
	case source == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(source, "gs://"):
		bucket, _, err := backup.ParseGCSURI(source)
		if err != nil {
			return nil, err
		}
		a, err := backup.NewGCSArchiver(ctx, bucket)
		if err != nil {
			return nil, err
		}
		defer a.Close()
		return a.Get(ctx, source)
	default:
		return backup.FileArchiver{}.Get(ctx, source)
	}
}

func openArchiver(ctx context.Context, app *cli.App) (backup.Archiver, func(), error) {
	if bucket := app.Config.BackupBucket; bucket != "" {
		a, err := backup.NewGCSArchiver(ctx, bucket)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	}
	return backup.FileArchiver{Dir: app.Config.BackupDir}, func() {}, nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the backup to this file")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "store the backup in the configured archive")
	exportCmd.MarkFlagsMutuallyExclusive("out", "archive")
	rootCmd.AddCommand(exportCmd, importCmd)
}
