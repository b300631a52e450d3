package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetsync/internal/remote"
	"budgetsync/internal/remote/sheets"
	"budgetsync/internal/storage"
	"budgetsync/internal/store"
	"budgetsync/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// Open opens the local store and, if configured, the remote store. Both
// are wrapped with the per-call timeout. The libsql remote needs the
// "libsql" driver registered by the binary.
func (f *DefaultFactory) Open(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	local, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized local store", "db_path", config.SQLiteDBPath)

	cleanups := []CleanupFunc{local.Close}
	res := &Result{
		Local:  f.bound(local, config),
		Pinger: local,
		Cleanup: func() error {
			var errs []error
			for i := len(cleanups) - 1; i >= 0; i-- {
				errs = append(errs, cleanups[i]())
			}
			return errors.Join(errs...)
		},
	}

	rs, cleanup, err := f.openRemote(ctx, config)
	if err != nil {
		local.Close()
		return nil, err
	}
	if cleanup != nil {
		cleanups = append(cleanups, cleanup)
	}
	if rs != nil {
		res.Remote = f.bound(rs, config)
	}
	return res, nil
}

func (f *DefaultFactory) openRemote(ctx context.Context, config Config) (store.Store, CleanupFunc, error) {
	switch config.Remote {
	case RemoteNone:
		f.logger.InfoContext(ctx, "No remote backend configured, sync disabled")
		return nil, nil, nil

	case RemoteLibSQL, RemoteSQLite:
		rs, err := remote.Open(ctx, remote.Config{
			Driver:    string(config.Remote),
			URL:       config.RemoteURL,
			AuthToken: config.RemoteAuthToken,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open remote store: %w", err)
		}
		return rs, rs.Close, nil

	case RemoteSheets:
		cli, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			CategoriesTab:      config.GoogleCategoriesSheet,
			TransactionsTab:    config.GoogleTransactionsSheet,
			ServiceAccountFile: config.GoogleServiceAccountFile,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets remote: %w", err)
		}
		if err := cli.EnsureTabs(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to prepare spreadsheet: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets remote", "spreadsheet_id", config.GoogleSpreadsheetID)
		return cli, nil, nil

	case RemoteMemory:
		f.logger.WarnContext(ctx, "Using in-memory remote backend, data is lost on exit")
		return memory.NewScoped(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported remote backend: %s", config.Remote)
	}
}

func (f *DefaultFactory) bound(s store.Store, config Config) store.Store {
	if config.StoreTimeout <= 0 {
		return s
	}
	return store.WithTimeout(s, config.StoreTimeout)
}
