// Package remote opens the per-user account store shared across devices.
//
// The SQL flavour talks to a libSQL server (Turso) or, for self-hosted and
// test setups, a plain SQLite file; both use the schema and statements of
// the local store with every row owned by a user id.
package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"budgetsync/internal/storage"

	_ "modernc.org/sqlite"
)

// Config selects and locates the remote SQL database. The libsql driver
// must be registered by the binary.
type Config struct {
	// Driver is "libsql" or "sqlite".
	Driver    string
	URL       string
	AuthToken string
}

// DSN returns the data source name passed to database/sql.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case "libsql":
		u, err := url.Parse(c.URL)
		if err != nil {
			return "", fmt.Errorf("parse libsql url: %w", err)
		}
		if c.AuthToken != "" {
			q := u.Query()
			q.Set("authToken", c.AuthToken)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	case "sqlite":
		return strings.TrimPrefix(c.URL, "file:"), nil
	default:
		return "", fmt.Errorf("unsupported remote driver %q", c.Driver)
	}
}

// Store is the remote SQL store: a storage.Repository that requires an
// owner on every call.
type Store struct {
	*storage.Repository
	driver string
}

// Open connects to the remote database, applies the schema and returns an
// owner-scoped store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("missing remote database url")
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	if err := storage.RunMigrations(cfg.Driver, dsn); err != nil {
		return nil, fmt.Errorf("migrate remote schema: %w", err)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote database: %w", err)
	}

	slog.InfoContext(ctx, "Remote store connected", "driver", cfg.Driver, "host", redact(cfg.URL))
	return &Store{Repository: storage.NewRepository(db, true), driver: cfg.Driver}, nil
}

// Driver reports the database/sql driver in use.
func (s *Store) Driver() string { return s.driver }

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
