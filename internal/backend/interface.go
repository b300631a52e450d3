package backend

import (
	"context"
	"time"

	"budgetsync/internal/store"
)

// CleanupFunc releases backend resources
type CleanupFunc func() error

// Result holds the opened stores. Remote is nil when no remote backend is
// configured.
type Result struct {
	Local   store.Store
	Remote  store.Store
	Pinger  Pinger
	Cleanup CleanupFunc
}

// Pinger reports whether the local database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Factory opens stores based on configuration
type Factory interface {
	Open(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for opening stores
type Config struct {
	// Local store
	SQLiteDBPath string

	// Remote store type and location
	Remote          RemoteType
	RemoteURL       string
	RemoteAuthToken string

	// Google Sheets remote
	GoogleSpreadsheetID      string
	GoogleCategoriesSheet    string
	GoogleTransactionsSheet  string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Per-call bound for every store operation; zero disables it
	StoreTimeout time.Duration
}

// RemoteType represents the kind of remote store
type RemoteType string

const (
	RemoteNone   RemoteType = "none"
	RemoteLibSQL RemoteType = "libsql"
	RemoteSQLite RemoteType = "sqlite"
	RemoteSheets RemoteType = "sheets"
	RemoteMemory RemoteType = "memory"
)

// String implements fmt.Stringer
func (rt RemoteType) String() string {
	return string(rt)
}

// IsValid returns true if the remote type is valid
func (rt RemoteType) IsValid() bool {
	switch rt {
	case RemoteNone, RemoteLibSQL, RemoteSQLite, RemoteSheets, RemoteMemory:
		return true
	default:
		return false
	}
}
