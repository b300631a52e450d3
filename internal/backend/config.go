package backend

import (
	"fmt"

	"budgetsync/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	remote := RemoteType(appConfig.RemoteBackend)
	if remote == "" {
		remote = RemoteNone
	}
	if !remote.IsValid() {
		return Config{}, fmt.Errorf("invalid remote backend in config: %s", appConfig.RemoteBackend)
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,

		Remote:          remote,
		RemoteURL:       appConfig.RemoteURL,
		RemoteAuthToken: appConfig.RemoteAuthToken,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleCategoriesSheet:    appConfig.GoogleCategoriesSheet,
		GoogleTransactionsSheet:  appConfig.GoogleTransactionsSheet,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,

		StoreTimeout: appConfig.StoreTimeout,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for the local store")
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote backend: %s", c.Remote)
	}

	switch c.Remote {
	case RemoteLibSQL, RemoteSQLite:
		if c.RemoteURL == "" {
			return fmt.Errorf("remote database URL is required for %s backend", c.Remote)
		}
	case RemoteSheets:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
	}
	return nil
}

// RemoteTypeStrings returns all valid remote type strings
func RemoteTypeStrings() []string {
	types := []RemoteType{RemoteNone, RemoteLibSQL, RemoteSQLite, RemoteSheets, RemoteMemory}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
