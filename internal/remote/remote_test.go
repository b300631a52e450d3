package remote

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/store"
)

func TestConfigDSN(t *testing.T) {
	dsn, err := Config{Driver: "libsql", URL: "libsql://budget-acme.turso.io", AuthToken: "tok"}.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasSuffix(dsn, "?authToken=tok") {
		t.Fatalf("expected auth token in dsn, got %q", dsn)
	}

	dsn, _ = Config{Driver: "sqlite", URL: "file:/tmp/remote.db"}.DSN()
	if dsn != "/tmp/remote.db" {
		t.Fatalf("unexpected sqlite dsn %q", dsn)
	}

	if _, err := (Config{Driver: "postgres", URL: "x"}).DSN(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestOpenSQLiteRemoteRequiresOwner(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "sqlite", URL: filepath.Join(t.TempDir(), "remote.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.ListCategories(ctx, store.LocalScope); !errors.Is(err, store.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}

	scope := store.Scope{UserID: "u1"}
	c, err := s.InsertCategory(ctx, scope, core.Category{Name: "Comida", Color: "#ef4444", Emoji: "🍔"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertTransaction(ctx, scope, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 1250}, Date: time.Now()}); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	snap, err := store.Load(ctx, s, scope)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Categories) != 1 || len(snap.Transactions) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
