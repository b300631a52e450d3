package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/store"
)

func TestStoreInsertAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	hogar, err := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "Hogar", Color: "#f59e0b"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	if _, err := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "Comida", Color: "#ef4444"}); err != nil {
		t.Fatalf("insert category: %v", err)
	}

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{old, old.AddDate(0, 1, 0)} {
		if _, err := s.InsertTransaction(ctx, store.LocalScope, core.Transaction{CategoryID: hogar.ID, Amount: core.Money{Cents: 100}, Date: d}); err != nil {
			t.Fatalf("insert transaction: %v", err)
		}
	}

	cats, _ := s.ListCategories(ctx, store.LocalScope)
	if len(cats) != 2 || cats[0].Name != "Comida" {
		t.Fatalf("expected categories ordered by name, got %+v", cats)
	}
	txs, _ := s.ListTransactions(ctx, store.LocalScope)
	if len(txs) != 2 || !txs[0].Date.After(txs[1].Date) {
		t.Fatalf("expected transactions ordered by date desc, got %+v", txs)
	}
}

func TestStoreRejectsUnknownCategory(t *testing.T) {
	s := New()
	_, err := s.InsertTransaction(context.Background(), store.LocalScope, core.Transaction{CategoryID: "missing", Amount: core.Money{Cents: 1}, Date: time.Now()})
	var se *core.StoreError
	if !errors.As(err, &se) || !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected StoreError wrapping ErrUnknownCategory, got %v", err)
	}
}

func TestStoreDeleteCategoryCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "A", Color: "#000"})
	b, _ := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "B", Color: "#fff"})
	for _, id := range []string{a.ID, a.ID, b.ID} {
		if _, err := s.InsertTransaction(ctx, store.LocalScope, core.Transaction{CategoryID: id, Amount: core.Money{Cents: 1}, Date: time.Now()}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := s.DeleteCategory(ctx, store.LocalScope, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	txs, _ := s.ListTransactions(ctx, store.LocalScope)
	if len(txs) != 1 || txs[0].CategoryID != b.ID {
		t.Fatalf("expected only B's transaction to survive, got %+v", txs)
	}
	if err := s.DeleteCategory(ctx, store.LocalScope, a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestScopedStoreIsolatesOwners(t *testing.T) {
	ctx := context.Background()
	s := NewScoped()
	alice := store.Scope{UserID: "alice"}
	bob := store.Scope{UserID: "bob"}

	if _, err := s.ListCategories(ctx, store.LocalScope); !errors.Is(err, store.ErrScopeRequired) {
		t.Fatalf("expected ErrScopeRequired, got %v", err)
	}

	c, err := s.InsertCategory(ctx, alice, core.Category{Name: "Ocio", Color: "#a855f7"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	cats, _ := s.ListCategories(ctx, bob)
	if len(cats) != 0 {
		t.Fatalf("bob must not see alice's categories")
	}
	if _, err := s.InsertTransaction(ctx, bob, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 1}, Date: time.Now()}); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected bob to be refused alice's category, got %v", err)
	}
	if err := s.DeleteCategory(ctx, bob, c.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another owner's category, got %v", err)
	}
}

func TestFindTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewScoped()
	scope := store.Scope{UserID: "u1"}
	c, _ := s.InsertCategory(ctx, scope, core.Category{Name: "Comida", Color: "#ef4444"})
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	if _, err := s.InsertTransaction(ctx, scope, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 1250}, Date: at, Note: "Lunch"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cases := []struct {
		name  string
		when  time.Time
		note  string
		found bool
	}{
		{"same day normalized note", at.Add(10 * time.Hour), "  LUNCH", true},
		{"other day", at.AddDate(0, 0, 1), "lunch", false},
		{"other note", at, "dinner", false},
	}
	for _, tc := range cases {
		found, err := s.FindTransaction(ctx, scope, c.ID, core.Money{Cents: 1250}, tc.when, tc.note)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if found != tc.found {
			t.Errorf("%s: found = %v, want %v", tc.name, found, tc.found)
		}
	}
}

func TestHookFailsOperation(t *testing.T) {
	s := New()
	s.Hook = func(op string, _ any) error {
		if op == "insert category" {
			return errors.New("boom")
		}
		return nil
	}
	_, err := s.InsertCategory(context.Background(), store.LocalScope, core.Category{Name: "A", Color: "#000"})
	var se *core.StoreError
	if !errors.As(err, &se) || se.Op != "insert category" {
		t.Fatalf("expected StoreError from hook, got %v", err)
	}
}
