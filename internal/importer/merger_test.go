package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"budgetsync/internal/backup"
	"budgetsync/internal/core"
	"budgetsync/internal/store"
	"budgetsync/internal/store/memory"
)

func at(d int) time.Time { return time.Date(2025, 4, d, 9, 0, 0, 0, time.UTC) }

func payload() backup.Payload {
	return backup.Payload{
		Categories: []core.Category{{ID: "P1", Name: "Transporte", Color: "#3b82f6", Emoji: "🚌"}},
		Transactions: []core.Transaction{
			{ID: "X1", CategoryID: "P1", Amount: core.Money{Cents: 150}, Date: at(1), Note: "Metro"},
			{ID: "X2", CategoryID: "P1", Amount: core.Money{Cents: 2000}, Date: at(2), Note: "Taxi"},
			{ID: "X3", CategoryID: "P1", Amount: core.Money{Cents: 4500}, Date: at(3)},
		},
	}
}

func TestMergeIntoEmptyLocal(t *testing.T) {
	ctx := context.Background()
	local := memory.New()

	res, err := New().Merge(ctx, Destination{Store: local, Scope: store.LocalScope}, payload())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewTransactions != 3 || res.Report.NewCategories != 1 {
		t.Fatalf("unexpected report %+v", res.Report)
	}

	snap, _ := store.Load(ctx, local, store.LocalScope)
	if len(snap.Categories) != 1 || len(snap.Transactions) != 3 {
		t.Fatalf("expected 1 category and 3 transactions, got %d/%d", len(snap.Categories), len(snap.Transactions))
	}
	if snap.Categories[0].ID == "P1" {
		t.Fatalf("payload category id must not be reused")
	}
	for _, tx := range snap.Transactions {
		if tx.ID == "X1" || tx.ID == "X2" || tx.ID == "X3" {
			t.Fatalf("payload transaction id %s reused", tx.ID)
		}
		if tx.CategoryID != snap.Categories[0].ID {
			t.Fatalf("transaction not translated to new category id: %+v", tx)
		}
	}
	if len(res.Snapshot.Transactions) != 3 || !res.Snapshot.Transactions[0].Date.Equal(at(3)) {
		t.Fatalf("expected caller state updated newest first, got %+v", res.Snapshot.Transactions)
	}
}

func TestMergeTwiceIsNoOp(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	m := New()

	first, err := m.Merge(ctx, Destination{Store: local, Scope: store.LocalScope}, payload())
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	second, err := m.Merge(ctx, Destination{Store: local, Scope: store.LocalScope, Current: first.Snapshot}, payload())
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if !second.Report.NoChanges() || second.Report.SkippedTransactions != 3 {
		t.Fatalf("expected nothing new on second import, got %+v", second.Report)
	}
}

func TestMergeCollapsesDuplicatesInPayload(t *testing.T) {
	p := payload()
	dup := p.Transactions[0]
	dup.ID = "X9"
	dup.Date = dup.Date.Add(6 * time.Hour)
	p.Transactions = append(p.Transactions, dup)

	res, err := New().Merge(context.Background(), Destination{Store: memory.New(), Scope: store.LocalScope}, p)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewTransactions != 3 || res.Report.SkippedTransactions != 1 {
		t.Fatalf("expected in-payload duplicate to be skipped, got %+v", res.Report)
	}
}

func TestMergeAcceptsFreeFormFields(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	p := backup.Payload{
		Categories: []core.Category{{ID: "P1", Name: strings.Repeat("Viajes ", 20), Color: "blue"}},
		Transactions: []core.Transaction{
			{ID: "X1", CategoryID: "P1", Amount: core.Money{Cents: 990}, Date: at(1), Note: "Tren"},
			{ID: "X2", CategoryID: "P1", Amount: core.Money{Cents: 12000}, Date: at(2), Note: strings.Repeat("hotel ", 50)},
			{ID: "X3", CategoryID: "P1", Amount: core.Money{Cents: 300}, Date: at(3)},
		},
	}

	res, err := New().Merge(ctx, Destination{Store: local, Scope: store.LocalScope}, p)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewCategories != 1 || res.Report.NewTransactions != 3 || res.Report.FailedTransactions != 0 {
		t.Fatalf("expected every record imported, got %+v", res.Report)
	}
	snap, _ := store.Load(ctx, local, store.LocalScope)
	if len(snap.Categories) != 1 || snap.Categories[0].Color != "blue" || len(snap.Transactions) != 3 {
		t.Fatalf("unexpected store content %+v", snap)
	}
}

func TestMergeRemoteUsesPointLookup(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewScoped()
	scope := store.Scope{UserID: "u1"}

	cat, _ := remote.InsertCategory(ctx, scope, core.Category{Name: "Transporte", Color: "#3b82f6", Emoji: "🚌"})
	// Written by another device after the caller's snapshot was taken.
	if _, err := remote.InsertTransaction(ctx, scope, core.Transaction{CategoryID: cat.ID, Amount: core.Money{Cents: 2000}, Date: at(2), Note: "taxi"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	current := core.Snapshot{Categories: []core.Category{cat}}

	res, err := New().Merge(ctx, Destination{Store: remote, Scope: scope, Remote: true, Current: current}, payload())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewCategories != 0 || res.Report.NewTransactions != 2 || res.Report.SkippedTransactions != 1 {
		t.Fatalf("unexpected report %+v", res.Report)
	}
	if len(res.Snapshot.Transactions) != 3 {
		t.Fatalf("expected refetched remote transactions, got %d", len(res.Snapshot.Transactions))
	}
}

func TestMergeRemoteLookupFailureStillImports(t *testing.T) {
	remote := memory.NewScoped()
	remote.Hook = func(op string, _ any) error {
		if op == "find transaction" {
			return errors.New("timeout")
		}
		return nil
	}
	res, err := New().Merge(context.Background(), Destination{Store: remote, Scope: store.Scope{UserID: "u1"}, Remote: true}, payload())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewTransactions != 3 {
		t.Fatalf("expected imports despite lookup failure, got %+v", res.Report)
	}
}

func TestMergeRemoteRefetchFailure(t *testing.T) {
	remote := memory.NewScoped()
	remote.Hook = func(op string, _ any) error {
		if op == "list transactions" {
			return errors.New("unavailable")
		}
		return nil
	}
	res, err := New().Merge(context.Background(), Destination{Store: remote, Scope: store.Scope{UserID: "u1"}, Remote: true}, payload())
	var se *core.SyncError
	if !errors.As(err, &se) || se.Stage != StageRefetch {
		t.Fatalf("expected refetch SyncError, got %v", err)
	}
	if res.Report.NewTransactions != 3 {
		t.Fatalf("expected committed inserts reported, got %+v", res.Report)
	}
}

func TestMergeSkipsFailedRows(t *testing.T) {
	local := memory.New()
	local.Hook = func(op string, rec any) error {
		if tx, ok := rec.(core.Transaction); ok && op == "insert transaction" && tx.Note == "Taxi" {
			return errors.New("constraint")
		}
		return nil
	}
	res, err := New().Merge(context.Background(), Destination{Store: local, Scope: store.LocalScope}, payload())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Report.NewTransactions != 2 || res.Report.FailedTransactions != 1 {
		t.Fatalf("unexpected report %+v", res.Report)
	}
}
