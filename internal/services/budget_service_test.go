package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"budgetsync/internal/backup"
	"budgetsync/internal/cache"
	"budgetsync/internal/core"
	"budgetsync/internal/sample"
	"budgetsync/internal/session"
	"budgetsync/internal/store"
	"budgetsync/internal/store/memory"
)

type fixture struct {
	local   *memory.Store
	remote  *memory.Store
	tracker *session.Tracker
	cache   *cache.Snapshots
	svc     *BudgetService
}

func newFixture() *fixture {
	f := &fixture{
		local:   memory.New(),
		remote:  memory.NewScoped(),
		tracker: session.NewTracker(),
		cache:   cache.NewSnapshots(4, time.Hour),
	}
	f.svc = NewBudgetService(f.local, f.remote, f.tracker, f.cache)
	return f
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 10, 0, 0, 0, time.UTC)
}

func seedLocal(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	food, err := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "Comida", Color: "#ef4444", Emoji: "🍔"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	home, err := s.InsertCategory(ctx, store.LocalScope, core.Category{Name: "Hogar", Color: "#f59e0b", Emoji: "🏠"})
	if err != nil {
		t.Fatalf("insert category: %v", err)
	}
	txs := []core.Transaction{
		{CategoryID: food.ID, Amount: core.Money{Cents: 1250}, Note: "Menu del dia", Date: day(1)},
		{CategoryID: food.ID, Amount: core.Money{Cents: 320}, Note: "Cafe", Date: day(2)},
		{CategoryID: food.ID, Amount: core.Money{Cents: 1250}, Note: "Menu del dia", Date: day(3)},
		{CategoryID: home.ID, Amount: core.Money{Cents: 4500}, Date: day(4)},
		{CategoryID: home.ID, Amount: core.Money{Cents: 899}, Note: "Bombillas", Date: day(5)},
	}
	for _, tx := range txs {
		if _, err := s.InsertTransaction(ctx, store.LocalScope, tx); err != nil {
			t.Fatalf("insert transaction: %v", err)
		}
	}
}

func TestLoadUsesLocalWithoutSession(t *testing.T) {
	f := newFixture()
	seedLocal(t, f.local)

	if err := f.svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	st, scope := f.svc.State()
	if !scope.IsZero() {
		t.Fatalf("expected local scope, got %s", scope)
	}
	if len(st.Categories) != 2 || len(st.Transactions) != 5 {
		t.Fatalf("unexpected state: %d categories, %d transactions", len(st.Categories), len(st.Transactions))
	}
}

func TestRunSyncAdoptsRemoteSnapshot(t *testing.T) {
	f := newFixture()
	seedLocal(t, f.local)
	f.tracker.Login("u1")
	scope := store.Scope{UserID: "u1"}
	ctx := context.Background()

	report, err := f.svc.RunSync(ctx, scope)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.NewCategories != 2 || report.NewTransactions != 5 {
		t.Fatalf("expected {2,5}, got %+v", report)
	}

	st, got := f.svc.State()
	if got != scope {
		t.Fatalf("expected state for u1, got %s", got)
	}
	if len(st.Transactions) != 5 {
		t.Fatalf("expected 5 transactions in state, got %d", len(st.Transactions))
	}
	if _, ok := f.cache.Get(scope); !ok {
		t.Fatalf("expected snapshot cached")
	}

	again, err := f.svc.RunSync(ctx, scope)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if !again.NoChanges() {
		t.Fatalf("expected no changes on re-sync, got %+v", again)
	}
}

func TestRunSyncFailureKeepsState(t *testing.T) {
	f := newFixture()
	seedLocal(t, f.local)
	ctx := context.Background()
	if err := f.svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	before, _ := f.svc.State()

	f.remote.Hook = func(op string, _ any) error {
		if op == "list transactions" {
			return errors.New("offline")
		}
		return nil
	}
	f.tracker.Login("u1")

	_, err := f.svc.RunSync(ctx, store.Scope{UserID: "u1"})
	var se *core.SyncError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyncError, got %v", err)
	}
	after, scope := f.svc.State()
	if !scope.IsZero() || len(after.Transactions) != len(before.Transactions) {
		t.Fatalf("expected working state unchanged")
	}
}

func TestLoadFallsBackToCache(t *testing.T) {
	f := newFixture()
	f.tracker.Login("u1")
	scope := store.Scope{UserID: "u1"}
	f.cache.Put(scope, core.Snapshot{Categories: []core.Category{{ID: "c1", Name: "Comida"}}})
	f.remote.Hook = func(string, any) error { return errors.New("offline") }

	if err := f.svc.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	st, got := f.svc.State()
	if got != scope || len(st.Categories) != 1 {
		t.Fatalf("expected cached state adopted, got %s %+v", got, st)
	}
}

func TestSessionWithoutRemote(t *testing.T) {
	tracker := session.NewTracker()
	svc := NewBudgetService(memory.New(), nil, tracker, nil)
	tracker.Login("u1")

	if _, err := svc.AddCategory(context.Background(), core.Category{Name: "Comida", Color: "#ef4444"}); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("expected ErrNoRemote, got %v", err)
	}
	if _, err := svc.RunSync(context.Background(), store.Scope{UserID: "u1"}); !errors.Is(err, ErrNoRemote) {
		t.Fatalf("expected ErrNoRemote from sync, got %v", err)
	}
}

func TestCategoryCRUD(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := f.svc.AddCategory(ctx, core.Category{Name: " ", Color: "#ef4444"}); err == nil {
		t.Fatalf("expected validation error")
	}

	c, err := f.svc.AddCategory(ctx, core.Category{Name: "Comida", Color: "#ef4444", Emoji: "🍔"})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	if _, err := f.svc.AddTransaction(ctx, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 100}, Date: day(1)}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	blue := "blue"
	var ve *core.ValidationError
	if _, err := f.svc.UpdateCategory(ctx, c.ID, core.CategoryPatch{Color: &blue}); !errors.As(err, &ve) || ve.Field != "color" {
		t.Fatalf("expected color validation error, got %v", err)
	}

	name := "Restaurantes"
	if _, err := f.svc.UpdateCategory(ctx, c.ID, core.CategoryPatch{Name: &name}); err != nil {
		t.Fatalf("update category: %v", err)
	}
	st, _ := f.svc.State()
	if st.Categories[0].Name != "Restaurantes" {
		t.Fatalf("expected renamed category in state, got %+v", st.Categories)
	}

	if err := f.svc.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	st, _ = f.svc.State()
	if !st.IsEmpty() {
		t.Fatalf("expected cascade to empty state, got %+v", st)
	}
	txs, _ := f.local.ListTransactions(ctx, store.LocalScope)
	if len(txs) != 0 {
		t.Fatalf("expected cascade in store, got %d transactions", len(txs))
	}
}

func TestWritesBeforeLoadReachState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.AddCategory(ctx, core.Category{Name: "Comida", Color: "#ef4444", Emoji: "🍔"})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	if _, err := f.svc.AddTransaction(ctx, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 4250}, Date: day(2)}); err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	p := f.svc.Export()
	if len(p.Categories) != 1 || len(p.Transactions) != 1 {
		t.Fatalf("expected export of 1 category and 1 transaction, got %d and %d", len(p.Categories), len(p.Transactions))
	}
	if sum := f.svc.Summary(day(1), day(3)); sum.Total.Cents != 4250 {
		t.Fatalf("expected total 42.50, got %s", sum.Total.Fixed())
	}

	// Signing in moves the authoritative store; the next write reloads it.
	f.tracker.Login("ana")
	if _, err := f.svc.AddCategory(ctx, core.Category{Name: "Hogar", Color: "#f59e0b", Emoji: "🏠"}); err != nil {
		t.Fatalf("add remote category: %v", err)
	}
	st, scope := f.svc.State()
	if scope.UserID != "ana" {
		t.Fatalf("expected state for ana, got %s", scope)
	}
	if len(st.Categories) != 1 || st.Categories[0].Name != "Hogar" || len(st.Transactions) != 0 {
		t.Fatalf("expected only the remote category in state, got %+v", st)
	}
}

func TestTransactionUpdateDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, err := f.svc.AddCategory(ctx, core.Category{Name: "Ocio", Color: "#06b6d4"})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	if err := f.svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	tx, err := f.svc.AddTransaction(ctx, core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 900}, Note: "Cine", Date: day(8)})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}

	amount := core.Money{Cents: 1100}
	updated, err := f.svc.UpdateTransaction(ctx, tx.ID, core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	if updated.Amount.Cents != 1100 {
		t.Fatalf("expected amount updated, got %d", updated.Amount.Cents)
	}

	if err := f.svc.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	st, _ := f.svc.State()
	if len(st.Transactions) != 0 {
		t.Fatalf("expected transaction removed from state")
	}
	if err := f.svc.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddTransactionIgnoresRemoteDuplicate(t *testing.T) {
	f := newFixture()
	f.tracker.Login("u1")
	ctx := context.Background()

	c, err := f.svc.AddCategory(ctx, core.Category{Name: "Comida", Color: "#ef4444"})
	if err != nil {
		t.Fatalf("add category: %v", err)
	}
	tx := core.Transaction{CategoryID: c.ID, Amount: core.Money{Cents: 1250}, Note: "Menu", Date: day(1)}
	first, err := f.svc.AddTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	tx.Note = "  MENU "
	dup, err := f.svc.AddTransaction(ctx, tx)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if dup.ID != first.ID {
		t.Fatalf("expected existing transaction returned")
	}
	txs, _ := f.remote.ListTransactions(ctx, store.Scope{UserID: "u1"})
	if len(txs) != 1 {
		t.Fatalf("expected 1 remote transaction, got %d", len(txs))
	}
}

func TestImportIntoEmptyLocal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := backup.Payload{
		Categories: []core.Category{{ID: "old-cat", Name: "Comida", Color: "#ef4444", Emoji: "🍔"}},
		Transactions: []core.Transaction{
			{ID: "old-1", CategoryID: "old-cat", Amount: core.Money{Cents: 1250}, Date: day(1)},
			{ID: "old-2", CategoryID: "old-cat", Amount: core.Money{Cents: 300}, Date: day(2)},
			{ID: "old-3", CategoryID: "old-cat", Amount: core.Money{Cents: 990}, Note: "Cena", Date: day(3)},
		},
	}

	report, err := f.svc.Import(ctx, p)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.NewCategories != 1 || report.NewTransactions != 3 {
		t.Fatalf("expected {1,3}, got %+v", report)
	}
	st, _ := f.svc.State()
	if len(st.Transactions) != 3 {
		t.Fatalf("expected 3 transactions in state, got %d", len(st.Transactions))
	}
	for _, tx := range st.Transactions {
		if tx.ID == "old-1" || tx.ID == "old-2" || tx.ID == "old-3" || tx.CategoryID == "old-cat" {
			t.Fatalf("payload identifiers must not be written: %+v", tx)
		}
	}

	again, err := f.svc.Import(ctx, p)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !again.NoChanges() {
		t.Fatalf("expected re-import to add nothing, got %+v", again)
	}
}

type busyGuard struct{}

func (busyGuard) Exclusive(context.Context, func(context.Context) error) error {
	return errors.New("busy")
}

func TestImportRunsUnderGuard(t *testing.T) {
	f := newFixture()
	f.svc.SetGuard(busyGuard{})
	if _, err := f.svc.Import(context.Background(), backup.Payload{}); err == nil {
		t.Fatalf("expected guard error")
	}
	if err := f.svc.Wipe(context.Background()); err == nil {
		t.Fatalf("expected guard error from wipe")
	}
}

func TestGenerateSample(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	report, err := f.svc.GenerateSample(ctx, sample.Default(), rng)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.NewCategories != 5 || report.NewTransactions != 40 {
		t.Fatalf("expected {5,40}, got %+v", report)
	}
	st, _ := f.svc.State()
	if len(st.Transactions) != 40 {
		t.Fatalf("expected sample adopted as state, got %d transactions", len(st.Transactions))
	}

	if _, err := f.svc.GenerateSample(ctx, sample.Default(), rng); !errors.Is(err, ErrLocalNotEmpty) {
		t.Fatalf("expected ErrLocalNotEmpty, got %v", err)
	}

	f.tracker.Login("u1")
	if _, err := f.svc.GenerateSample(ctx, sample.Default(), rng); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestWipeAndSummary(t *testing.T) {
	f := newFixture()
	seedLocal(t, f.local)
	ctx := context.Background()
	if err := f.svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	sum := f.svc.Summary(day(1), day(3).Add(time.Hour))
	if sum.Total.Cents != 1250+320+1250 {
		t.Fatalf("unexpected total %d", sum.Total.Cents)
	}

	exported := f.svc.Export()
	if len(exported.Transactions) != 5 {
		t.Fatalf("expected export of 5 transactions, got %d", len(exported.Transactions))
	}

	if err := f.svc.Wipe(ctx); err != nil {
		t.Fatalf("wipe: %v", err)
	}
	st, _ := f.svc.State()
	if !st.IsEmpty() {
		t.Fatalf("expected empty state after wipe")
	}
	cats, _ := f.local.ListCategories(ctx, store.LocalScope)
	if len(cats) != 0 {
		t.Fatalf("expected empty store after wipe")
	}
}
