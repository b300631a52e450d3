package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/store"

	_ "modernc.org/sqlite"
)

// Repository is a SQL-backed store.Store. The local store uses it with the
// empty owner; remote stores set RequireOwner.
type Repository struct {
	db           *sql.DB
	queries      *Queries
	requireOwner bool
	now          func() time.Time
}

// NewRepository wraps an open database whose schema is already migrated.
func NewRepository(db *sql.DB, requireOwner bool) *Repository {
	return &Repository{
		db:           db,
		queries:      New(db),
		requireOwner: requireOwner,
		now:          time.Now,
	}
}

// NewSQLiteRepository opens (creating if needed) the local SQLite database
// at dbPath and applies migrations.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations("sqlite", dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db, false), nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) owner(op string, scope store.Scope) (string, error) {
	if !r.requireOwner {
		return "", nil
	}
	if scope.IsZero() {
		return "", &core.StoreError{Op: op, Err: store.ErrScopeRequired}
	}
	return scope.UserID, nil
}

func (r *Repository) ListCategories(ctx context.Context, scope store.Scope) ([]core.Category, error) {
	const op = "list categories"
	userID, err := r.owner(op, scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListCategories(ctx, userID)
	if err != nil {
		return nil, &core.StoreError{Op: op, Err: err}
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, categoryFromRow(row))
	}
	return out, nil
}

func (r *Repository) ListTransactions(ctx context.Context, scope store.Scope) ([]core.Transaction, error) {
	const op = "list transactions"
	userID, err := r.owner(op, scope)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListTransactions(ctx, userID)
	if err != nil {
		return nil, &core.StoreError{Op: op, Err: err}
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionFromRow(row))
	}
	return out, nil
}

func (r *Repository) InsertCategory(ctx context.Context, scope store.Scope, c core.Category) (core.Category, error) {
	const op = "insert category"
	userID, err := r.owner(op, scope)
	if err != nil {
		return core.Category{}, err
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	c.ID = uuid.NewString()
	row := categoryToRow(userID, c)
	row.CreatedAt = r.now().UnixMilli()
	if err := r.queries.CreateCategory(ctx, row); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	slog.DebugContext(ctx, "Category inserted", "id", c.ID, "name", c.Name, "owner", scope.String())
	return c, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, scope store.Scope, t core.Transaction) (core.Transaction, error) {
	const op = "insert transaction"
	userID, err := r.owner(op, scope)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	if err := r.requireCategory(ctx, userID, t.CategoryID); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	t.ID = uuid.NewString()
	t.Date = t.Date.UTC().Truncate(time.Millisecond)
	row := transactionToRow(userID, t)
	row.CreatedAt = r.now().UnixMilli()
	if err := r.queries.CreateTransaction(ctx, row); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	slog.DebugContext(ctx, "Transaction inserted",
		"id", t.ID,
		"category_id", t.CategoryID,
		"amount_cents", t.Amount.Cents,
		"owner", scope.String())
	return t, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, scope store.Scope, id string, p core.CategoryPatch) (core.Category, error) {
	const op = "update category"
	userID, err := r.owner(op, scope)
	if err != nil {
		return core.Category{}, err
	}
	row, err := r.queries.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: notFound(err)}
	}
	updated := p.Apply(categoryFromRow(row))
	if err := updated.Validate(); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	if _, err := r.queries.UpdateCategory(ctx, categoryToRow(userID, updated)); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	return updated, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, scope store.Scope, id string, p core.TransactionPatch) (core.Transaction, error) {
	const op = "update transaction"
	userID, err := r.owner(op, scope)
	if err != nil {
		return core.Transaction{}, err
	}
	row, err := r.queries.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: notFound(err)}
	}
	updated := p.Apply(transactionFromRow(row))
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	if p.CategoryID != nil {
		if err := r.requireCategory(ctx, userID, updated.CategoryID); err != nil {
			return core.Transaction{}, &core.StoreError{Op: op, Err: err}
		}
	}
	updated.Date = updated.Date.UTC().Truncate(time.Millisecond)
	if _, err := r.queries.UpdateTransaction(ctx, transactionToRow(userID, updated)); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	return updated, nil
}

// DeleteCategory removes the category and, in the same SQL transaction,
// every transaction it owns.
func (r *Repository) DeleteCategory(ctx context.Context, scope store.Scope, id string) error {
	const op = "delete category"
	userID, err := r.owner(op, scope)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StoreError{Op: op, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	removed, err := q.DeleteTransactionsByCategory(ctx, userID, id)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	n, err := q.DeleteCategory(ctx, userID, id)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	if n == 0 {
		return &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	if err := tx.Commit(); err != nil {
		return &core.StoreError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	slog.InfoContext(ctx, "Category deleted", "id", id, "transactions_removed", removed, "owner", scope.String())
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, scope store.Scope, id string) error {
	const op = "delete transaction"
	userID, err := r.owner(op, scope)
	if err != nil {
		return err
	}
	n, err := r.queries.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	if n == 0 {
		return &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	return nil
}

// FindTransaction implements store.TransactionFinder.
func (r *Repository) FindTransaction(ctx context.Context, scope store.Scope, categoryID string, amount core.Money, date time.Time, note string) (bool, error) {
	const op = "find transaction"
	userID, err := r.owner(op, scope)
	if err != nil {
		return false, err
	}
	start, end := identity.DayBounds(date)
	rows, err := r.queries.FindTransactionsOnDay(ctx, userID, categoryID, amount.Cents, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return false, &core.StoreError{Op: op, Err: err}
	}
	want := identity.NormalizeNote(note)
	for _, row := range rows {
		if identity.NormalizeNote(row.Note.String) == want {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) requireCategory(ctx context.Context, userID, id string) error {
	if _, err := r.queries.GetCategory(ctx, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w %q", core.ErrUnknownCategory, id)
		}
		return err
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func categoryFromRow(row CategoryRow) core.Category {
	c := core.Category{
		ID:    row.ID,
		Name:  row.Name,
		Color: row.Color,
		Emoji: row.Emoji,
	}
	if row.BudgetCents.Valid {
		c.Budget = &core.Money{Cents: row.BudgetCents.Int64}
	}
	return c
}

func categoryToRow(userID string, c core.Category) CategoryRow {
	row := CategoryRow{
		ID:     c.ID,
		UserID: userID,
		Name:   c.Name,
		Color:  c.Color,
		Emoji:  c.Emoji,
	}
	if c.Budget != nil {
		row.BudgetCents = sql.NullInt64{Int64: c.Budget.Cents, Valid: true}
	}
	return row
}

func transactionFromRow(row TransactionRow) core.Transaction {
	return core.Transaction{
		ID:         row.ID,
		CategoryID: row.CategoryID,
		Amount:     core.Money{Cents: row.AmountCents},
		Note:       row.Note.String,
		Date:       time.UnixMilli(row.OccurredAt).UTC(),
	}
}

func transactionToRow(userID string, t core.Transaction) TransactionRow {
	return TransactionRow{
		ID:          t.ID,
		UserID:      userID,
		CategoryID:  t.CategoryID,
		AmountCents: t.Amount.Cents,
		Note:        sql.NullString{String: t.Note, Valid: t.Note != ""},
		OccurredAt:  t.Date.UTC().UnixMilli(),
	}
}
