package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the statements shared by the local and remote SQL stores.
// Every statement is filtered by user_id; the local store uses "".
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type CategoryRow struct {
	ID          string
	UserID      string
	Name        string
	Color       string
	Emoji       string
	BudgetCents sql.NullInt64
	CreatedAt   int64
}

type TransactionRow struct {
	ID          string
	UserID      string
	CategoryID  string
	AmountCents int64
	Note        sql.NullString
	OccurredAt  int64
	CreatedAt   int64
}

const listCategories = `SELECT id, user_id, name, color, emoji, budget_cents, created_at
FROM categories WHERE user_id = ? ORDER BY name ASC, created_at ASC`

func (q *Queries) ListCategories(ctx context.Context, userID string) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var i CategoryRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Name, &i.Color, &i.Emoji, &i.BudgetCents, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getCategory = `SELECT id, user_id, name, color, emoji, budget_cents, created_at
FROM categories WHERE user_id = ? AND id = ?`

func (q *Queries) GetCategory(ctx context.Context, userID, id string) (CategoryRow, error) {
	var i CategoryRow
	err := q.db.QueryRowContext(ctx, getCategory, userID, id).
		Scan(&i.ID, &i.UserID, &i.Name, &i.Color, &i.Emoji, &i.BudgetCents, &i.CreatedAt)
	return i, err
}

const createCategory = `INSERT INTO categories (id, user_id, name, color, emoji, budget_cents, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, arg CategoryRow) error {
	_, err := q.db.ExecContext(ctx, createCategory, arg.ID, arg.UserID, arg.Name, arg.Color, arg.Emoji, arg.BudgetCents, arg.CreatedAt)
	return err
}

const updateCategory = `UPDATE categories SET name = ?, color = ?, emoji = ?, budget_cents = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, arg CategoryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, arg.Name, arg.Color, arg.Emoji, arg.BudgetCents, arg.UserID, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCategory = `DELETE FROM categories WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransactionsByCategory = `DELETE FROM transactions WHERE user_id = ? AND category_id = ?`

func (q *Queries) DeleteTransactionsByCategory(ctx context.Context, userID, categoryID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransactionsByCategory, userID, categoryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactions = `SELECT id, user_id, category_id, amount_cents, note, occurred_at, created_at
FROM transactions WHERE user_id = ? ORDER BY occurred_at DESC, created_at DESC`

func (q *Queries) ListTransactions(ctx context.Context, userID string) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, listTransactions, userID)
}

const getTransaction = `SELECT id, user_id, category_id, amount_cents, note, occurred_at, created_at
FROM transactions WHERE user_id = ? AND id = ?`

func (q *Queries) GetTransaction(ctx context.Context, userID, id string) (TransactionRow, error) {
	var i TransactionRow
	err := q.db.QueryRowContext(ctx, getTransaction, userID, id).
		Scan(&i.ID, &i.UserID, &i.CategoryID, &i.AmountCents, &i.Note, &i.OccurredAt, &i.CreatedAt)
	return i, err
}

const findTransactionsOnDay = `SELECT id, user_id, category_id, amount_cents, note, occurred_at, created_at
FROM transactions
WHERE user_id = ? AND category_id = ? AND amount_cents = ? AND occurred_at >= ? AND occurred_at < ?`

// FindTransactionsOnDay returns candidates for a content lookup; notes are
// compared by the caller.
func (q *Queries) FindTransactionsOnDay(ctx context.Context, userID, categoryID string, amountCents, dayStart, dayEnd int64) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, findTransactionsOnDay, userID, categoryID, amountCents, dayStart, dayEnd)
}

const createTransaction = `INSERT INTO transactions (id, user_id, category_id, amount_cents, note, occurred_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, arg TransactionRow) error {
	_, err := q.db.ExecContext(ctx, createTransaction, arg.ID, arg.UserID, arg.CategoryID, arg.AmountCents, arg.Note, arg.OccurredAt, arg.CreatedAt)
	return err
}

const updateTransaction = `UPDATE transactions SET category_id = ?, amount_cents = ?, note = ?, occurred_at = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, arg TransactionRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction, arg.CategoryID, arg.AmountCents, arg.Note, arg.OccurredAt, arg.UserID, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...any) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.CategoryID, &i.AmountCents, &i.Note, &i.OccurredAt, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
