// Package store defines the adapter port shared by the local and remote
// record stores.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"budgetsync/internal/core"
)

// Scope selects the owner whose records an operation may see.
// The zero value is the local, unowned scope.
type Scope struct {
	UserID string
}

// LocalScope is the scope used for the local store.
var LocalScope = Scope{}

func (s Scope) IsZero() bool { return strings.TrimSpace(s.UserID) == "" }

func (s Scope) String() string {
	if s.IsZero() {
		return "local"
	}
	return s.UserID
}

// ErrScopeRequired is returned by owner-scoped adapters called without an owner.
var ErrScopeRequired = errors.New("owner scope required")

// Ports for record stores.
type (
	// Store is implemented by every record store. Lists are ordered:
	// categories by name ascending, transactions by date descending.
	// Deleting a category also deletes the transactions it owns.
	// Every failure is a *core.StoreError.
	Store interface {
		ListCategories(ctx context.Context, scope Scope) ([]core.Category, error)
		ListTransactions(ctx context.Context, scope Scope) ([]core.Transaction, error)

		InsertCategory(ctx context.Context, scope Scope, c core.Category) (core.Category, error)
		InsertTransaction(ctx context.Context, scope Scope, t core.Transaction) (core.Transaction, error)

		UpdateCategory(ctx context.Context, scope Scope, id string, p core.CategoryPatch) (core.Category, error)
		UpdateTransaction(ctx context.Context, scope Scope, id string, p core.TransactionPatch) (core.Transaction, error)

		DeleteCategory(ctx context.Context, scope Scope, id string) error
		DeleteTransaction(ctx context.Context, scope Scope, id string) error
	}

	// TransactionFinder looks up a single transaction by content: category,
	// amount, UTC calendar day and normalized note.
	TransactionFinder interface {
		FindTransaction(ctx context.Context, scope Scope, categoryID string, amount core.Money, date time.Time, note string) (bool, error)
	}
)

// Load lists both record kinds into a snapshot.
func Load(ctx context.Context, s Store, scope Scope) (core.Snapshot, error) {
	cats, err := s.ListCategories(ctx, scope)
	if err != nil {
		return core.Snapshot{}, err
	}
	txs, err := s.ListTransactions(ctx, scope)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{Categories: cats, Transactions: txs}, nil
}

// Wipe deletes every transaction and then every category in scope.
func Wipe(ctx context.Context, s Store, scope Scope) error {
	txs, err := s.ListTransactions(ctx, scope)
	if err != nil {
		return err
	}
	for _, t := range txs {
		if err := s.DeleteTransaction(ctx, scope, t.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
	}
	cats, err := s.ListCategories(ctx, scope)
	if err != nil {
		return err
	}
	for _, c := range cats {
		if err := s.DeleteCategory(ctx, scope, c.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
	}
	return nil
}

// SortCategories orders categories by name ascending.
func SortCategories(cs []core.Category) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
}

// SortTransactions orders transactions by date descending.
func SortTransactions(ts []core.Transaction) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Date.After(ts[j].Date) })
}
