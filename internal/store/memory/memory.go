// Package memory is an in-process record store. It backs tests and the
// "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/store"
)

type category struct {
	owner string
	core.Category
}

type transaction struct {
	owner string
	core.Transaction
}

// Store keeps records per owner. With RequireScope set it behaves like a
// remote store and rejects calls without an owner.
type Store struct {
	mu    sync.Mutex
	cats  []category
	txs   []transaction
	owned bool

	// Hook, when set, runs before every operation and can fail it.
	// rec is the record being written or the id being deleted.
	Hook func(op string, rec any) error

	// NewID generates identifiers; defaults to random UUIDs.
	NewID func() string
}

func New() *Store {
	return &Store{NewID: uuid.NewString}
}

// NewScoped returns a store that enforces owner scoping.
func NewScoped() *Store {
	s := New()
	s.owned = true
	return s
}

func (s *Store) check(op string, scope store.Scope, rec any) error {
	if s.owned && scope.IsZero() {
		return &core.StoreError{Op: op, Err: store.ErrScopeRequired}
	}
	if s.Hook != nil {
		if err := s.Hook(op, rec); err != nil {
			return core.NewStoreError(op, err)
		}
	}
	return nil
}

func (s *Store) owner(scope store.Scope) string {
	if !s.owned {
		return ""
	}
	return scope.UserID
}

func (s *Store) ListCategories(_ context.Context, scope store.Scope) ([]core.Category, error) {
	if err := s.check("list categories", scope, nil); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		if c.owner == owner {
			out = append(out, cloneCategory(c.Category))
		}
	}
	store.SortCategories(out)
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context, scope store.Scope) ([]core.Transaction, error) {
	if err := s.check("list transactions", scope, nil); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	out := make([]core.Transaction, 0, len(s.txs))
	for _, t := range s.txs {
		if t.owner == owner {
			out = append(out, t.Transaction)
		}
	}
	store.SortTransactions(out)
	return out, nil
}

func (s *Store) InsertCategory(_ context.Context, scope store.Scope, c core.Category) (core.Category, error) {
	const op = "insert category"
	if err := s.check(op, scope, c); err != nil {
		return core.Category{}, err
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.NewID()
	c = cloneCategory(c)
	s.cats = append(s.cats, category{owner: s.owner(scope), Category: c})
	return c, nil
}

func (s *Store) InsertTransaction(_ context.Context, scope store.Scope, t core.Transaction) (core.Transaction, error) {
	const op = "insert transaction"
	if err := s.check(op, scope, t); err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	if s.categoryIndex(owner, t.CategoryID) < 0 {
		return core.Transaction{}, &core.StoreError{Op: op, Err: fmt.Errorf("%w %q", core.ErrUnknownCategory, t.CategoryID)}
	}
	t.ID = s.NewID()
	t.Date = t.Date.UTC()
	s.txs = append(s.txs, transaction{owner: owner, Transaction: t})
	return t, nil
}

func (s *Store) UpdateCategory(_ context.Context, scope store.Scope, id string, p core.CategoryPatch) (core.Category, error) {
	const op = "update category"
	if err := s.check(op, scope, p); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.categoryIndex(s.owner(scope), id)
	if i < 0 {
		return core.Category{}, &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	updated := p.Apply(s.cats[i].Category)
	if err := updated.Validate(); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	s.cats[i].Category = updated
	return updated, nil
}

func (s *Store) UpdateTransaction(_ context.Context, scope store.Scope, id string, p core.TransactionPatch) (core.Transaction, error) {
	const op = "update transaction"
	if err := s.check(op, scope, p); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	i := s.transactionIndex(owner, id)
	if i < 0 {
		return core.Transaction{}, &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	updated := p.Apply(s.txs[i].Transaction)
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	if s.categoryIndex(owner, updated.CategoryID) < 0 {
		return core.Transaction{}, &core.StoreError{Op: op, Err: core.ErrUnknownCategory}
	}
	updated.Date = updated.Date.UTC()
	s.txs[i].Transaction = updated
	return updated, nil
}

func (s *Store) DeleteCategory(_ context.Context, scope store.Scope, id string) error {
	const op = "delete category"
	if err := s.check(op, scope, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	i := s.categoryIndex(owner, id)
	if i < 0 {
		return &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	s.cats = append(s.cats[:i], s.cats[i+1:]...)
	kept := s.txs[:0]
	for _, t := range s.txs {
		if t.owner == owner && t.CategoryID == id {
			continue
		}
		kept = append(kept, t)
	}
	s.txs = kept
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, scope store.Scope, id string) error {
	const op = "delete transaction"
	if err := s.check(op, scope, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.transactionIndex(s.owner(scope), id)
	if i < 0 {
		return &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	s.txs = append(s.txs[:i], s.txs[i+1:]...)
	return nil
}

// FindTransaction implements store.TransactionFinder.
func (s *Store) FindTransaction(_ context.Context, scope store.Scope, categoryID string, amount core.Money, date time.Time, note string) (bool, error) {
	if err := s.check("find transaction", scope, categoryID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := s.owner(scope)
	day := identity.Day(date)
	note = identity.NormalizeNote(note)
	for _, t := range s.txs {
		if t.owner != owner || t.CategoryID != categoryID || t.Amount != amount {
			continue
		}
		if identity.Day(t.Date) == day && identity.NormalizeNote(t.Note) == note {
			return true, nil
		}
	}
	return false, nil
}

func cloneCategory(c core.Category) core.Category {
	if c.Budget != nil {
		b := *c.Budget
		c.Budget = &b
	}
	return c
}

func (s *Store) categoryIndex(owner, id string) int {
	for i, c := range s.cats {
		if c.owner == owner && c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) transactionIndex(owner, id string) int {
	for i, t := range s.txs {
		if t.owner == owner && t.ID == id {
			return i
		}
	}
	return -1
}
