package store

import (
	"context"
	"time"

	"budgetsync/internal/core"
)

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call on s by d. A call still running when the
// deadline passes is abandoned and reported as a *core.StoreError wrapping
// context.DeadlineExceeded, even if the adapter ignores its context.
// A non-positive d returns s unchanged.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	if f, ok := s.(TransactionFinder); ok {
		return &timeoutFinder{timeoutStore: timeoutStore{next: s, timeout: d}, finder: f}
	}
	return &timeoutStore{next: s, timeout: d}
}

type result[T any] struct {
	v   T
	err error
}

func bounded[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, core.NewStoreError(op, r.err)
	case <-ctx.Done():
		var zero T
		return zero, &core.StoreError{Op: op, Err: ctx.Err()}
	}
}

func (s *timeoutStore) ListCategories(ctx context.Context, scope Scope) ([]core.Category, error) {
	return bounded(ctx, s.timeout, "list categories", func(ctx context.Context) ([]core.Category, error) {
		return s.next.ListCategories(ctx, scope)
	})
}

func (s *timeoutStore) ListTransactions(ctx context.Context, scope Scope) ([]core.Transaction, error) {
	return bounded(ctx, s.timeout, "list transactions", func(ctx context.Context) ([]core.Transaction, error) {
		return s.next.ListTransactions(ctx, scope)
	})
}

func (s *timeoutStore) InsertCategory(ctx context.Context, scope Scope, c core.Category) (core.Category, error) {
	return bounded(ctx, s.timeout, "insert category", func(ctx context.Context) (core.Category, error) {
		return s.next.InsertCategory(ctx, scope, c)
	})
}

func (s *timeoutStore) InsertTransaction(ctx context.Context, scope Scope, t core.Transaction) (core.Transaction, error) {
	return bounded(ctx, s.timeout, "insert transaction", func(ctx context.Context) (core.Transaction, error) {
		return s.next.InsertTransaction(ctx, scope, t)
	})
}

func (s *timeoutStore) UpdateCategory(ctx context.Context, scope Scope, id string, p core.CategoryPatch) (core.Category, error) {
	return bounded(ctx, s.timeout, "update category", func(ctx context.Context) (core.Category, error) {
		return s.next.UpdateCategory(ctx, scope, id, p)
	})
}

func (s *timeoutStore) UpdateTransaction(ctx context.Context, scope Scope, id string, p core.TransactionPatch) (core.Transaction, error) {
	return bounded(ctx, s.timeout, "update transaction", func(ctx context.Context) (core.Transaction, error) {
		return s.next.UpdateTransaction(ctx, scope, id, p)
	})
}

func (s *timeoutStore) DeleteCategory(ctx context.Context, scope Scope, id string) error {
	_, err := bounded(ctx, s.timeout, "delete category", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.DeleteCategory(ctx, scope, id)
	})
	return err
}

func (s *timeoutStore) DeleteTransaction(ctx context.Context, scope Scope, id string) error {
	_, err := bounded(ctx, s.timeout, "delete transaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.DeleteTransaction(ctx, scope, id)
	})
	return err
}

type timeoutFinder struct {
	timeoutStore
	finder TransactionFinder
}

func (s *timeoutFinder) FindTransaction(ctx context.Context, scope Scope, categoryID string, amount core.Money, date time.Time, note string) (bool, error) {
	return bounded(ctx, s.timeout, "find transaction", func(ctx context.Context) (bool, error) {
		return s.finder.FindTransaction(ctx, scope, categoryID, amount, date, note)
	})
}
