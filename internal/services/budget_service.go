package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"budgetsync/internal/backup"
	"budgetsync/internal/cache"
	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/importer"
	"budgetsync/internal/reconcile"
	"budgetsync/internal/sample"
	"budgetsync/internal/store"
)

var (
	ErrNoRemote             = errors.New("remote store not configured")
	ErrSessionActive        = errors.New("not allowed while a session is active")
	ErrLocalNotEmpty        = errors.New("local store already has data")
	ErrDuplicateTransaction = errors.New("identical transaction already recorded")
)

// SessionSource reports the active session, if any.
type SessionSource interface {
	Current() (store.Scope, bool)
}

// Guard serializes scope-mutating jobs with sync runs.
type Guard interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// BudgetService owns the working state: the snapshot of whichever store is
// authoritative. That is the remote store while a session is active and the
// local store otherwise. Every mutation goes to the authoritative store
// first and is mirrored into the working state only on success.
type BudgetService struct {
	local    store.Store
	remote   store.Store
	sessions SessionSource
	cache    *cache.Snapshots
	guard    Guard
	merger   *importer.Merger
	now      func() time.Time

	mu     sync.RWMutex
	state  core.Snapshot
	scope  store.Scope
	loaded bool
}

// NewBudgetService wires the service. remote and snapshots may be nil.
func NewBudgetService(local, remote store.Store, sessions SessionSource, snapshots *cache.Snapshots) *BudgetService {
	return &BudgetService{
		local:    local,
		remote:   remote,
		sessions: sessions,
		cache:    snapshots,
		merger:   importer.New(),
		now:      time.Now,
	}
}

// SetGuard makes Import, Wipe and GenerateSample run under g.
func (s *BudgetService) SetGuard(g Guard) {
	s.guard = g
}

type target struct {
	store  store.Store
	scope  store.Scope
	remote bool
}

func (s *BudgetService) target() (target, error) {
	scope, ok := s.sessions.Current()
	if !ok {
		return target{store: s.local, scope: store.LocalScope}, nil
	}
	if s.remote == nil {
		return target{}, ErrNoRemote
	}
	return target{store: s.remote, scope: scope, remote: true}, nil
}

func (s *BudgetService) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.guard == nil {
		return fn(ctx)
	}
	return s.guard.Exclusive(ctx, fn)
}

// Load replaces the working state with the authoritative store's content.
// When the remote read fails, the last cached snapshot for the scope, if
// any, is adopted and the error is still returned.
func (s *BudgetService) Load(ctx context.Context) error {
	tg, err := s.target()
	if err != nil {
		return err
	}
	snap, err := store.Load(ctx, tg.store, tg.scope)
	if err != nil {
		if tg.remote && s.cache != nil {
			if cached, ok := s.cache.Get(tg.scope); ok {
				slog.WarnContext(ctx, "Remote load failed, using cached snapshot",
					"scope", tg.scope.String(), "error", err)
				s.adopt(tg, cached)
			}
		}
		return fmt.Errorf("load %s: %w", tg.scope, err)
	}
	s.adopt(tg, snap)
	slog.InfoContext(ctx, "Working state loaded",
		"scope", tg.scope.String(),
		"categories", len(snap.Categories),
		"transactions", len(snap.Transactions))
	return nil
}

func (s *BudgetService) adopt(tg target, snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = snap
	s.scope = tg.scope
	s.loaded = true
	if tg.remote && s.cache != nil {
		s.cache.Put(tg.scope, snap)
	}
}

// current returns the working state for tg, loading it if the state
// belongs to another scope.
func (s *BudgetService) current(ctx context.Context, tg target) (core.Snapshot, error) {
	s.mu.RLock()
	if s.loaded && s.scope == tg.scope {
		snap := s.state.Clone()
		s.mu.RUnlock()
		return snap, nil
	}
	s.mu.RUnlock()

	snap, err := store.Load(ctx, tg.store, tg.scope)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load %s: %w", tg.scope, err)
	}
	s.adopt(tg, snap)
	return snap.Clone(), nil
}

// mutate applies fn to the working state if it belongs to tg.scope.
// Otherwise the state is reloaded from tg.store, which already holds the
// write.
func (s *BudgetService) mutate(ctx context.Context, tg target, fn func(core.Snapshot) core.Snapshot) {
	s.mu.Lock()
	if s.loaded && s.scope == tg.scope {
		s.state = fn(s.state)
		if tg.remote && s.cache != nil {
			s.cache.Put(tg.scope, s.state)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	snap, err := store.Load(ctx, tg.store, tg.scope)
	if err != nil {
		slog.WarnContext(ctx, "Reload after write failed",
			"scope", tg.scope.String(), "error", err)
		return
	}
	s.adopt(tg, snap)
}

// RunSync reconciles the local store into the remote store for scope. On
// success the refreshed remote snapshot becomes the working state; on
// failure the working state is left untouched.
func (s *BudgetService) RunSync(ctx context.Context, scope store.Scope) (core.Report, error) {
	if s.remote == nil {
		return core.Report{}, ErrNoRemote
	}
	local, err := store.Load(ctx, s.local, store.LocalScope)
	if err != nil {
		return core.Report{}, &core.SyncError{Stage: "load local", Err: err}
	}

	res, err := reconcile.New(s.remote).Run(ctx, scope, local)
	if err != nil {
		return res.Report, err
	}

	tg := target{store: s.remote, scope: scope, remote: true}
	if current, ok := s.sessions.Current(); ok && current == scope {
		s.adopt(tg, res.Snapshot)
	} else if s.cache != nil {
		s.cache.Put(scope, res.Snapshot)
	}
	return res.Report, nil
}

func (s *BudgetService) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = ""
	if err := c.ValidateInput(); err != nil {
		return core.Category{}, err
	}
	tg, err := s.target()
	if err != nil {
		return core.Category{}, err
	}
	inserted, err := tg.store.InsertCategory(ctx, tg.scope, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		st.Categories = append(st.Categories, inserted)
		store.SortCategories(st.Categories)
		return st
	})
	return inserted, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, id string, p core.CategoryPatch) (core.Category, error) {
	if err := p.ValidateInput(); err != nil {
		return core.Category{}, err
	}
	tg, err := s.target()
	if err != nil {
		return core.Category{}, err
	}
	updated, err := tg.store.UpdateCategory(ctx, tg.scope, id, p)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		for i := range st.Categories {
			if st.Categories[i].ID == id {
				st.Categories[i] = updated
			}
		}
		store.SortCategories(st.Categories)
		return st
	})
	return updated, nil
}

// DeleteCategory removes a category and, by cascade, its transactions.
func (s *BudgetService) DeleteCategory(ctx context.Context, id string) error {
	tg, err := s.target()
	if err != nil {
		return err
	}
	if err := tg.store.DeleteCategory(ctx, tg.scope, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		return st.WithoutCategory(id)
	})
	return nil
}

// AddTransaction records t. Against the remote store, a transaction whose
// identity matches one already in the working state is not inserted again:
// the existing one is returned with ErrDuplicateTransaction.
func (s *BudgetService) AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	if err := t.ValidateInput(); err != nil {
		return core.Transaction{}, err
	}
	tg, err := s.target()
	if err != nil {
		return core.Transaction{}, err
	}
	if tg.remote {
		st, err := s.current(ctx, tg)
		if err != nil {
			return core.Transaction{}, err
		}
		key := identity.TransactionKeyOf(t)
		for _, existing := range st.Transactions {
			if identity.TransactionKeyOf(existing) == key {
				slog.InfoContext(ctx, "Duplicate transaction ignored", "id", existing.ID)
				return existing, ErrDuplicateTransaction
			}
		}
	}
	inserted, err := tg.store.InsertTransaction(ctx, tg.scope, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		st.Transactions = append(st.Transactions, inserted)
		store.SortTransactions(st.Transactions)
		return st
	})
	return inserted, nil
}

func (s *BudgetService) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error) {
	if err := p.ValidateInput(); err != nil {
		return core.Transaction{}, err
	}
	tg, err := s.target()
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := tg.store.UpdateTransaction(ctx, tg.scope, id, p)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		for i := range st.Transactions {
			if st.Transactions[i].ID == id {
				st.Transactions[i] = updated
			}
		}
		store.SortTransactions(st.Transactions)
		return st
	})
	return updated, nil
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, id string) error {
	tg, err := s.target()
	if err != nil {
		return err
	}
	if err := tg.store.DeleteTransaction(ctx, tg.scope, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.mutate(ctx, tg, func(st core.Snapshot) core.Snapshot {
		out := st.Transactions[:0]
		for _, t := range st.Transactions {
			if t.ID != id {
				out = append(out, t)
			}
		}
		st.Transactions = out
		return st
	})
	return nil
}

// Import merges a backup payload into the authoritative store. The
// resulting state is adopted even when the merge stops early, since it
// reflects every committed insert.
func (s *BudgetService) Import(ctx context.Context, p backup.Payload) (core.Report, error) {
	var report core.Report
	err := s.exclusive(ctx, func(ctx context.Context) error {
		tg, err := s.target()
		if err != nil {
			return err
		}
		current, err := s.current(ctx, tg)
		if err != nil {
			return err
		}
		res, err := s.merger.Merge(ctx, importer.Destination{
			Store:   tg.store,
			Scope:   tg.scope,
			Remote:  tg.remote,
			Current: current,
		}, p)
		report = res.Report
		s.mutate(ctx, tg, func(core.Snapshot) core.Snapshot { return res.Snapshot })
		return err
	})
	if err != nil {
		return report, fmt.Errorf("import: %w", err)
	}
	return report, nil
}

// Export returns the working state as a backup payload.
func (s *BudgetService) Export() backup.Payload {
	st, _ := s.State()
	return backup.FromSnapshot(st)
}

// GenerateSample fills an empty local store with demo data. It is refused
// while a session is active or when the local store has any data.
func (s *BudgetService) GenerateSample(ctx context.Context, seed sample.Seed, rng *rand.Rand) (core.Report, error) {
	var report core.Report
	err := s.exclusive(ctx, func(ctx context.Context) error {
		if _, ok := s.sessions.Current(); ok {
			return ErrSessionActive
		}
		existing, err := store.Load(ctx, s.local, store.LocalScope)
		if err != nil {
			return err
		}
		if !existing.IsEmpty() {
			return ErrLocalNotEmpty
		}

		snap, err := sample.Generate(seed, s.now(), rng)
		if err != nil {
			return err
		}
		ids := make(map[string]string, len(snap.Categories))
		for _, c := range snap.Categories {
			placeholder := c.ID
			c.ID = ""
			inserted, err := s.local.InsertCategory(ctx, store.LocalScope, c)
			if err != nil {
				return err
			}
			ids[placeholder] = inserted.ID
			report.NewCategories++
		}
		for _, t := range snap.Transactions {
			t.CategoryID = ids[t.CategoryID]
			if _, err := s.local.InsertTransaction(ctx, store.LocalScope, t); err != nil {
				return err
			}
			report.NewTransactions++
		}

		loaded, err := store.Load(ctx, s.local, store.LocalScope)
		if err != nil {
			return err
		}
		s.adopt(target{store: s.local, scope: store.LocalScope}, loaded)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("generate sample: %w", err)
	}
	slog.InfoContext(ctx, "Sample data generated", "report", report.String())
	return report, nil
}

// Wipe deletes every transaction and category in the authoritative store.
func (s *BudgetService) Wipe(ctx context.Context) error {
	err := s.exclusive(ctx, func(ctx context.Context) error {
		tg, err := s.target()
		if err != nil {
			return err
		}
		if err := store.Wipe(ctx, tg.store, tg.scope); err != nil {
			return err
		}
		s.adopt(tg, core.Snapshot{})
		slog.InfoContext(ctx, "Store wiped", "scope", tg.scope.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("wipe: %w", err)
	}
	return nil
}

// Summary aggregates the working state over [from, to].
func (s *BudgetService) Summary(from, to time.Time) core.Summary {
	st, _ := s.State()
	return core.Summarize(st, from, to)
}

// State returns a copy of the working state and the scope it belongs to.
func (s *BudgetService) State() (core.Snapshot, store.Scope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), s.scope
}
