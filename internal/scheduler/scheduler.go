// Package scheduler decides when a sync runs and guarantees runs never
// overlap. A run starts on login, on the interval tick while a session is
// active, or on a manual Trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/session"
	"budgetsync/internal/store"
)

var (
	// ErrBusy is returned when a run or exclusive job is already in progress.
	ErrBusy = errors.New("sync already in progress")
	// ErrNoSession is returned when a sync is requested without a session.
	ErrNoSession = errors.New("no active session")
)

// State of the scheduler flag.
type State int32

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "idle"
}

// Runner performs one sync for a scope.
type Runner interface {
	RunSync(ctx context.Context, scope store.Scope) (core.Report, error)
}

// Sessions is the part of the session tracker the scheduler needs.
type Sessions interface {
	Current() (store.Scope, bool)
	Subscribe() <-chan session.Event
}

// Config holds scheduler timing.
type Config struct {
	// Interval between background syncs while a session is active (default: 5m)
	Interval time.Duration

	// RunTimeout bounds a single run or exclusive job (default: 2m)
	RunTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		RunTimeout: 2 * time.Minute,
	}
}

// Result describes the last finished run.
type Result struct {
	Scope      store.Scope
	Reason     string
	Report     core.Report
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type Scheduler struct {
	runner   Runner
	sessions Sessions
	events   <-chan session.Event
	config   Config

	state atomic.Int32

	resMu   sync.Mutex
	last    Result
	hasLast bool

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(runner Runner, sessions Sessions, config Config) *Scheduler {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.RunTimeout < 0 {
		config.RunTimeout = 0
	}
	return &Scheduler{
		runner:   runner,
		sessions: sessions,
		events:   sessions.Subscribe(),
		config:   config,
	}
}

// State returns the current flag value.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastResult returns the last finished run, if any.
func (s *Scheduler) LastResult() (Result, bool) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	return s.last, s.hasLast
}

// Trigger runs a sync now for the current session and waits for it.
func (s *Scheduler) Trigger(ctx context.Context) (core.Report, error) {
	scope, ok := s.sessions.Current()
	if !ok {
		return core.Report{}, ErrNoSession
	}
	return s.run(ctx, scope, "manual")
}

// Exclusive runs fn while holding the sync flag, so it never overlaps a
// sync or another exclusive job.
func (s *Scheduler) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.state.CompareAndSwap(int32(Idle), int32(Syncing)) {
		return ErrBusy
	}
	defer s.state.Store(int32(Idle))

	ctx, cancel := s.bound(ctx)
	defer cancel()
	return fn(ctx)
}

func (s *Scheduler) run(ctx context.Context, scope store.Scope, reason string) (core.Report, error) {
	if !s.state.CompareAndSwap(int32(Idle), int32(Syncing)) {
		return core.Report{}, ErrBusy
	}
	defer s.state.Store(int32(Idle))

	ctx, cancel := s.bound(ctx)
	defer cancel()

	started := time.Now()
	slog.InfoContext(ctx, "Sync started", "scope", scope.String(), "reason", reason)

	report, err := s.runner.RunSync(ctx, scope)

	finished := time.Now()
	s.resMu.Lock()
	s.last = Result{
		Scope:      scope,
		Reason:     reason,
		Report:     report,
		Err:        err,
		StartedAt:  started,
		FinishedAt: finished,
	}
	s.hasLast = true
	s.resMu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Sync failed",
			"scope", scope.String(),
			"reason", reason,
			"duration", finished.Sub(started),
			"error", err)
		return report, fmt.Errorf("sync %s: %w", scope, err)
	}
	slog.InfoContext(ctx, "Sync completed",
		"scope", scope.String(),
		"reason", reason,
		"duration", finished.Sub(started),
		"report", report.String())
	return report, nil
}

func (s *Scheduler) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.config.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// Start begins the background loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(loopCtx, stopCh, doneCh)

	slog.InfoContext(ctx, "Scheduler started",
		"interval", s.config.Interval,
		"run_timeout", s.config.RunTimeout)

	return nil
}

// Stop ends the loop, cancelling an in-flight background run, and waits
// for it to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	// The first caller closes stopCh; later callers only wait.
	stopCh, doneCh, cancel := s.stopCh, s.doneCh, s.cancel
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		cancel()
	}

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the background loop is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var seen store.Scope
	if scope, ok := s.sessions.Current(); ok {
		seen = scope
		s.background(ctx, scope, "startup")
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if !ev.LoggedIn {
				seen = store.Scope{}
				continue
			}
			if ev.Scope == seen {
				continue
			}
			seen = ev.Scope
			s.background(ctx, ev.Scope, "login")
		case <-ticker.C:
			if scope, ok := s.sessions.Current(); ok {
				s.background(ctx, scope, "interval")
			}
		}
	}
}

func (s *Scheduler) background(ctx context.Context, scope store.Scope, reason string) {
	if _, err := s.run(ctx, scope, reason); errors.Is(err, ErrBusy) {
		slog.DebugContext(ctx, "Sync skipped, another run in progress", "reason", reason)
	}
}
