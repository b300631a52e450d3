// Package http serves the JSON API used to drive the budget from scripts
// and other services.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"budgetsync/internal/backup"
	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/store"
)

// Budget is the part of the budget service exposed over HTTP.
type Budget interface {
	Load(ctx context.Context) error
	State() (core.Snapshot, store.Scope)
	Summary(from, to time.Time) core.Summary
	AddCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, id string, p core.CategoryPatch) (core.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	Import(ctx context.Context, p backup.Payload) (core.Report, error)
	Export() backup.Payload
	Wipe(ctx context.Context) error
}

// Syncer runs and reports sync runs.
type Syncer interface {
	Trigger(ctx context.Context) (core.Report, error)
	State() scheduler.State
	LastResult() (scheduler.Result, bool)
}

// Sessions changes and reports the signed-in user.
type Sessions interface {
	Login(userID string) bool
	Logout()
	Current() (store.Scope, bool)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Ready and Logger are optional.
type Deps struct {
	Budget           Budget
	Syncer           Syncer
	Sessions         Sessions
	Ready            Pinger
	Logger           *applog.Logger
	RemoteConfigured bool

	// RateLimit is the number of mutating requests a client may send per
	// RateWindow (defaults: 60 per minute)
	RateLimit  int
	RateWindow time.Duration
}

type Server struct {
	http.Server
	budget      Budget
	syncer      Syncer
	sessions    Sessions
	ready       Pinger
	structured  *applog.StructuredLogger
	hasRemote   bool
	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// background syncs started by POST /api/sync outlive their request
	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger, _ = applog.New(applog.Config{Level: slog.LevelInfo, Format: "text", Component: applog.ComponentHTTP})
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		budget:      deps.Budget,
		syncer:      deps.Syncer,
		sessions:    deps.Sessions,
		ready:       deps.Ready,
		structured:  applog.NewStructuredLogger(logger),
		hasRemote:   deps.RemoteConfigured,
		rateLimiter: newRateLimiter(deps.RateLimit, deps.RateWindow),
		metrics:     &securityMetrics{},
		baseCtx:     baseCtx,
		cancelBase:  cancel,
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("POST /api/sync", s.handleSync)
	api.HandleFunc("POST /api/session", s.handleLogin)
	api.HandleFunc("DELETE /api/session", s.handleLogout)
	api.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	api.HandleFunc("GET /api/summary", s.handleSummary)
	api.HandleFunc("POST /api/import", s.handleImport)
	api.HandleFunc("GET /api/export", s.handleExport)
	api.HandleFunc("DELETE /api/data", s.handleWipe)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	api.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/", s.withTrace(applog.Middleware(logger, requestIDOf)(s.withGuards(api))))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests, then waits for background syncs
// started through the API.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.cancelBase()

		done := make(chan struct{})
		go func() {
			s.background.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.WarnContext(ctx, "Background syncs still running at shutdown")
		}
	})
	return shutdownErr
}

// Stats returns the security counters.
func (s *Server) Stats() SecurityStats {
	return s.metrics.snapshot()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
