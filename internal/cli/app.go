package cli

import (
	"context"
	"fmt"

	"budgetsync/internal/backend"
	"budgetsync/internal/cache"
	"budgetsync/internal/config"
	applog "budgetsync/internal/log"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/services"
	"budgetsync/internal/session"
)

// App holds the components shared by both binaries.
type App struct {
	Config    *config.Config
	Logger    *applog.Logger
	Stores    *backend.Result
	Sessions  *session.Tracker
	Snapshots *cache.Snapshots
	Budget    *services.BudgetService
	Scheduler *scheduler.Scheduler
}

// Wire opens the stores and assembles the budget service and the sync
// scheduler. When userID is not empty a session is started for it before
// the working state is loaded.
func Wire(ctx context.Context, cfg *config.Config, logger *applog.Logger, userID string) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := backend.NewFactory(logger.Logger).Open(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Stores:    stores,
		Sessions:  session.NewTracker(),
		Snapshots: cache.NewSnapshots(cfg.CacheSize, cfg.CacheTTL),
	}
	app.Budget = services.NewBudgetService(stores.Local, stores.Remote, app.Sessions, app.Snapshots)
	app.Scheduler = scheduler.New(app.Budget, app.Sessions, scheduler.Config{
		Interval:   cfg.SyncInterval,
		RunTimeout: cfg.SyncRunTimeout,
	})
	app.Budget.SetGuard(app.Scheduler)

	if userID != "" {
		if stores.Remote == nil {
			_ = stores.Cleanup()
			return nil, fmt.Errorf("user %q given but no remote backend is configured", userID)
		}
		app.Sessions.Login(userID)
	}
	if err := app.Budget.Load(ctx); err != nil {
		logger.WarnContext(ctx, "Initial load failed", applog.FieldError, err)
	}
	return app, nil
}

// Close releases the stores.
func (a *App) Close() error {
	if a.Stores == nil || a.Stores.Cleanup == nil {
		return nil
	}
	return a.Stores.Cleanup()
}
