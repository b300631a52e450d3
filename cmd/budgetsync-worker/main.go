// Command budgetsync-worker keeps a session synchronized in the background.
// It runs the sync scheduler, serves the JSON API, consumes sync requests
// from the broker and imports backups dropped in the inbox directory.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsync/internal/amqp"
	"budgetsync/internal/cache"
	"budgetsync/internal/cli"
	apphttp "budgetsync/internal/http"
	"budgetsync/internal/inbox"
	applog "budgetsync/internal/log"
	"budgetsync/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger, closer, err := cli.Bootstrap(applog.ComponentWorker)
	if err != nil {
		cli.Fatal("Configuration validation failed", err)
	}
	defer closer.Close()

	ctx, cancel := cli.SignalContext(context.Background())
	defer cancel()

	logger.InfoContext(ctx, "Starting budgetsync-worker",
		"remote_backend", cfg.RemoteBackend,
		"port", cfg.Port)

	app, err := cli.Wire(ctx, cfg, logger, cfg.SessionUser)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize stores", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close stores", applog.FieldError, err)
		}
	}()

	janitor := cache.NewJanitor(app.Snapshots)
	janitor.Start(ctx, cfg.CacheTTL)
	defer janitor.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Budget:           app.Budget,
		Syncer:           app.Scheduler,
		Sessions:         app.Sessions,
		Ready:            app.Stores.Pinger,
		Logger:           logger.WithComponent(applog.ComponentHTTP),
		RemoteConfigured: app.Stores.Remote != nil,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 2 * cfg.SyncRunTimeout
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	if app.Stores.Remote != nil {
		if err := app.Scheduler.Start(gctx); err != nil {
			logger.ErrorContext(ctx, "Failed to start scheduler", applog.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.InfoContext(ctx, "No remote backend configured, background sync disabled")
	}

	g.Go(func() error {
		logger.InfoContext(gctx, "Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.AMQPURL != "" && app.Stores.Remote != nil {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		syncWorker := worker.NewSyncWorker(app.Sessions, app.Scheduler)
		g.Go(func() error {
			return syncWorker.Run(gctx, client)
		})
	} else {
		logger.InfoContext(ctx, "Skipping AMQP message consumption")
	}

	if cfg.InboxDir != "" {
		watcher := inbox.New(cfg.InboxDir, app.Budget, 0)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	err = g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if stopErr := app.Scheduler.Stop(stopCtx); stopErr != nil {
		logger.ErrorContext(stopCtx, "Scheduler shutdown error", applog.FieldError, stopErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(stopCtx, "Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.InfoContext(stopCtx, "Worker stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
