// Package cli provides initialization shared by cmd/budgetsync and
// cmd/budgetsync-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"budgetsync/internal/config"
	applog "budgetsync/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads and validates configuration.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the application logger from cfg and installs it as
// the slog default. Close the returned closer on exit.
func SetupLogger(cfg *config.Config, component string) (*applog.Logger, io.Closer) {
	logger, closer := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger, closer
}

// Fatal logs err and exits.
func Fatal(msg string, err error, args ...any) {
	slog.Error(msg, append([]any{"error", err}, args...)...)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			slog.Info("Shutdown signal received")
		}
	}()
	return ctx, cancel
}

// Bootstrap runs the common startup sequence: .env, config, logger.
func Bootstrap(component string) (*config.Config, *applog.Logger, io.Closer, error) {
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer := SetupLogger(cfg, component)
	return cfg, logger, closer, nil
}
