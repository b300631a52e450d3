package worker

import (
	"context"
	"errors"
	"log/slog"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/store"
)

// Sessions is the session tracker as seen by the worker.
type Sessions interface {
	Login(userID string) bool
	Current() (store.Scope, bool)
}

// Syncer runs a sync for the current session.
type Syncer interface {
	Trigger(ctx context.Context) (core.Report, error)
}

// Consumer delivers sync requests from the broker.
type Consumer interface {
	ConsumeSyncRequests(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker turns broker sync requests into sync runs. A worker serves a
// single session at a time.
type SyncWorker struct {
	sessions Sessions
	syncer   Syncer
}

func NewSyncWorker(sessions Sessions, syncer Syncer) *SyncWorker {
	return &SyncWorker{sessions: sessions, syncer: syncer}
}

// HandleSyncRequest processes one request. With no active session the
// requesting user is signed in, which starts a sync through the scheduler.
// A request for the active user runs a sync now; a run already in flight
// counts as handled. Requests for other users are dropped.
func (w *SyncWorker) HandleSyncRequest(ctx context.Context, msg *amqp.SyncRequest) error {
	slog.InfoContext(ctx, "Processing sync request",
		"user_id", msg.UserID,
		"reason", msg.Reason,
		"requested_at", msg.RequestedAt)

	current, ok := w.sessions.Current()
	if !ok {
		w.sessions.Login(msg.UserID)
		return nil
	}
	if current.UserID != msg.UserID {
		slog.WarnContext(ctx, "Sync request for another user ignored",
			"user_id", msg.UserID,
			"session", current.String())
		return nil
	}

	report, err := w.syncer.Trigger(ctx)
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		slog.InfoContext(ctx, "Sync already running, request coalesced", "user_id", msg.UserID)
		return nil
	case err != nil:
		return err
	}
	slog.InfoContext(ctx, "Requested sync completed", "user_id", msg.UserID, "report", report.String())
	return nil
}

// Run consumes requests until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	err := consumer.ConsumeSyncRequests(ctx, w.HandleSyncRequest)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
