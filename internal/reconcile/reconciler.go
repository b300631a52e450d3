// Package reconcile merges a local snapshot into the remote store of one
// user. The merge is strictly additive: remote records are never updated
// or deleted and the local store is never written.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/store"
)

// Stages reported by SyncError.
const (
	StageFetchCategories   = "fetch categories"
	StageFetchTransactions = "fetch transactions"
	StageRefetch           = "refetch"
	StageCancelled         = "cancelled"
)

// Result is the outcome of a run. Report is valid even when Run returns an
// error: it counts what was committed before the failure.
type Result struct {
	Snapshot core.Snapshot
	Report   core.Report
}

type Reconciler struct {
	remote store.Store
}

func New(remote store.Store) *Reconciler {
	return &Reconciler{remote: remote}
}

// Run merges local into the remote store for scope and returns the refreshed
// remote snapshot, which the caller adopts in full.
//
// Both remote lists are read before the first insert so a failed read
// aborts the run with nothing written. A failed insert is skipped and
// counted as failed. A failed final read returns a SyncError; the inserts
// it follows are already committed.
func (r *Reconciler) Run(ctx context.Context, scope store.Scope, local core.Snapshot) (Result, error) {
	start := time.Now()
	var res Result

	remoteCats, err := r.remote.ListCategories(ctx, scope)
	if err != nil {
		return res, &core.SyncError{Stage: StageFetchCategories, Err: err}
	}
	remoteTxs, err := r.remote.ListTransactions(ctx, scope)
	if err != nil {
		return res, &core.SyncError{Stage: StageFetchTransactions, Err: err}
	}

	byKey := make(map[string]string, len(remoteCats))
	for _, c := range remoteCats {
		byKey[identity.CategoryKeyOf(c)] = c.ID
	}
	translate := make(map[string]string, len(local.Categories))

	for _, c := range local.Categories {
		if err := ctx.Err(); err != nil {
			return res, &core.SyncError{Stage: StageCancelled, Err: err}
		}
		key := identity.CategoryKeyOf(c)
		if remoteID, ok := byKey[key]; ok {
			translate[c.ID] = remoteID
			res.Report.SkippedCategories++
			continue
		}
		inserted, err := r.remote.InsertCategory(ctx, scope, c)
		if err != nil {
			res.Report.FailedCategories++
			slog.WarnContext(ctx, "Category insert failed, skipping",
				"local_id", c.ID, "name", c.Name, "error", err)
			continue
		}
		byKey[key] = inserted.ID
		translate[c.ID] = inserted.ID
		res.Report.NewCategories++
	}

	seen := make(map[string]struct{}, len(remoteTxs)+len(local.Transactions))
	for _, t := range remoteTxs {
		seen[identity.TransactionKeyOf(t)] = struct{}{}
	}

	for _, t := range local.Transactions {
		if err := ctx.Err(); err != nil {
			return res, &core.SyncError{Stage: StageCancelled, Err: err}
		}
		candidate := t
		if remoteID, ok := translate[t.CategoryID]; ok {
			candidate.CategoryID = remoteID
		}
		key := identity.TransactionKeyOf(candidate)
		if _, dup := seen[key]; dup {
			res.Report.SkippedTransactions++
			continue
		}
		if _, err := r.remote.InsertTransaction(ctx, scope, candidate); err != nil {
			res.Report.FailedTransactions++
			slog.WarnContext(ctx, "Transaction insert failed, skipping",
				"local_id", t.ID, "category_id", candidate.CategoryID, "error", err)
			continue
		}
		seen[key] = struct{}{}
		res.Report.NewTransactions++
	}

	snap, err := store.Load(ctx, r.remote, scope)
	if err != nil {
		return res, &core.SyncError{Stage: StageRefetch, Err: err}
	}
	res.Snapshot = snap

	slog.InfoContext(ctx, "Reconciliation complete",
		"scope", scope.String(),
		"new_categories", res.Report.NewCategories,
		"new_transactions", res.Report.NewTransactions,
		"skipped_transactions", res.Report.SkippedTransactions,
		"failed_categories", res.Report.FailedCategories,
		"failed_transactions", res.Report.FailedTransactions,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}
