// Package importer merges an external backup payload into whichever store
// is currently authoritative: the remote store while a session is active,
// the local store otherwise.
//
// Duplicate detection has two tiers. The first is the in-run key set built
// from the caller's current transactions and every insert made during the
// run; it is authoritative for the local store. The second, only for the
// remote store, is a point lookup that catches rows other writers added
// after the caller's snapshot was taken. A failed lookup counts as "not
// found": the import stays live at the cost of a possible duplicate that
// the next reconciliation cannot remove.
package importer

import (
	"context"
	"log/slog"

	"budgetsync/internal/backup"
	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/store"
)

const StageRefetch = "refetch"

// Destination is the store receiving the import and the caller's current
// view of it.
type Destination struct {
	Store   store.Store
	Scope   store.Scope
	Remote  bool
	Current core.Snapshot
}

// Result carries the caller's new working state. Report.NewTransactions is
// the user-facing count.
type Result struct {
	Snapshot core.Snapshot
	Report   core.Report
}

type Merger struct{}

func New() *Merger { return &Merger{} }

// Merge imports p into dst. Payload identifiers are never written.
func (m *Merger) Merge(ctx context.Context, dst Destination, p backup.Payload) (Result, error) {
	state := dst.Current.Clone()
	var report core.Report

	byKey := make(map[string]string, len(state.Categories))
	for _, c := range state.Categories {
		byKey[identity.CategoryKeyOf(c)] = c.ID
	}
	translate := make(map[string]string, len(p.Categories))

	for _, c := range p.Categories {
		if err := ctx.Err(); err != nil {
			return Result{Snapshot: state, Report: report}, &core.SyncError{Stage: "cancelled", Err: err}
		}
		key := identity.CategoryKeyOf(c)
		if id, ok := byKey[key]; ok {
			translate[c.ID] = id
			report.SkippedCategories++
			continue
		}
		inserted, err := dst.Store.InsertCategory(ctx, dst.Scope, c)
		if err != nil {
			report.FailedCategories++
			slog.WarnContext(ctx, "Import category insert failed", "name", c.Name, "error", err)
			continue
		}
		byKey[key] = inserted.ID
		translate[c.ID] = inserted.ID
		state.Categories = append(state.Categories, inserted)
		report.NewCategories++
	}

	seen := make(map[string]struct{}, len(state.Transactions)+len(p.Transactions))
	for _, t := range state.Transactions {
		seen[identity.TransactionKeyOf(t)] = struct{}{}
	}
	finder, _ := dst.Store.(store.TransactionFinder)

	var added []core.Transaction
	for _, t := range p.Transactions {
		if err := ctx.Err(); err != nil {
			state.Transactions = append(added, state.Transactions...)
			return Result{Snapshot: state, Report: report}, &core.SyncError{Stage: "cancelled", Err: err}
		}
		candidate := t
		candidate.ID = ""
		if id, ok := translate[t.CategoryID]; ok {
			candidate.CategoryID = id
		}
		key := identity.TransactionKeyOf(candidate)
		if _, dup := seen[key]; dup {
			report.SkippedTransactions++
			continue
		}
		if dst.Remote && finder != nil {
			found, err := finder.FindTransaction(ctx, dst.Scope, candidate.CategoryID, candidate.Amount, candidate.Date, candidate.Note)
			if err != nil {
				slog.WarnContext(ctx, "Remote duplicate lookup failed, relying on in-run keys", "error", err)
			} else if found {
				seen[key] = struct{}{}
				report.SkippedTransactions++
				continue
			}
		}
		inserted, err := dst.Store.InsertTransaction(ctx, dst.Scope, candidate)
		if err != nil {
			report.FailedTransactions++
			slog.WarnContext(ctx, "Import transaction insert failed", "category_id", candidate.CategoryID, "error", err)
			continue
		}
		seen[key] = struct{}{}
		added = append(added, inserted)
		report.NewTransactions++
	}

	store.SortCategories(state.Categories)
	if dst.Remote {
		txs, err := dst.Store.ListTransactions(ctx, dst.Scope)
		if err != nil {
			state.Transactions = append(added, state.Transactions...)
			store.SortTransactions(state.Transactions)
			return Result{Snapshot: state, Report: report}, &core.SyncError{Stage: StageRefetch, Err: err}
		}
		state.Transactions = txs
	} else {
		state.Transactions = append(added, state.Transactions...)
		store.SortTransactions(state.Transactions)
	}

	slog.InfoContext(ctx, "Import complete",
		"scope", dst.Scope.String(),
		"remote", dst.Remote,
		"new_categories", report.NewCategories,
		"new_transactions", report.NewTransactions,
		"skipped_transactions", report.SkippedTransactions)
	return Result{Snapshot: state, Report: report}, nil
}
