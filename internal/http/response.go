package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"budgetsync/internal/core"
	applog "budgetsync/internal/log"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/services"
	"budgetsync/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type categoryView struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Emoji  string       `json:"emoji"`
	Budget *json.Number `json:"budget"`
}

type transactionView struct {
	ID         string      `json:"id"`
	CategoryID string      `json:"categoryId"`
	Amount     json.Number `json:"amount"`
	Note       string      `json:"note,omitempty"`
	Date       string      `json:"date"`
}

type snapshotView struct {
	Scope        string            `json:"scope"`
	Categories   []categoryView    `json:"categories"`
	Transactions []transactionView `json:"transactions"`
}

type reportView struct {
	NewCategories       int    `json:"new_categories"`
	NewTransactions     int    `json:"new_transactions"`
	SkippedCategories   int    `json:"skipped_categories"`
	SkippedTransactions int    `json:"skipped_transactions"`
	FailedCategories    int    `json:"failed_categories"`
	FailedTransactions  int    `json:"failed_transactions"`
	Summary             string `json:"summary"`
}

type lastRunView struct {
	Scope      string     `json:"scope"`
	Reason     string     `json:"reason"`
	Report     reportView `json:"report"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

type statusView struct {
	State            string        `json:"state"`
	Session          *string       `json:"session"`
	RemoteConfigured bool          `json:"remote_configured"`
	LastRun          *lastRunView  `json:"last_run,omitempty"`
	Security         SecurityStats `json:"security"`
}

type amountView struct {
	CategoryID string      `json:"categoryId"`
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	Emoji      string      `json:"emoji"`
	Amount     json.Number `json:"amount"`
}

type budgetView struct {
	CategoryID string      `json:"categoryId"`
	Name       string      `json:"name"`
	Budget     json.Number `json:"budget"`
	Spent      json.Number `json:"spent"`
	Remaining  json.Number `json:"remaining"`
	Percent    float64     `json:"percent"`
}

type summaryView struct {
	From       *time.Time   `json:"from,omitempty"`
	To         *time.Time   `json:"to,omitempty"`
	Total      json.Number  `json:"total"`
	ByCategory []amountView `json:"by_category"`
	Budgets    []budgetView `json:"budgets"`
}

func newCategoryView(c core.Category) categoryView {
	v := categoryView{ID: c.ID, Name: c.Name, Color: c.Color, Emoji: c.Emoji}
	if c.Budget != nil {
		b := json.Number(c.Budget.Fixed())
		v.Budget = &b
	}
	return v
}

func newTransactionView(t core.Transaction) transactionView {
	return transactionView{
		ID:         t.ID,
		CategoryID: t.CategoryID,
		Amount:     json.Number(t.Amount.Fixed()),
		Note:       t.Note,
		Date:       t.Date.UTC().Format(time.RFC3339),
	}
}

func newSnapshotView(s core.Snapshot, scope store.Scope) snapshotView {
	v := snapshotView{
		Scope:        scope.String(),
		Categories:   make([]categoryView, 0, len(s.Categories)),
		Transactions: make([]transactionView, 0, len(s.Transactions)),
	}
	for _, c := range s.Categories {
		v.Categories = append(v.Categories, newCategoryView(c))
	}
	for _, t := range s.Transactions {
		v.Transactions = append(v.Transactions, newTransactionView(t))
	}
	return v
}

func newReportView(r core.Report) reportView {
	return reportView{
		NewCategories:       r.NewCategories,
		NewTransactions:     r.NewTransactions,
		SkippedCategories:   r.SkippedCategories,
		SkippedTransactions: r.SkippedTransactions,
		FailedCategories:    r.FailedCategories,
		FailedTransactions:  r.FailedTransactions,
		Summary:             r.String(),
	}
}

func newLastRunView(res scheduler.Result) *lastRunView {
	v := &lastRunView{
		Scope:      res.Scope.String(),
		Reason:     res.Reason,
		Report:     newReportView(res.Report),
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func newSummaryView(s core.Summary) summaryView {
	v := summaryView{
		Total:      json.Number(s.Total.Fixed()),
		ByCategory: make([]amountView, 0, len(s.ByCategory)),
		Budgets:    make([]budgetView, 0, len(s.Budgets)),
	}
	if !s.From.IsZero() {
		from := s.From.UTC()
		v.From = &from
	}
	if !s.To.IsZero() {
		to := s.To.UTC()
		v.To = &to
	}
	for _, a := range s.ByCategory {
		v.ByCategory = append(v.ByCategory, amountView{
			CategoryID: a.CategoryID,
			Name:       a.Name,
			Color:      a.Color,
			Emoji:      a.Emoji,
			Amount:     json.Number(a.Amount.Fixed()),
		})
	}
	for _, b := range s.Budgets {
		v.Budgets = append(v.Budgets, budgetView{
			CategoryID: b.CategoryID,
			Name:       b.Name,
			Budget:     json.Number(b.Budget.Fixed()),
			Spent:      json.Number(b.Spent.Fixed()),
			Remaining:  json.Number(b.Remaining.Fixed()),
			Percent:    b.Percent,
		})
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrBusy),
		errors.Is(err, services.ErrSessionActive),
		errors.Is(err, services.ErrLocalNotEmpty),
		errors.Is(err, services.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrNoSession):
		return http.StatusPreconditionFailed
	case errors.Is(err, services.ErrNoRemote):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var se *core.StoreError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError logs err and writes it with the mapped status. Server
// side failures are reported without internal detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	resp := errorResponse{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}

	switch {
	case status >= 500:
		logger.ErrorContext(ctx, "Request failed", applog.FieldPath, r.URL.Path, applog.FieldError, err)
		resp = errorResponse{Error: http.StatusText(status)}
		if status == http.StatusServiceUnavailable || status == http.StatusBadGateway {
			resp.Error = err.Error()
		}
	default:
		logger.WarnContext(ctx, "Request rejected", applog.FieldPath, r.URL.Path, applog.FieldError, err)
	}
	writeJSON(w, status, resp)
}
