package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"budgetsync/internal/backup"
	applog "budgetsync/internal/log"
	"budgetsync/internal/scheduler"
	"budgetsync/internal/services"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v := statusView{
		State:            s.syncer.State().String(),
		RemoteConfigured: s.hasRemote,
		Security:         s.metrics.snapshot(),
	}
	if scope, ok := s.sessions.Current(); ok {
		user := scope.UserID
		v.Session = &user
	}
	if last, ok := s.syncer.LastResult(); ok {
		v.LastRun = newLastRunView(last)
	}
	writeJSON(w, http.StatusOK, v)
}

// handleSync starts a sync in the background and answers 202. With
// wait=true the sync runs within the request and its report is returned.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.Current(); !ok {
		writeServiceError(w, r, scheduler.ErrNoSession)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		report, err := s.syncer.Trigger(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newReportView(report))
		return
	}

	if s.syncer.State() == scheduler.Syncing {
		writeServiceError(w, r, scheduler.ErrBusy)
		return
	}

	logger := applog.FromContext(r.Context())
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if _, err := s.syncer.Trigger(s.baseCtx); err != nil && !errors.Is(err, scheduler.ErrBusy) {
			logger.ErrorContext(s.baseCtx, "Requested sync failed", applog.FieldError, err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	root, err := parseObject(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	userID := sanitizeInput(root.Get("user_id").String())
	if userID == "" {
		writeError(w, http.StatusUnprocessableEntity, "user_id is required")
		return
	}

	changed := s.sessions.Login(userID)
	resp := map[string]any{"user_id": userID, "changed": changed}
	if changed {
		if err := s.budget.Load(r.Context()); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Load after login failed",
				applog.FieldScope, userID, applog.FieldError, err)
			resp["warning"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.Current(); !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.sessions.Logout()
	if err := s.budget.Load(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, scope := s.budget.State()
	writeJSON(w, http.StatusOK, newSnapshotView(snap, scope))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryView(s.budget.Summary(from, to)))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBackupBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	payload, stats, err := backup.Decode(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	report, err := s.budget.Import(r.Context(), payload)
	_, scope := s.budget.State()
	s.structured.LogMerge(r.Context(), applog.OpImport, scope.String(), report, err)
	if err != nil {
		// inserts committed before the failure stay, so the partial
		// report is returned with the error
		writeJSON(w, statusFor(err), map[string]any{
			"error":  err.Error(),
			"report": newReportView(report),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":               newReportView(report),
		"dropped_categories":   stats.SkippedCategories,
		"dropped_transactions": stats.SkippedTransactions,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := backup.Encode(s.budget.Export())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.FileName(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.Wipe(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := parseCategory(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.budget.AddCategory(r.Context(), c)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryView(created))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := parseCategoryPatch(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := s.budget.UpdateCategory(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryView(updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	t, err := parseTransaction(body, time.Now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.budget.AddTransaction(r.Context(), t)
	if errors.Is(err, services.ErrDuplicateTransaction) {
		writeJSON(w, http.StatusOK, newTransactionView(created))
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTransactionView(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := parseTransactionPatch(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := s.budget.UpdateTransaction(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionView(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.budget.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
