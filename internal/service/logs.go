package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"phobos.org.uk/foreman/internal/api"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/sessionid"
	"phobos.org.uk/foreman/internal/sessionlog"
)

func (s *Service) sessionLogsEnabled(w http.ResponseWriter) bool {
	if s.config.SessionLogDir == "" {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrorLogsUnavailable, "session logging is disabled")
		return false
	}
	return true
}

// handleListSessions returns session log summaries, newest first.
func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.sessionLogsEnabled(w) {
		return
	}
	page, err := api.IntParam(r.URL.Query(), "page", 1, 10000, 1)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}
	limit, err := api.IntParam(r.URL.Query(), "limit", 1, 100, 20)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}

	result, err := sessionlog.List(s.config.SessionLogDir, sessionlog.ListOptions{Page: page, Limit: limit})
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// handleGetSession returns every record in one session log.
func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionLogsEnabled(w) {
		return
	}
	logID := chi.URLParam(r, "logID")
	if !sessionid.IsSafe(logID) {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "log_id contains invalid characters")
		return
	}

	records, err := sessionlog.Read(s.config.SessionLogDir, logID)
	if errors.Is(err, sessionlog.ErrNotFound) {
		notFound(w, "Session log", logID)
		return
	}
	if err != nil && records == nil {
		api.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"log_id":  logID,
		"records": records,
	})
}

// handleLogs returns in-memory log entries, filtered by query parameters.
func (s *Service) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := api.IntParam(r.URL.Query(), "limit", 1, 1000, 100)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}
	q := logging.Query{Limit: limit}

	if level := r.URL.Query().Get("level"); level != "" {
		q.Level = logging.Level(level)
	}
	if id := r.URL.Query().Get("invocation_id"); id != "" {
		q.InvocationID = id
	}
	if component := r.URL.Query().Get("component"); component != "" {
		q.Component = component
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			q.Since = t
		}
	}
	if until := r.URL.Query().Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			q.Until = t
		}
	}

	api.WriteJSON(w, http.StatusOK, s.log.Query(q))
}

// handleLogStats returns log statistics without entries.
func (s *Service) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.log.Stats())
}
