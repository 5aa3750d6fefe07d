package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserd/api/schemas"
	"github.com/xkilldash9x/browserd/internal/browser"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	result, err := s.svc.CreateSession(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ActiveSessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	info, ok := s.svc.SessionByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.svc.CloseSession(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req schemas.NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.svc.Navigate(r.Context(), id, req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var action schemas.BrowserAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.svc.PerformAction(r.Context(), id, action)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetPage renders the page snapshot, or a JSON null when it cannot be
// produced, whether the session is unknown or extraction failed. Introspection
// is advisory; callers poll it and a hard failure would force them to
// special-case transient page states.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	info, err := s.svc.GetPageInfo(r.Context(), id)
	if err != nil {
		s.logger.Warn("Page snapshot unavailable.", zap.String("session_id", id), zap.Error(err))
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFindAndClickLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req schemas.FindLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	result, err := s.svc.FindAndClickLink(r.Context(), id, req.Description)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeServiceError maps service sentinels onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, browser.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, browser.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, browser.ErrSessionInactive):
		status = http.StatusConflict
	case errors.Is(err, browser.ErrNoLinks), errors.Is(err, browser.ErrLinkNotFound):
		status = http.StatusNotFound
	case errors.Is(err, browser.ErrClickFailed):
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, schemas.ErrorResult{Success: false, Error: msg})
}
