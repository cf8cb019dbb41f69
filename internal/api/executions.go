package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB

	// Identity is established by an upstream proxy.
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
	roleAdmin      = "admin"
	anonymousUser  = "anonymous"
)

// startExecutionResponse is the JSON response for POST /v1/executions.
type startExecutionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// cancelResponse is the JSON response for POST /v1/executions/{id}/cancel.
type cancelResponse struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
	Status    string `json:"status"`
}

// activeResponse wraps GET /v1/executions.
type activeResponse struct {
	Executions []model.ActiveExecution `json:"executions"`
}

func userID(r *http.Request) string {
	if v := r.Header.Get(headerUserID); v != "" {
		return v
	}
	return anonymousUser
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get(headerUserRole) == roleAdmin
}

// canView reports whether the caller may see an execution owned by owner.
// Foreign executions are reported as not found rather than forbidden.
func canView(r *http.Request, owner string) bool {
	return owner == userID(r) || isAdmin(r)
}

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.engine.StartExecution(r.Context(), req, userID(r))
	if err != nil {
		if engine.IsValidationError(err) {
			scriptsRejectedTotal.WithLabelValues("executions").Inc()
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("start execution", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start execution")
		return
	}

	w.Header().Set("Location", "/v1/executions/"+id)
	s.writeJSON(w, http.StatusAccepted, startExecutionResponse{ID: id, Status: model.StatusRunning})
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	active := s.engine.ListActive()
	if !isAdmin(r) {
		me := userID(r)
		own := active[:0:0]
		for _, a := range active {
			if a.OwnerID == me {
				own = append(own, a)
			}
		}
		active = own
	}
	if active == nil {
		active = []model.ActiveExecution{}
	}
	s.writeJSON(w, http.StatusOK, activeResponse{Executions: active})
}

// handleGetExecution serves the live record, falling back to history once
// the record has been evicted from memory.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if rec, ok := s.engine.Status(id); ok {
		if !canView(r, rec.OwnerID) {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		s.writeJSON(w, http.StatusOK, rec)
		return
	}

	entry, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get execution from history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	if !canView(r, entry.OwnerID) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	end := entry.EndTime
	s.writeJSON(w, http.StatusOK, model.ExecutionRecord{
		ID:        entry.ID,
		OwnerID:   entry.OwnerID,
		Status:    entry.Status,
		Result:    entry.Response,
		Error:     entry.Error,
		StartTime: entry.StartTime,
		EndTime:   &end,
	})
}

// handleCancelExecution lets the owner, or an admin, cancel an execution.
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	owner, ok := s.engine.Owner(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	requester := userID(r)
	if owner != requester && !isAdmin(r) {
		s.writeError(w, http.StatusForbidden, "only the owner or an admin may cancel this execution")
		return
	}

	cancelled := s.engine.CancelExecution(id, requester)
	rec, _ := s.engine.Status(id)
	s.writeJSON(w, http.StatusOK, cancelResponse{ID: id, Cancelled: cancelled, Status: rec.Status})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
