package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/store"
)

// listHistoryResponse wraps the paginated history list.
type listHistoryResponse struct {
	Executions []*model.HistoryEntry `json:"executions"`
	Total      int                   `json:"total"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}

// handleListHistory lists finished executions. Non-admins only see their own.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	}
	if !isAdmin(r) {
		filter.OwnerID = userID(r)
	} else if owner := r.URL.Query().Get("owner"); owner != "" {
		filter.OwnerID = owner
	}

	entries, total, err := s.store.ListExecutions(r.Context(), filter)
	if err != nil {
		s.logger.Error("list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	if entries == nil {
		entries = []*model.HistoryEntry{}
	}

	s.writeJSON(w, http.StatusOK, listHistoryResponse{
		Executions: entries,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := s.store.GetExecution(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		s.logger.Error("get history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	if !canView(r, entry.OwnerID) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}
