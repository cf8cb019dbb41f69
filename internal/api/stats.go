package api

import (
	"net/http"

	"github.com/vijaygupta18/multidb/internal/model"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int                          `json:"total"`
	ByStatus      map[string]int               `json:"by_status"`
	ByTarget      map[string]model.TargetStats `json:"by_target"`
	AvgDurationMS float64                      `json:"avg_duration_ms"`
	Active        int                          `json:"active"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get history stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		ByStatus:      stats.CountByStatus,
		ByTarget:      stats.ByTarget,
		AvgDurationMS: stats.AvgDurationMS,
		Active:        len(s.engine.ListActive()),
	})
}
