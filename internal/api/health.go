package api

import "net/http"

// healthResponse reports liveness with the size of the configured fleet and
// the number of executions still holding sessions.
type healthResponse struct {
	Status  string `json:"status"`
	Targets int    `json:"targets"`
	Active  int    `json:"active"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Targets: len(s.engine.Targets()),
		Active:  len(s.engine.ListActive()),
	})
}
