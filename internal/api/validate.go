package api

import (
	"encoding/json"
	"net/http"

	"github.com/vijaygupta18/multidb/internal/sqlscript"
)

type validateRequest struct {
	Script    string `json:"script"`
	Namespace string `json:"namespace,omitempty"`
}

// validateResponse reports whether a script would be accepted. Risk is
// advisory and never blocks execution.
type validateResponse struct {
	Valid      bool     `json:"valid"`
	Error      string   `json:"error,omitempty"`
	Statements []string `json:"statements,omitempty"`
	Risky      bool     `json:"risky"`
	Risk       string   `json:"risk,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp := validateResponse{Valid: true}
	if err := sqlscript.Validate(req.Script); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	} else if req.Namespace != "" {
		if err := sqlscript.ValidateNamespace(req.Namespace); err != nil {
			resp.Valid = false
			resp.Error = err.Error()
		}
	}

	if resp.Valid {
		stmts, err := sqlscript.Split(req.Script)
		if err != nil {
			resp.Valid = false
			resp.Error = err.Error()
		} else {
			resp.Statements = stmts
			resp.Risk, resp.Risky = sqlscript.ClassifyRisk(req.Script)
		}
	}

	if !resp.Valid {
		scriptsRejectedTotal.WithLabelValues("validate").Inc()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
