package model

import "time"

// Execution status constants.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no outgoing transitions.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is one of the final execution states.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Progress describes the statement most recently reported by any target of
// an execution. With several targets running at once it is advisory.
type Progress struct {
	Current   int        `json:"current"`
	Total     int        `json:"total"`
	Statement string     `json:"statement,omitempty"`
	Target    TargetName `json:"target,omitempty"`
}

// ExecutionRecord is the coordinator's view of one execution.
type ExecutionRecord struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Status    string     `json:"status"`
	Progress  Progress   `json:"progress"`
	Result    *Response  `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// ActiveExecution summarises an execution that still holds target resources.
type ActiveExecution struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	StartTime time.Time `json:"start_time"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Targets   int       `json:"targets"`
}
