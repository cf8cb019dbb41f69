package model

import "time"

// HistoryEntry is a finished execution as handed to history logging.
// Response is nil for entries listed without their per-target detail.
type HistoryEntry struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Mode           Mode       `json:"mode"`
	Target         string     `json:"target,omitempty"`
	Namespace      string     `json:"namespace,omitempty"`
	Script         string     `json:"script"`
	StatementCount int        `json:"statement_count"`
	Status         string     `json:"status"`
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	DurationMS     int64      `json:"duration_ms"`
	Response       *Response  `json:"result,omitempty"`
	Risk           string     `json:"risk,omitempty"`
	Targets        []string   `json:"targets,omitempty"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
}

// TargetStats aggregates history for one target.
type TargetStats struct {
	Runs          int     `json:"runs"`
	Failures      int     `json:"failures"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// HistoryStats aggregates every recorded execution.
type HistoryStats struct {
	Total         int                    `json:"total"`
	CountByStatus map[string]int         `json:"count_by_status"`
	AvgDurationMS float64                `json:"avg_duration_ms"`
	ByTarget      map[string]TargetStats `json:"by_target"`
}
