package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ErrorKind classifies why a statement or target failed.
type ErrorKind string

// Error kinds reported in statement results and target outcomes.
const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindConnection  ErrorKind = "connection"
	ErrorKindTransaction ErrorKind = "transaction"
	ErrorKindCancelled   ErrorKind = "cancelled"
	ErrorKindStatement   ErrorKind = "statement"
	ErrorKindInternal    ErrorKind = "internal"
)

// StatementResult is the outcome of one statement on one target. Automatic
// marks statements the engine issued itself, such as the ROLLBACK that
// follows a failure inside a transaction.
type StatementResult struct {
	Statement    string           `json:"statement"`
	Success      bool             `json:"success"`
	Command      string           `json:"command,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	RowsAffected int64            `json:"rows_affected"`
	Truncated    bool             `json:"truncated,omitempty"`
	Automatic    bool             `json:"automatic,omitempty"`
	Error        string           `json:"error,omitempty"`
	ErrorKind    ErrorKind        `json:"error_kind,omitempty"`
}

// TargetOutcome is the result of running a script on one target. Single
// statement runs populate Result; multi-statement runs populate Results and
// StatementCount.
type TargetOutcome struct {
	Success        bool              `json:"success"`
	Result         *StatementResult  `json:"result,omitempty"`
	Results        []StatementResult `json:"results,omitempty"`
	StatementCount int               `json:"statement_count,omitempty"`
	DurationMS     int64             `json:"duration_ms"`
	Cancelled      bool              `json:"cancelled,omitempty"`
	Error          string            `json:"error,omitempty"`
	ErrorKind      ErrorKind         `json:"error_kind,omitempty"`
}

// FailedOutcome builds an outcome for a target that failed before or outside
// statement execution.
func FailedOutcome(kind ErrorKind, msg string, durationMS int64) TargetOutcome {
	return TargetOutcome{
		Success:    false,
		DurationMS: durationMS,
		Error:      msg,
		ErrorKind:  kind,
		Cancelled:  kind == ErrorKindCancelled,
	}
}

// Response aggregates the outcomes of every target invoked by one execution.
// The set of targets is fixed when the Response is created.
type Response struct {
	ID      string
	Targets map[TargetName]TargetOutcome

	declared map[TargetName]bool
}

// NewResponse creates a Response that accepts outcomes for the given targets.
func NewResponse(id string, names []TargetName) *Response {
	declared := make(map[TargetName]bool, len(names))
	for _, n := range names {
		declared[n] = true
	}
	return &Response{
		ID:       id,
		Targets:  make(map[TargetName]TargetOutcome, len(names)),
		declared: declared,
	}
}

// Set records the outcome for name. Names not declared in NewResponse are rejected.
func (r *Response) Set(name TargetName, outcome TargetOutcome) error {
	if !r.declared[name] {
		return fmt.Errorf("target %q is not part of execution %s", name, r.ID)
	}
	r.Targets[name] = outcome
	return nil
}

// Names returns the declared target names in sorted order.
func (r *Response) Names() []TargetName {
	names := make([]TargetName, 0, len(r.declared))
	for n := range r.declared {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Success is true iff at least one target was declared and every declared
// target reported success.
func (r *Response) Success() bool {
	if len(r.declared) == 0 {
		return false
	}
	for n := range r.declared {
		o, ok := r.Targets[n]
		if !ok || !o.Success {
			return false
		}
	}
	return true
}

// MarshalJSON flattens target outcomes next to the id and overall success:
// {"id": ..., "success": ..., "<target>": {...}}.
func (r *Response) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Targets)+2)
	for n, o := range r.Targets {
		m[string(n)] = o
	}
	m["id"] = r.ID
	m["success"] = r.Success()
	return json.Marshal(m)
}
