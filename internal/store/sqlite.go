package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vijaygupta18/multidb/internal/model"

	_ "modernc.org/sqlite"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    mode            TEXT NOT NULL,
    target          TEXT,
    namespace       TEXT,
    script          TEXT NOT NULL,
    statement_count INTEGER NOT NULL,
    status          TEXT NOT NULL,
    success         INTEGER NOT NULL,
    error           TEXT,
    risk            TEXT,
    duration_ms     INTEGER NOT NULL,
    started_at      DATETIME NOT NULL,
    finished_at     DATETIME NOT NULL,
    recorded_at     DATETIME NOT NULL
)`

const createExecutionTargetsTable = `
CREATE TABLE IF NOT EXISTS execution_targets (
    id           TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
    target       TEXT NOT NULL,
    success      INTEGER NOT NULL,
    cancelled    INTEGER NOT NULL,
    duration_ms  INTEGER NOT NULL,
    error_kind   TEXT,
    outcome      TEXT NOT NULL
)`

const createExecutionTargetsIndex = `
CREATE INDEX IF NOT EXISTS idx_execution_targets_execution_id
    ON execution_targets(execution_id)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	for _, stmt := range []string{createExecutionsTable, createExecutionTargetsTable, createExecutionTargetsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordExecution stores e and one row per target outcome in a single
// transaction.
func (s *SQLiteStore) RecordExecution(ctx context.Context, e model.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (
			id, owner_id, mode, target, namespace, script, statement_count,
			status, success, error, risk, duration_ms, started_at, finished_at, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, string(e.Mode), nullIfEmpty(e.Target), nullIfEmpty(e.Namespace), e.Script, e.StatementCount,
		e.Status, e.Success, nullIfEmpty(e.Error), nullIfEmpty(e.Risk), e.DurationMS,
		e.StartTime.UTC(), e.EndTime.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	if e.Response != nil {
		for _, name := range e.Response.Names() {
			o, ok := e.Response.Targets[name]
			if !ok {
				continue
			}
			outcome, err := json.Marshal(o)
			if err != nil {
				return fmt.Errorf("encode outcome for %s: %w", name, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO execution_targets (
					id, execution_id, target, success, cancelled, duration_ms, error_kind, outcome
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), e.ID, string(name), o.Success, o.Cancelled, o.DurationMS,
				nullIfEmpty(string(o.ErrorKind)), string(outcome),
			)
			if err != nil {
				return fmt.Errorf("insert outcome for %s: %w", name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectExecution = `SELECT id, owner_id, mode, target, namespace, script, statement_count,
	status, success, error, risk, duration_ms, started_at, finished_at, recorded_at
	FROM executions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*model.HistoryEntry, error) {
	var (
		e                               model.HistoryEntry
		mode                            string
		target, namespace, errMsg, risk sql.NullString
		recordedAt                      time.Time
	)
	if err := r.Scan(
		&e.ID, &e.OwnerID, &mode, &target, &namespace, &e.Script, &e.StatementCount,
		&e.Status, &e.Success, &errMsg, &risk, &e.DurationMS, &e.StartTime, &e.EndTime, &recordedAt,
	); err != nil {
		return nil, err
	}
	e.Mode = model.Mode(mode)
	e.Target = target.String
	e.Namespace = namespace.String
	e.Error = errMsg.String
	e.Risk = risk.String
	e.RecordedAt = &recordedAt
	return &e, nil
}

// GetExecution retrieves an execution and rebuilds its per-target response.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.HistoryEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectExecution+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target, outcome FROM execution_targets WHERE execution_id = ? ORDER BY target`, id)
	if err != nil {
		return nil, fmt.Errorf("get execution targets: %w", err)
	}
	defer rows.Close()

	type stored struct {
		name    model.TargetName
		outcome model.TargetOutcome
	}
	var outcomes []stored
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan execution target: %w", err)
		}
		var o model.TargetOutcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode outcome for %s: %w", name, err)
		}
		outcomes = append(outcomes, stored{name: model.TargetName(name), outcome: o})
		e.Targets = append(e.Targets, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution targets: %w", err)
	}

	names := make([]model.TargetName, 0, len(outcomes))
	for _, o := range outcomes {
		names = append(names, o.name)
	}
	e.Response = model.NewResponse(e.ID, names)
	for _, o := range outcomes {
		if err := e.Response.Set(o.name, o.outcome); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// ListExecutions returns a page of executions ordered by start time, newest
// first, with the total number matching f.
func (s *SQLiteStore) ListExecutions(ctx context.Context, f ListFilter) ([]*model.HistoryEntry, int, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := tx.QueryContext(ctx,
		selectExecution+clause+" ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return entries, total, nil
}

// GetStats returns aggregate statistics across all recorded executions.
func (s *SQLiteStore) GetStats(ctx context.Context) (*model.HistoryStats, error) {
	stats := &model.HistoryStats{
		CountByStatus: make(map[string]int),
		ByTarget:      make(map[string]model.TargetStats),
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM executions",
	).Scan(&stats.Total, &stats.AvgDurationMS); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM executions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	trows, err := s.db.QueryContext(ctx,
		`SELECT target, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), AVG(duration_ms)
		FROM execution_targets GROUP BY target`)
	if err != nil {
		return nil, fmt.Errorf("count by target: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var name string
		var ts model.TargetStats
		if err := trows.Scan(&name, &ts.Runs, &ts.Failures, &ts.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan target stats: %w", err)
		}
		stats.ByTarget[name] = ts
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target stats: %w", err)
	}

	return stats, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
