package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vijaygupta18/multidb/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestEntry(t *testing.T, start time.Time, outcomes map[model.TargetName]model.TargetOutcome) model.HistoryEntry {
	t.Helper()
	id := model.NewID()
	names := make([]model.TargetName, 0, len(outcomes))
	for n := range outcomes {
		names = append(names, n)
	}
	resp := model.NewResponse(id, names)
	for n, o := range outcomes {
		if err := resp.Set(n, o); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	status := model.StatusCompleted
	if !resp.Success() {
		status = model.StatusFailed
	}
	return model.HistoryEntry{
		ID:             id,
		OwnerID:        "alice",
		Mode:           model.ModeAll,
		Script:         "SELECT 1; SELECT 2",
		StatementCount: 2,
		Status:         status,
		Success:        resp.Success(),
		StartTime:      start,
		EndTime:        start.Add(250 * time.Millisecond),
		DurationMS:     250,
		Response:       resp,
	}
}

func TestRecordAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second)

	e := makeTestEntry(t, start, map[model.TargetName]model.TargetOutcome{
		"alpha": {Success: true, DurationMS: 10, Result: &model.StatementResult{
			Statement: "SELECT 1", Success: true, Command: "SELECT", RowCount: 1,
			Rows: []map[string]any{{"n": float64(1)}},
		}},
		"beta": {Success: false, DurationMS: 20, Error: "connection refused", ErrorKind: model.ErrorKindConnection},
	})
	e.Namespace = "tenant_a"
	e.Risk = "statement 1: DELETE without WHERE clause"

	if err := s.RecordExecution(ctx, e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("ID = %q, want %q", got.ID, e.ID)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.Namespace != "tenant_a" {
		t.Errorf("Namespace = %q, want tenant_a", got.Namespace)
	}
	if got.Risk != e.Risk {
		t.Errorf("Risk = %q, want %q", got.Risk, e.Risk)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, start)
	}
	if got.RecordedAt == nil {
		t.Error("RecordedAt not set")
	}
	if got.Response == nil {
		t.Fatal("Response not rebuilt")
	}
	if n := len(got.Response.Targets); n != 2 {
		t.Fatalf("targets = %d, want 2", n)
	}

	alpha := got.Response.Targets["alpha"]
	if !alpha.Success || alpha.Result == nil || alpha.Result.Command != "SELECT" {
		t.Errorf("alpha outcome = %+v", alpha)
	}
	if v := alpha.Result.Rows[0]["n"]; v != float64(1) {
		t.Errorf("alpha row = %v, want 1", v)
	}
	beta := got.Response.Targets["beta"]
	if beta.ErrorKind != model.ErrorKindConnection {
		t.Errorf("beta error kind = %q, want connection", beta.ErrorKind)
	}
	if got.Response.Success() {
		t.Error("rebuilt response Success = true, want false")
	}
}

func TestRecordExecutionWithoutResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := model.HistoryEntry{
		ID:        model.NewID(),
		OwnerID:   "bob",
		Mode:      model.ModeSingle,
		Target:    "alpha",
		Script:    "SELECT 1",
		Status:    model.StatusFailed,
		Error:     "driver panic",
		StartTime: time.Now().UTC(),
		EndTime:   time.Now().UTC(),
	}
	if err := s.RecordExecution(ctx, e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Error != "driver panic" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.Target != "alpha" {
		t.Errorf("Target = %q, want alpha", got.Target)
	}
	if len(got.Response.Targets) != 0 {
		t.Errorf("targets = %d, want 0", len(got.Response.Targets))
	}
}

func TestRecordExecutionDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := makeTestEntry(t, time.Now().UTC(), map[model.TargetName]model.TargetOutcome{"alpha": {Success: true}})
	if err := s.RecordExecution(ctx, e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if err := s.RecordExecution(ctx, e); err == nil {
		t.Fatal("second RecordExecution succeeded, want error")
	}

	got, err := s.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if len(got.Response.Targets) != 1 {
		t.Errorf("targets = %d, want 1 (failed insert must roll back)", len(got.Response.Targets))
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExecution(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetExecution error = %v, want ErrNotFound", err)
	}
}

func TestListExecutionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := range 5 {
		e := makeTestEntry(t, base.Add(time.Duration(i)*time.Second), map[model.TargetName]model.TargetOutcome{"alpha": {Success: true}})
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution %d: %v", i, err)
		}
	}

	page, total, err := s.ListExecutions(ctx, ListFilter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].StartTime.After(page[1].StartTime) {
		t.Error("executions not ordered newest first")
	}

	last, _, err := s.ListExecutions(ctx, ListFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(last) != 1 {
		t.Errorf("last page size = %d, want 1", len(last))
	}

	all, _, err := s.ListExecutions(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("unbounded list = %d, want 5", len(all))
	}
}

func TestListExecutionsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok := makeTestEntry(t, now, map[model.TargetName]model.TargetOutcome{"alpha": {Success: true}})
	failed := makeTestEntry(t, now, map[model.TargetName]model.TargetOutcome{"alpha": {Success: false}})
	failed.OwnerID = "bob"
	for _, e := range []model.HistoryEntry{ok, failed} {
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	tests := []struct {
		filter ListFilter
		want   int
	}{
		{ListFilter{OwnerID: "alice"}, 1},
		{ListFilter{OwnerID: "bob"}, 1},
		{ListFilter{Status: model.StatusFailed}, 1},
		{ListFilter{OwnerID: "alice", Status: model.StatusFailed}, 0},
		{ListFilter{}, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+v", tt.filter), func(t *testing.T) {
			got, total, err := s.ListExecutions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListExecutions: %v", err)
			}
			if total != tt.want || len(got) != tt.want {
				t.Errorf("got %d (total %d), want %d", len(got), total, tt.want)
			}
		})
	}
}

func TestListExecutionsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, total, err := s.ListExecutions(context.Background(), ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Errorf("got %d entries (total %d), want none", len(got), total)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []model.HistoryEntry{
		makeTestEntry(t, now, map[model.TargetName]model.TargetOutcome{
			"alpha": {Success: true, DurationMS: 100},
			"beta":  {Success: true, DurationMS: 300},
		}),
		makeTestEntry(t, now, map[model.TargetName]model.TargetOutcome{
			"alpha": {Success: false, DurationMS: 200},
		}),
	}
	for _, e := range entries {
		if err := s.RecordExecution(ctx, e); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 1 || stats.CountByStatus[model.StatusFailed] != 1 {
		t.Errorf("CountByStatus = %v", stats.CountByStatus)
	}
	if stats.AvgDurationMS != 250 {
		t.Errorf("AvgDurationMS = %v, want 250", stats.AvgDurationMS)
	}
	alpha := stats.ByTarget["alpha"]
	if alpha.Runs != 2 || alpha.Failures != 1 || alpha.AvgDurationMS != 150 {
		t.Errorf("alpha stats = %+v", alpha)
	}
	if beta := stats.ByTarget["beta"]; beta.Runs != 1 || beta.Failures != 0 {
		t.Errorf("beta stats = %+v", beta)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 0 || stats.AvgDurationMS != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
	if len(stats.ByTarget) != 0 {
		t.Errorf("ByTarget = %v, want empty", stats.ByTarget)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	e := makeTestEntry(t, time.Now().UTC(), map[model.TargetName]model.TargetOutcome{"alpha": {Success: true}})
	if err := s1.RecordExecution(context.Background(), e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetExecution(context.Background(), e.ID); err != nil {
		t.Errorf("GetExecution after reopen: %v", err)
	}
}
