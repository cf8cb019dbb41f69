package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vijaygupta18/multidb/internal/model"
)

func TestGetStatsEmpty(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if stats.Total != 0 {
		t.Errorf("total = %d, want 0", stats.Total)
	}
	if stats.AvgDurationMS != 0 {
		t.Errorf("avg_duration_ms = %f, want 0", stats.AvgDurationMS)
	}
}

func TestGetStatsPopulated(t *testing.T) {
	srv := newTestServer(t)

	for i := range 3 {
		recordHistory(t, srv, "alice", model.StatusCompleted, time.Duration(i)*time.Second)
	}
	recordHistory(t, srv, "bob", model.StatusFailed, 0)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("total = %d, want 4", stats.Total)
	}
	if stats.ByStatus["completed"] != 3 {
		t.Errorf("by_status[completed] = %d, want 3", stats.ByStatus["completed"])
	}
	if stats.ByStatus["failed"] != 1 {
		t.Errorf("by_status[failed] = %d, want 1", stats.ByStatus["failed"])
	}
	if stats.AvgDurationMS != 100 {
		t.Errorf("avg_duration_ms = %f, want 100", stats.AvgDurationMS)
	}
	if stats.Active != 0 {
		t.Errorf("active = %d, want 0", stats.Active)
	}
}

// recordHistory stores a finished execution that started offset before now
// and ran for 100ms.
func recordHistory(t *testing.T, srv *Server, owner, status string, offset time.Duration) model.HistoryEntry {
	t.Helper()
	start := time.Now().UTC().Add(-time.Minute - offset).Truncate(time.Millisecond)
	e := model.HistoryEntry{
		ID:         model.NewID(),
		OwnerID:    owner,
		Mode:       model.ModeAll,
		Script:     "SELECT 1",
		Status:     status,
		Success:    status == model.StatusCompleted,
		StartTime:  start,
		EndTime:    start.Add(100 * time.Millisecond),
		DurationMS: 100,
	}
	if err := srv.store.RecordExecution(context.Background(), e); err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	return e
}
