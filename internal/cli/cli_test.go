package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vijaygupta18/multidb/internal/config"
	"github.com/vijaygupta18/multidb/internal/engine"
	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/sqlscript"
	"github.com/vijaygupta18/multidb/internal/target"
	"github.com/vijaygupta18/multidb/internal/target/fake"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func registryOf(t *testing.T, targets ...*fake.Target) *target.Registry {
	t.Helper()
	reg := target.NewRegistry()
	for _, tgt := range targets {
		if err := reg.Register(tgt); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return reg
}

func TestCheckValidScript(t *testing.T) {
	var out bytes.Buffer
	if err := check("SELECT 1; DELETE FROM users;", "", &out); err != nil {
		t.Fatalf("check: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "ok: 2 statement(s)") {
		t.Errorf("output missing statement count:\n%s", got)
	}
	if !strings.Contains(got, "warning: statement 2") {
		t.Errorf("output missing risk warning:\n%s", got)
	}
}

func TestCheckRejects(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		namespace string
		want      error
	}{
		{"empty", "  -- nothing\n", "", sqlscript.ErrEmptyQuery},
		{"denied", "GRANT ALL ON t TO bob", "", sqlscript.ErrDisallowedOperation},
		{"namespace", "SELECT 1", "a b", sqlscript.ErrInvalidNamespace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(tt.script, tt.namespace, io.Discard)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sql")
	if err := os.WriteFile(path, []byte("SELECT 1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := readScript(path, nil)
	if err != nil || got != "SELECT 1" {
		t.Errorf("readScript(file) = %q, %v", got, err)
	}

	got, err = readScript("-", strings.NewReader("SELECT 2"))
	if err != nil || got != "SELECT 2" {
		t.Errorf("readScript(stdin) = %q, %v", got, err)
	}

	if _, err := readScript("", nil); err == nil {
		t.Error("expected error for missing --file")
	}
}

func TestRunOnceSuccess(t *testing.T) {
	reg := registryOf(t, fake.New("alpha"), fake.New("beta"))
	var out, progress bytes.Buffer

	req := engine.Request{Script: "SELECT 1; SELECT 2", Mode: model.ModeAll}
	if err := runOnce(context.Background(), config.Load(), reg, req, &out, &progress, discardLogger()); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	var rec struct {
		Status string                     `json:"status"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if rec.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	if _, ok := rec.Result["beta"]; !ok {
		t.Error("result missing beta")
	}
}

func TestRunOnceFailure(t *testing.T) {
	bad := fake.New("alpha").On("boom", fake.Behavior{Err: errors.New("ERROR: boom (SQLSTATE 42000)")})
	reg := registryOf(t, bad)

	req := engine.Request{Script: "SELECT boom", Mode: model.ModeAll}
	err := runOnce(context.Background(), config.Load(), reg, req, io.Discard, io.Discard, discardLogger())
	if !errors.Is(err, errExecutionFailed) {
		t.Errorf("err = %v, want errExecutionFailed", err)
	}
}

func TestRunOnceValidationError(t *testing.T) {
	reg := registryOf(t, fake.New("alpha"))

	req := engine.Request{Script: "SELECT 1", Mode: model.ModeSingle, Target: "missing"}
	err := runOnce(context.Background(), config.Load(), reg, req, io.Discard, io.Discard, discardLogger())
	if !errors.Is(err, target.ErrUnknownTarget) {
		t.Errorf("err = %v, want ErrUnknownTarget", err)
	}
}

func TestRunOnceInterrupted(t *testing.T) {
	slow := fake.New("alpha").On("pg_sleep", fake.Behavior{Delay: 30 * time.Second})
	reg := registryOf(t, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	req := engine.Request{Script: "SELECT pg_sleep(30)", Mode: model.ModeAll}
	start := time.Now()
	err := runOnce(ctx, config.Load(), reg, req, &out, io.Discard, discardLogger())
	if !errors.Is(err, errExecutionFailed) {
		t.Fatalf("err = %v, want errExecutionFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("interrupt took %v", elapsed)
	}
	if !strings.Contains(out.String(), `"status": "cancelled"`) {
		t.Errorf("output does not report cancellation:\n%s", out.String())
	}
}
