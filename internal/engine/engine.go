package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vijaygupta18/multidb/internal/coordinator"
	"github.com/vijaygupta18/multidb/internal/executor"
	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/sqlscript"
	"github.com/vijaygupta18/multidb/internal/target"
)

// Defaults applied when a Config field is left zero.
const (
	DefaultTimeout          = 5 * time.Minute
	DefaultMaxTimeout       = 30 * time.Minute
	DefaultStatementTimeout = 5 * time.Minute

	historyTimeout = 30 * time.Second
)

// ErrInvalidRequest is returned for malformed request fields other than the
// script itself.
var ErrInvalidRequest = errors.New("invalid request")

// IsValidationError reports whether err rejects a request before execution.
func IsValidationError(err error) bool {
	return sqlscript.IsValidationError(err) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, target.ErrUnknownTarget) ||
		errors.Is(err, target.ErrNoTargets)
}

// Config holds the engine's timeout policy.
type Config struct {
	// DefaultTimeout is the overall deadline of a request that sets none.
	DefaultTimeout time.Duration
	// MaxTimeout caps every request's overall deadline.
	MaxTimeout time.Duration
	// StatementTimeout applies to each statement separately.
	StatementTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	if c.DefaultTimeout > c.MaxTimeout {
		c.DefaultTimeout = c.MaxTimeout
	}
	return c
}

// Request is one script to run.
type Request struct {
	Script string     `json:"script"`
	Mode   model.Mode `json:"mode,omitempty"`
	// Target names the target for ModeSingle.
	Target    string `json:"target,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	// TimeoutS overrides the default overall timeout, in seconds.
	TimeoutS        *int `json:"timeout_s,omitempty"`
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// HistoryLogger receives every finished execution.
type HistoryLogger interface {
	RecordExecution(ctx context.Context, e model.HistoryEntry) error
}

// Engine orchestrates asynchronous script execution across targets.
type Engine struct {
	coord    *coordinator.Coordinator
	registry *target.Registry
	exec     *executor.Executor
	history  HistoryLogger
	cfg      Config
	logger   *slog.Logger
	broker   *ProgressBroker
	wg       sync.WaitGroup
}

// NewEngine creates an execution engine. history may be nil.
func NewEngine(coord *coordinator.Coordinator, reg *target.Registry, history HistoryLogger, cfg Config, logger *slog.Logger) *Engine {
	broker := NewProgressBroker()
	return &Engine{
		coord:    coord,
		registry: reg,
		exec:     executor.New(&progressTracker{coord: coord, broker: broker}, logger),
		history:  history,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		broker:   broker,
	}
}

// Broker returns the engine's progress broker for SSE subscription.
func (e *Engine) Broker() *ProgressBroker {
	return e.broker
}

// run is everything the driver needs for one execution.
type run struct {
	id         string
	ownerID    string
	req        Request
	mode       model.Mode
	statements []string
	targets    []executor.Target
	timeout    time.Duration
	risk       string
	flag       *coordinator.CancelFlag
}

// StartExecution validates req, registers a running record owned by ownerID
// and launches the execution in a goroutine. It returns the execution id
// without waiting for any database work. Validation failures are returned
// as errors for which IsValidationError is true.
func (e *Engine) StartExecution(ctx context.Context, req Request, ownerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mode, err := model.ParseMode(string(req.Mode))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := sqlscript.Validate(req.Script); err != nil {
		return "", err
	}
	statements, err := sqlscript.Split(req.Script)
	if err != nil {
		return "", err
	}
	if req.Namespace != "" {
		if err := sqlscript.ValidateNamespace(req.Namespace); err != nil {
			return "", err
		}
	}
	timeout, err := e.timeout(req.TimeoutS)
	if err != nil {
		return "", err
	}
	targets, err := e.registry.Resolve(mode, req.Target)
	if err != nil {
		return "", err
	}

	r := &run{
		ownerID:    ownerID,
		req:        req,
		mode:       mode,
		statements: statements,
		targets:    targets,
		timeout:    timeout,
	}
	if reason, risky := sqlscript.ClassifyRisk(req.Script); risky {
		r.risk = reason
	}

	names := make([]model.TargetName, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name())
	}
	r.id, r.flag = e.coord.Begin(ownerID)
	e.coord.Reserve(r.id, names)

	e.logger.Info("execution started",
		"execution_id", r.id,
		"owner_id", ownerID,
		"mode", mode,
		"targets", len(targets),
		"statements", len(statements),
		"timeout", timeout.String(),
	)
	if r.risk != "" {
		e.logger.Warn("risky script", "execution_id", r.id, "risk", r.risk)
	}

	e.wg.Go(func() {
		e.drive(r)
	})

	return r.id, nil
}

// timeout resolves a request's overall deadline, capped at MaxTimeout.
func (e *Engine) timeout(timeoutS *int) (time.Duration, error) {
	if timeoutS == nil || *timeoutS == 0 {
		return e.cfg.DefaultTimeout, nil
	}
	if *timeoutS < 0 {
		return 0, fmt.Errorf("%w: timeout_s must be positive", ErrInvalidRequest)
	}
	d := time.Duration(*timeoutS) * time.Second
	if d > e.cfg.MaxTimeout {
		d = e.cfg.MaxTimeout
	}
	return d, nil
}

// CancelExecution cancels execution id on behalf of requesterID. Callers
// decide beforehand whether requesterID may do so. It reports whether the
// execution was still in flight.
func (e *Engine) CancelExecution(id, requesterID string) bool {
	cancelled := e.coord.Cancel(id)
	e.logger.Info("cancel requested", "execution_id", id, "requester_id", requesterID, "in_flight", cancelled)
	return cancelled
}

// Status returns a snapshot of execution id.
func (e *Engine) Status(id string) (model.ExecutionRecord, bool) {
	return e.coord.Status(id)
}

// Owner returns the owner of execution id.
func (e *Engine) Owner(id string) (string, bool) {
	return e.coord.Owner(id)
}

// ListActive returns the executions that are still running.
func (e *Engine) ListActive() []model.ActiveExecution {
	return e.coord.ListActive()
}

// Targets describes the registered targets.
func (e *Engine) Targets() []target.Info {
	return e.registry.List()
}

// Wait blocks until every execution, history hand-off and interrupt has
// finished.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.coord.Wait()
}

// drive runs one execution to completion. Target tasks run concurrently;
// the execution finishes when all of them have reported.
func (e *Engine) drive(r *run) {
	defer e.broker.Close(r.id)
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("execution driver panicked", "execution_id", r.id, "panic", p, "stack", string(debug.Stack()))
			e.coord.Fail(r.id, fmt.Sprintf("internal error: %v", p))
			e.finish(r, nil)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	names := make([]model.TargetName, 0, len(r.targets))
	for _, t := range r.targets {
		names = append(names, t.Name())
	}
	resp := model.NewResponse(r.id, names)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, t := range r.targets {
		wg.Go(func() {
			outcome := e.runTarget(ctx, r, t)

			success := outcome.Success
			e.broker.Publish(r.id, Event{Type: EventTargetFinished, Target: t.Name(), Success: &success})

			mu.Lock()
			defer mu.Unlock()
			if err := resp.Set(t.Name(), outcome); err != nil {
				e.logger.Error("discarding outcome", "execution_id", r.id, "target", t.Name(), "error", err)
			}
		})
	}
	wg.Wait()

	e.coord.AttachResult(r.id, resp, resp.Success())
	e.finish(r, resp)
}

// runTarget executes the script on one target. A panic inside the target's
// work becomes that target's failure.
func (e *Engine) runTarget(ctx context.Context, r *run, t executor.Target) (outcome model.TargetOutcome) {
	start := time.Now()
	defer e.coord.Untrack(r.id, t.Name())
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("target task panicked",
				"execution_id", r.id, "target", t.Name(), "panic", p, "stack", string(debug.Stack()))
			outcome = model.FailedOutcome(model.ErrorKindInternal,
				fmt.Sprintf("internal error: %v", p), time.Since(start).Milliseconds())
		}
	}()

	return e.exec.Execute(ctx, executor.Job{
		ExecutionID:      r.id,
		Target:           t,
		Statements:       r.statements,
		StatementTimeout: e.cfg.StatementTimeout,
		Namespace:        r.req.Namespace,
		ContinueOnError:  r.req.ContinueOnError,
		Token:            r.flag,
	})
}

// finish publishes the terminal event and hands the execution to history
// logging on its own goroutine. History failures are only logged.
func (e *Engine) finish(r *run, resp *model.Response) {
	rec, ok := e.coord.Status(r.id)
	if !ok {
		e.logger.Warn("record evicted before completion", "execution_id", r.id)
		return
	}
	e.broker.Publish(r.id, Event{Type: EventFinished, Status: rec.Status})

	end := time.Now().UTC()
	if rec.EndTime != nil {
		end = *rec.EndTime
	}
	e.logger.Info("execution finished",
		"execution_id", r.id,
		"status", rec.Status,
		"duration_ms", end.Sub(rec.StartTime).Milliseconds(),
	)

	if e.history == nil {
		return
	}

	entry := model.HistoryEntry{
		ID:             r.id,
		OwnerID:        r.ownerID,
		Mode:           r.mode,
		Namespace:      r.req.Namespace,
		Script:         r.req.Script,
		StatementCount: len(r.statements),
		Status:         rec.Status,
		Success:        resp != nil && resp.Success() && rec.Status == model.StatusCompleted,
		Error:          rec.Error,
		StartTime:      rec.StartTime,
		EndTime:        end,
		DurationMS:     end.Sub(rec.StartTime).Milliseconds(),
		Response:       resp,
		Risk:           r.risk,
	}
	if r.mode == model.ModeSingle {
		entry.Target = r.req.Target
	}

	e.wg.Go(func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Error("history logger panicked", "execution_id", r.id, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := e.history.RecordExecution(ctx, entry); err != nil {
			e.logger.Error("failed to record execution history", "execution_id", r.id, "error", err)
		}
	})
}
