package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vijaygupta18/multidb/internal/model"
	"github.com/vijaygupta18/multidb/internal/sqlscript"
)

const (
	// cleanupTimeout bounds the automatic ROLLBACK and the server-side cancel
	// sent after a timeout. Both run after the caller's context may have expired.
	cleanupTimeout = 10 * time.Second

	// progressTextLen is the longest statement text reported as progress.
	progressTextLen = 200

	msgCancelled      = "cancelled by user"
	msgRequestTimeout = "execution exceeded the request timeout"
)

// Job describes one script run on one target.
type Job struct {
	ExecutionID string
	Target      Target
	Statements  []string

	// StatementTimeout applies to each statement separately. Zero means only
	// the deadline of the context passed to Execute applies.
	StatementTimeout time.Duration

	// Namespace, when set, becomes the session's search_path before any
	// statement runs.
	Namespace string

	ContinueOnError bool
	Token           CancelToken
}

// Executor drives scripts on single targets.
type Executor struct {
	tracker Tracker
	logger  *slog.Logger
}

// New creates an executor that reports sessions and progress to tracker.
func New(tracker Tracker, logger *slog.Logger) *Executor {
	return &Executor{
		tracker: tracker,
		logger:  logger,
	}
}

// Execute runs job.Statements in order on one dedicated session of
// job.Target and shapes the outcome. It never returns an error: every
// failure is reported inside the outcome. The context's deadline is the
// overall request timeout.
func (e *Executor) Execute(ctx context.Context, job Job) model.TargetOutcome {
	start := time.Now()
	name := job.Target.Name()
	logger := e.logger.With("execution_id", job.ExecutionID, "target", name)

	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	if job.Namespace != "" {
		if err := sqlscript.ValidateNamespace(job.Namespace); err != nil {
			return failedBeforeRun(job, model.ErrorKindValidation, err.Error(), elapsed())
		}
	}
	if job.Token.Cancelled() {
		return failedBeforeRun(job, model.ErrorKindCancelled, msgCancelled, elapsed())
	}

	sess, err := job.Target.Acquire(ctx)
	if err != nil {
		logger.Warn("acquire session failed", "error", err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failedBeforeRun(job, model.ErrorKindTimeout, msgRequestTimeout+" while waiting for a connection", elapsed())
		}
		return failedBeforeRun(job, model.ErrorKindConnection, fmt.Sprintf("acquire connection: %v", err), elapsed())
	}
	defer sess.Release()

	// The pid may be handed back to the pool for another execution once this
	// run ends, so the interrupt refuses to fire after that point.
	pid := sess.BackendPID()
	var released atomic.Bool
	e.tracker.Track(job.ExecutionID, name, pid, func(ictx context.Context) error {
		if released.Load() {
			return nil
		}
		return job.Target.CancelBackend(ictx, pid)
	})
	defer func() {
		released.Store(true)
		e.tracker.Untrack(job.ExecutionID, name)
	}()

	logger = logger.With("pid", pid)
	logger.Debug("session acquired", "statements", len(job.Statements))

	if job.Namespace != "" {
		if err := e.applyNamespace(ctx, job, sess); err != nil {
			logger.Warn("apply namespace failed", "namespace", job.Namespace, "error", err)
			kind := model.ErrorKindStatement
			if errors.Is(err, ErrConnection) {
				kind = model.ErrorKindConnection
			}
			return failedBeforeRun(job, kind, fmt.Sprintf("set search_path: %v", err), elapsed())
		}
	}

	if len(job.Statements) == 1 {
		return e.executeSingle(ctx, job, sess, logger, start)
	}
	return e.executeMulti(ctx, job, sess, logger, start)
}

// failedBeforeRun shapes a failure that happened before any statement ran.
// Multi-statement jobs keep their statement count and charge the failure to
// the first statement.
func failedBeforeRun(job Job, kind model.ErrorKind, msg string, durationMS int64) model.TargetOutcome {
	outcome := model.FailedOutcome(kind, msg, durationMS)
	if len(job.Statements) > 1 {
		outcome.StatementCount = len(job.Statements)
		outcome.Results = []model.StatementResult{{
			Statement: job.Statements[0],
			Error:     msg,
			ErrorKind: kind,
		}}
	}
	return outcome
}

func (e *Executor) applyNamespace(ctx context.Context, job Job, sess Session) error {
	sctx, cancel := withStatementTimeout(ctx, job.StatementTimeout)
	defer cancel()
	return sess.SetSearchPath(sctx, job.Namespace)
}

func (e *Executor) executeSingle(ctx context.Context, job Job, sess Session, logger *slog.Logger, start time.Time) model.TargetOutcome {
	stmt := job.Statements[0]
	e.tracker.RecordProgress(job.ExecutionID, job.Target.Name(), 1, 1, sqlscript.Abbreviate(stmt, progressTextLen))

	res := e.runStatement(ctx, job, sess, stmt, false)
	outcome := model.TargetOutcome{
		Success:    res.Success,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if res.Success {
		outcome.Result = &res
	} else {
		outcome.Error = res.Error
		outcome.ErrorKind = res.ErrorKind
		outcome.Cancelled = res.ErrorKind == model.ErrorKindCancelled
	}

	logger.Info("target finished", "success", outcome.Success, "duration_ms", outcome.DurationMS)
	return outcome
}

func (e *Executor) executeMulti(ctx context.Context, job Job, sess Session, logger *slog.Logger, start time.Time) model.TargetOutcome {
	total := len(job.Statements)
	results := make([]model.StatementResult, 0, total)
	success := true
	cancelled := false
	inTx := false

	for i, stmt := range job.Statements {
		if job.Token.Cancelled() {
			results = append(results, model.StatementResult{
				Statement: stmt,
				Error:     msgCancelled,
				ErrorKind: model.ErrorKindCancelled,
			})
			success = false
			cancelled = true
			if inTx {
				results = append(results, e.rollback(sess, logger))
			}
			break
		}

		e.tracker.RecordProgress(job.ExecutionID, job.Target.Name(), i+1, total, sqlscript.Abbreviate(stmt, progressTextLen))

		res := e.runStatement(ctx, job, sess, stmt, inTx)
		results = append(results, res)

		if res.Success {
			switch sqlscript.TransactionEffect(stmt) {
			case sqlscript.TxBegin:
				inTx = true
			case sqlscript.TxEnd:
				inTx = false
			}
			continue
		}

		success = false
		if res.ErrorKind == model.ErrorKindCancelled {
			cancelled = true
		}
		if inTx {
			// The rolled back transaction is not reopened; statements after
			// this point run in autocommit mode.
			results = append(results, e.rollback(sess, logger))
			inTx = false
		}
		if !job.ContinueOnError || isTerminalKind(res.ErrorKind) {
			break
		}
	}

	outcome := model.TargetOutcome{
		Success:        success,
		Results:        results,
		StatementCount: total,
		DurationMS:     time.Since(start).Milliseconds(),
		Cancelled:      cancelled,
	}
	if cancelled {
		outcome.ErrorKind = model.ErrorKindCancelled
	}

	logger.Info("target finished",
		"success", outcome.Success,
		"attempted", len(results),
		"statements", total,
		"duration_ms", outcome.DurationMS,
	)
	return outcome
}

// isTerminalKind reports failures that end the target's work even when the
// caller asked to continue on error.
func isTerminalKind(kind model.ErrorKind) bool {
	switch kind {
	case model.ErrorKindCancelled, model.ErrorKindTimeout, model.ErrorKindConnection:
		return true
	}
	return false
}

// runStatement executes stmt under its own timeout and classifies any failure.
func (e *Executor) runStatement(ctx context.Context, job Job, sess Session, stmt string, inTx bool) model.StatementResult {
	sctx, cancel := withStatementTimeout(ctx, job.StatementTimeout)
	defer cancel()

	started := time.Now()
	res, err := sess.Run(sctx, stmt)
	res.Statement = stmt

	if err == nil {
		statementDuration.WithLabelValues(outcomeSuccess).Observe(time.Since(started).Seconds())
		res.Success = true
		res.Error = ""
		res.ErrorKind = ""
		return res
	}

	res.Success = false
	res.Rows = nil
	res.RowCount = 0

	switch {
	case job.Token.Cancelled():
		res.Error = msgCancelled
		res.ErrorKind = model.ErrorKindCancelled
		statementDuration.WithLabelValues(outcomeCancelled).Observe(time.Since(started).Seconds())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = msgRequestTimeout
		res.ErrorKind = model.ErrorKindTimeout
		statementDuration.WithLabelValues(outcomeTimeout).Observe(time.Since(started).Seconds())
		e.interruptAfterTimeout(job, sess.BackendPID())
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		res.Error = fmt.Sprintf("statement timed out after %s", job.StatementTimeout)
		res.ErrorKind = model.ErrorKindTimeout
		statementDuration.WithLabelValues(outcomeTimeout).Observe(time.Since(started).Seconds())
		e.interruptAfterTimeout(job, sess.BackendPID())
	case errors.Is(ctx.Err(), context.Canceled):
		res.Error = msgCancelled
		res.ErrorKind = model.ErrorKindCancelled
		statementDuration.WithLabelValues(outcomeCancelled).Observe(time.Since(started).Seconds())
	default:
		res.Error = err.Error()
		switch {
		case errors.Is(err, ErrConnection):
			res.ErrorKind = model.ErrorKindConnection
		case inTx:
			res.ErrorKind = model.ErrorKindTransaction
		default:
			res.ErrorKind = model.ErrorKindStatement
		}
		statementDuration.WithLabelValues(outcomeError).Observe(time.Since(started).Seconds())
	}
	return res
}

// interruptAfterTimeout makes sure the server stops working on a statement
// the client has given up on.
func (e *Executor) interruptAfterTimeout(job Job, pid uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := job.Target.CancelBackend(ctx, pid); err != nil {
		backendInterruptsTotal.WithLabelValues(outcomeError).Inc()
		e.logger.Warn("cancel backend after timeout failed",
			"execution_id", job.ExecutionID, "target", job.Target.Name(), "pid", pid, "error", err)
		return
	}
	backendInterruptsTotal.WithLabelValues(outcomeSuccess).Inc()
}

// rollback aborts the session's open transaction and reports it as a
// statement of its own.
func (e *Executor) rollback(sess Session, logger *slog.Logger) model.StatementResult {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	res, err := sess.Run(ctx, "ROLLBACK")
	res.Statement = "ROLLBACK"
	res.Automatic = true
	if err != nil {
		autoRollbacksTotal.WithLabelValues(outcomeError).Inc()
		logger.Warn("automatic rollback failed", "error", err)
		res.Success = false
		res.Error = fmt.Sprintf("automatic rollback failed: %v", err)
		res.ErrorKind = model.ErrorKindTransaction
		return res
	}
	autoRollbacksTotal.WithLabelValues(outcomeSuccess).Inc()
	logger.Info("transaction rolled back after failure")
	res.Success = true
	return res
}

func withStatementTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
