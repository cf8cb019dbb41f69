// Package fake provides in-memory targets whose statements succeed, fail or
// block according to rules set up by the caller. It is used by tests and by
// the e2e test server in place of real PostgreSQL pools.
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vijaygupta18/multidb/internal/executor"
	"github.com/vijaygupta18/multidb/internal/model"
)

// ErrQueryCanceled is what a statement returns when the server cancels it.
var ErrQueryCanceled = errors.New("ERROR: canceling statement due to user request (SQLSTATE 57014)")

// Behavior describes how statements matching a rule respond.
type Behavior struct {
	Delay        time.Duration
	Err          error
	Rows         []map[string]any
	RowsAffected int64
}

type rule struct {
	substr   string
	behavior Behavior
}

// Target is a scripted executor.Target.
type Target struct {
	name model.TargetName

	mu           sync.Mutex
	rules        []rule
	acquireErr   error
	acquireDelay time.Duration
	nextPID      uint32
	open         int
	executed     []string
	searchPaths  []string
	cancels      []uint32
	running      map[uint32]context.CancelFunc
}

var _ executor.Target = (*Target)(nil)

// New creates a target that answers every statement successfully until rules
// are added. It panics on an invalid name.
func New(name string) *Target {
	n, err := model.ParseTargetName(name)
	if err != nil {
		panic(err)
	}
	return &Target{
		name:    n,
		nextPID: 1000,
		running: make(map[uint32]context.CancelFunc),
	}
}

// On registers b for statements containing substr (case-insensitive). Rules
// are checked in registration order.
func (t *Target) On(substr string, b Behavior) *Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, rule{substr: strings.ToLower(substr), behavior: b})
	return t
}

// FailAcquire makes every subsequent Acquire return err.
func (t *Target) FailAcquire(err error) *Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acquireErr = err
	return t
}

// DelayAcquire makes Acquire wait d, or until its context is done.
func (t *Target) DelayAcquire(d time.Duration) *Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acquireDelay = d
	return t
}

// Name implements executor.Target.
func (t *Target) Name() model.TargetName { return t.name }

// Acquire implements executor.Target.
func (t *Target) Acquire(ctx context.Context) (executor.Session, error) {
	t.mu.Lock()
	acquireErr, delay := t.acquireErr, t.acquireDelay
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", executor.ErrConnection, ctx.Err())
		}
	}
	if acquireErr != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrConnection, acquireErr)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextPID++
	t.open++
	return &session{target: t, pid: t.nextPID}, nil
}

// CancelBackend implements executor.Target by aborting the statement running
// on pid, if any.
func (t *Target) CancelBackend(_ context.Context, pid uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels = append(t.cancels, pid)
	if cancel, ok := t.running[pid]; ok {
		cancel()
	}
	return nil
}

// Executed returns every statement run so far, in order.
func (t *Target) Executed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.executed...)
}

// SearchPaths returns the namespaces applied so far.
func (t *Target) SearchPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.searchPaths...)
}

// Cancels returns the pids passed to CancelBackend.
func (t *Target) Cancels() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uint32(nil), t.cancels...)
}

// Open returns the number of sessions acquired and not yet released.
func (t *Target) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *Target) match(sql string) Behavior {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executed = append(t.executed, sql)
	lower := strings.ToLower(sql)
	for _, r := range t.rules {
		if strings.Contains(lower, r.substr) {
			return r.behavior
		}
	}
	return Behavior{}
}

type session struct {
	target *Target
	pid    uint32
}

func (s *session) BackendPID() uint32 { return s.pid }

func (s *session) SetSearchPath(_ context.Context, ns string) error {
	s.target.mu.Lock()
	defer s.target.mu.Unlock()
	s.target.searchPaths = append(s.target.searchPaths, ns)
	return nil
}

func (s *session) Run(ctx context.Context, sql string) (model.StatementResult, error) {
	b := s.target.match(sql)

	if b.Delay > 0 {
		rctx, cancel := context.WithCancel(ctx)
		s.target.mu.Lock()
		s.target.running[s.pid] = cancel
		s.target.mu.Unlock()

		var err error
		select {
		case <-time.After(b.Delay):
		case <-rctx.Done():
			err = ErrQueryCanceled
			if ctx.Err() != nil {
				err = ctx.Err()
			}
		}

		s.target.mu.Lock()
		delete(s.target.running, s.pid)
		s.target.mu.Unlock()
		cancel()

		if err != nil {
			return model.StatementResult{}, err
		}
	}

	if b.Err != nil {
		return model.StatementResult{}, b.Err
	}

	return model.StatementResult{
		Command:      commandTag(sql),
		Rows:         b.Rows,
		RowCount:     len(b.Rows),
		RowsAffected: b.RowsAffected,
	}, nil
}

func (s *session) Release() {
	s.target.mu.Lock()
	defer s.target.mu.Unlock()
	s.target.open--
}

func commandTag(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
