package executor

import (
	"context"
	"errors"

	"github.com/vijaygupta18/multidb/internal/model"
)

// ErrConnection marks failures to reach a target or to keep a session alive:
// pool exhaustion, refused connections, sessions closed mid-statement.
var ErrConnection = errors.New("connection error")

// Target is one database endpoint able to lend dedicated sessions.
type Target interface {
	// Name returns the configured target name.
	Name() model.TargetName

	// Acquire leases one session from the target's pool. It must give up
	// when ctx is done rather than waiting for a free connection forever.
	Acquire(ctx context.Context) (Session, error)

	// CancelBackend asks the server, over a connection other than the one
	// running the statement, to cancel whatever backend pid is executing.
	// A backend with nothing running is not an error.
	CancelBackend(ctx context.Context, pid uint32) error
}

// Session is a leased connection. Namespace and transaction state persist
// across calls until Release.
type Session interface {
	// BackendPID returns the server process id serving this session.
	BackendPID() uint32

	// SetSearchPath applies ns as the session's schema search path.
	SetSearchPath(ctx context.Context, ns string) error

	// Run executes one statement and returns its rows and command tag.
	// Statement and Success are filled in by the executor.
	Run(ctx context.Context, sql string) (model.StatementResult, error)

	// Release returns the session to its pool.
	Release()
}

// Tracker receives the live resources and progress of a target run. The
// execution coordinator implements it.
type Tracker interface {
	Track(executionID string, target model.TargetName, pid uint32, interrupt func(context.Context) error)
	Untrack(executionID string, target model.TargetName)
	RecordProgress(executionID string, target model.TargetName, current, total int, statement string)
}

// CancelToken is the shared flag checked between statements.
type CancelToken interface {
	Cancelled() bool
}
