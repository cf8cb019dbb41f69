package target

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vijaygupta18/multidb/internal/executor"
	"github.com/vijaygupta18/multidb/internal/model"
)

// Options tune every PostgreSQL target.
type Options struct {
	// AcquireTimeout bounds the wait for a pooled connection.
	AcquireTimeout time.Duration
	// MaxRows caps the rows returned per statement. Zero means no cap.
	MaxRows int
}

const pingTimeout = 5 * time.Second

// PGTarget is an executor.Target backed by a pgx connection pool.
type PGTarget struct {
	name model.TargetName
	pool *pgxpool.Pool
	opts Options
}

var _ executor.Target = (*PGTarget)(nil)

// OpenPG creates the pool for def. The pool connects lazily; a failed ping is
// returned alongside the usable target so callers can decide whether an
// unreachable target is fatal.
func OpenPG(ctx context.Context, def Definition, opts Options) (*PGTarget, error) {
	name, err := model.ParseTargetName(def.Name)
	if err != nil {
		return nil, err
	}
	dsn, err := def.ResolveDSN()
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("target %q: parse dsn: %w", name, err)
	}
	if def.MaxConns > 0 {
		cfg.MaxConns = def.MaxConns
	}
	if def.MinConns > 0 {
		cfg.MinConns = def.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("target %q: connect: %w", name, err)
	}

	t := &PGTarget{name: name, pool: pool, opts: opts}

	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		return t, fmt.Errorf("target %q: ping: %w", name, err)
	}
	return t, nil
}

// Name implements executor.Target.
func (t *PGTarget) Name() model.TargetName { return t.name }

// Acquire implements executor.Target. Pool exhaustion surfaces as a
// connection error once AcquireTimeout elapses.
func (t *PGTarget) Acquire(ctx context.Context) (executor.Session, error) {
	if t.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.AcquireTimeout)
		defer cancel()
	}
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrConnection, err)
	}
	return &pgSession{
		conn:    conn,
		pid:     conn.Conn().PgConn().PID(),
		maxRows: t.opts.MaxRows,
	}, nil
}

// CancelBackend implements executor.Target with pg_cancel_backend over a
// short-lived connection outside the pool, so it still works when every
// pooled connection is busy. A pid with nothing running is not an error.
func (t *PGTarget) CancelBackend(ctx context.Context, pid uint32) error {
	conn, err := pgx.ConnectConfig(ctx, t.pool.Config().ConnConfig.Copy())
	if err != nil {
		return fmt.Errorf("pg_cancel_backend(%d): connect: %w", pid, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var signalled bool
	if err := conn.QueryRow(ctx, "SELECT pg_cancel_backend($1)", int32(pid)).Scan(&signalled); err != nil {
		return fmt.Errorf("pg_cancel_backend(%d): %w", pid, err)
	}
	return nil
}

// Stats implements StatsReporter.
func (t *PGTarget) Stats() PoolStats {
	s := t.pool.Stat()
	return PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
	}
}

// Close releases every pooled connection.
func (t *PGTarget) Close() { t.pool.Close() }

type pgSession struct {
	conn    *pgxpool.Conn
	pid     uint32
	maxRows int
}

func (s *pgSession) BackendPID() uint32 { return s.pid }

func (s *pgSession) SetSearchPath(ctx context.Context, ns string) error {
	_, err := s.conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{ns}.Sanitize())
	return s.classify(err)
}

// Run executes one statement with the simple protocol so that utility and
// transaction-control statements behave exactly as typed.
func (s *pgSession) Run(ctx context.Context, sql string) (model.StatementResult, error) {
	rows, err := s.conn.Query(ctx, sql, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return model.StatementResult{}, s.classify(err)
	}
	defer rows.Close()

	var res model.StatementResult
	fields := rows.FieldDescriptions()
	for rows.Next() {
		if s.maxRows > 0 && len(res.Rows) >= s.maxRows {
			res.Truncated = true
			continue
		}
		values, err := rows.Values()
		if err != nil {
			return model.StatementResult{}, s.classify(err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = jsonValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.StatementResult{}, s.classify(err)
	}

	tag := rows.CommandTag()
	res.RowCount = len(res.Rows)
	res.RowsAffected = tag.RowsAffected()
	if f := strings.Fields(tag.String()); len(f) > 0 {
		res.Command = f[0]
	}
	return res, nil
}

func (s *pgSession) Release() { s.conn.Release() }

// classify marks errors that left the session unusable as connection
// failures. Server-reported errors are returned unchanged.
func (s *pgSession) classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if s.conn.Conn().IsClosed() {
		return fmt.Errorf("%w: %v", executor.ErrConnection, err)
	}
	return err
}

// jsonValue converts driver values that do not marshal cleanly.
func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case driver.Valuer:
		if dv, err := x.Value(); err == nil {
			return dv
		}
	}
	return v
}
