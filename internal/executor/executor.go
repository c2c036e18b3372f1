// Package executor runs catalog and domain queries against PostgreSQL with
// per-statement timeouts and a read-only sandbox.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/config"
	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// Dialect selects the session setup the executor performs per transaction.
type Dialect int

const (
	// Postgres sets statement_timeout and opens read-only transactions.
	Postgres Dialect = iota
	// SQLite skips session setup; only the context deadline applies.
	SQLite
)

// timeoutGrace lets the server-side statement_timeout fire before the
// client-side deadline does, so the error carries SQLSTATE 57014.
const timeoutGrace = 250 * time.Millisecond

// Options configures an Executor.
type Options struct {
	Dialect          Dialect
	StatementTimeout time.Duration
	AllowWrites      bool
}

// Executor owns a connection pool and runs every probe query inside a
// bounded transaction.
type Executor struct {
	db   *sql.DB
	opts Options
}

// Open connects to PostgreSQL using cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, model.NewError(model.KindConnection, "", "", "open "+cfg.Redacted(), err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, model.NewError(model.KindConnection, "", "", "ping "+cfg.Redacted(), err)
	}
	return db, nil
}

// New wraps db. A zero StatementTimeout falls back to 30s.
func New(db *sql.DB, opts Options) *Executor {
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = 30 * time.Second
	}
	return &Executor{db: db, opts: opts}
}

// Close releases the pool.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Ping checks connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return Classify(ctx, err, "ping")
	}
	return nil
}

type timeoutKey struct{}

// WithStatementTimeout overrides the executor's default statement timeout for
// queries issued with the returned context.
func WithStatementTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

func (e *Executor) timeout(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok && d > 0 {
		return d
	}
	return e.opts.StatementTimeout
}

// TimedResult is the outcome of ExecuteTimed.
type TimedResult struct {
	Statement *Statement
	Columns   []string
	Rows      int
	Elapsed   time.Duration
}

// ExecuteTimed runs a caller-supplied statement through the sandbox and
// measures its wall-clock time including draining every row.
func (e *Executor) ExecuteTimed(ctx context.Context, query string) (*TimedResult, error) {
	stmt, err := CheckStatement(query, e.opts.AllowWrites)
	if err != nil {
		return nil, err
	}

	res := &TimedResult{Statement: stmt}
	opts := e.txOptions(sql.LevelDefault, stmt.ReadOnly)
	err = e.inTx(ctx, opts, func(ctx context.Context, tx *sql.Tx) error {
		start := time.Now()
		rows, err := tx.QueryContext(ctx, stmt.Text)
		if err != nil {
			return err
		}
		defer rows.Close()

		if res.Columns, err = rows.Columns(); err != nil {
			return err
		}
		for rows.Next() {
			res.Rows++
		}
		if err := rows.Err(); err != nil {
			return err
		}
		res.Elapsed = time.Since(start)
		return nil
	})
	if err != nil {
		return nil, Classify(ctx, err, truncate(stmt.Text, 200))
	}
	return res, nil
}

// readTx runs fn inside a read-only transaction at the given isolation level.
func (e *Executor) readTx(ctx context.Context, iso sql.IsolationLevel, detail string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := e.inTx(ctx, e.txOptions(iso, true), fn); err != nil {
		return Classify(ctx, err, detail)
	}
	return nil
}

func (e *Executor) txOptions(iso sql.IsolationLevel, readOnly bool) *sql.TxOptions {
	if e.opts.Dialect == SQLite {
		return nil
	}
	return &sql.TxOptions{Isolation: iso, ReadOnly: readOnly}
}

func (e *Executor) inTx(parent context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	timeout := e.timeout(parent)
	ctx, cancel := context.WithTimeout(parent, timeout+timeoutGrace)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op after Commit

	if e.opts.Dialect == Postgres {
		ms := strconv.FormatInt(timeout.Milliseconds(), 10)
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = "+ms); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
