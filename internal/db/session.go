// Package db wraps a single PostgreSQL session and the one transaction every
// run executes in. Statements never auto-commit; the orchestrator decides
// between Commit and Rollback exactly once.
package db

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/stagemerge/stagemerge/internal/model"
)

// Executor runs statements inside the session transaction. The QA and upsert
// engines depend on this interface only, so tests can substitute a scripted
// fake.
type Executor interface {
	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a statement and materializes the full result.
	Query(ctx context.Context, query string, args ...any) (*model.Rowset, error)
	// QueryScalar runs a statement expected to return a single value.
	QueryScalar(ctx context.Context, query string, args ...any) (any, error)
}

// Session owns a database connection and the transaction all work runs in.
type Session struct {
	db    *sqlx.DB
	tx    *sqlx.Tx
	owned bool
	done  bool
}

// Open connects to the database described by dsn and begins the session
// transaction.
func Open(ctx context.Context, dsn string) (*Session, error) {
	pool, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	s, err := begin(ctx, pool, true)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Adopt wraps a caller-provided connection pool. The pool is not closed when
// the session closes.
func Adopt(ctx context.Context, pool *sqlx.DB) (*Session, error) {
	return begin(ctx, pool, false)
}

func begin(ctx context.Context, pool *sqlx.DB, owned bool) (*Session, error) {
	tx, err := pool.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &Error{Op: "begin", Err: err}
	}
	return &Session{db: pool, tx: tx, owned: owned}, nil
}

// Exec runs a statement inside the session transaction and returns the
// affected row count.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &Error{Op: "exec", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &Error{Op: "rows affected", Err: err}
	}
	return n, nil
}

// Query runs a statement and materializes the entire result set.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*model.Rowset, error) {
	rows, err := s.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &Error{Op: "columns", Err: err}
	}
	rs := &model.Rowset{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, &Error{Op: "scan", Err: err}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	return rs, nil
}

// QueryScalar runs a statement expected to return a single row with a single
// column and returns that value. Returns nil if the statement yields no rows.
func (s *Session) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	rs, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if rs.Empty() || len(rs.Rows[0]) == 0 {
		return nil, nil
	}
	return rs.Rows[0][0], nil
}

// Commit commits the session transaction. The session can not be used
// afterwards.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

// Rollback rolls the session transaction back. Safe to call after Commit or
// a prior Rollback; later calls are no-ops.
func (s *Session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(); err != nil {
		return &Error{Op: "rollback", Err: err}
	}
	return nil
}

// Close rolls back any open transaction and, when the session owns the
// connection, closes it.
func (s *Session) Close(ctx context.Context) error {
	rbErr := s.Rollback(ctx)
	if s.owned {
		if err := s.db.Close(); err != nil {
			return &Error{Op: "close", Err: err}
		}
	}
	return rbErr
}
