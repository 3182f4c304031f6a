package store

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.Tx, *sql.Conn, and *sql.DB — the CRUD
// helpers in this package take a DBTX so the same code path runs
// under WithTx, WithImmediateTx, or (for simple reads) the bare pool.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on error or panic (re-panicking after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WithImmediateTx runs fn inside a transaction that acquires SQLite's
// write lock up front (BEGIN IMMEDIATE), for multi-statement critical
// sections — consolidation — that must serialize with other writers
// rather than risk a late lock-upgrade failure under contention.
func (s *Store) WithImmediateTx(ctx context.Context, fn func(tx DBTX) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := execWithRetryConn(ctx, conn, `BEGIN IMMEDIATE`); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
			panic(p)
		}
	}()

	if err = fn(conn); err != nil {
		_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		return err
	}
	if _, err = conn.ExecContext(ctx, `COMMIT`); err != nil {
		return err
	}
	return nil
}

func execWithRetryConn(ctx context.Context, conn *sql.Conn, query string) (sql.Result, error) {
	// Mirrors execWithRetry's backoff policy but against a *sql.Conn,
	// which execWithRetry (typed to *sql.DB) cannot accept directly.
	return retryBusy(ctx, func() (sql.Result, error) {
		return conn.ExecContext(ctx, query)
	})
}
