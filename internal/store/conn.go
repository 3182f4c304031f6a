package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/cortexmem/cortex/internal/clock"
)

// BusyTimeout is the SQLite busy_timeout used to mitigate writer
// contention before a write surfaces a contention error.
const BusyTimeout = 5 * time.Second

const (
	warnSizeBytes = 50 * 1024 * 1024
	hardSizeBytes = 100 * 1024 * 1024
)

// Store is the embedded, WAL-mode SQLite-backed store. A single Store
// owns the one writer connection for its database file; readers run
// against the same pool under SQLite's own snapshot isolation.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	clock clock.Clock

	warnBytes int64
	hardBytes int64
}

// Open opens (creating if absent) the SQLite database at path and
// applies the schema/migrations. Use ":memory:" for an ephemeral
// store (tests, scratch engines).
func Open(path string, c clock.Clock) (*Store, error) {
	if c == nil {
		c = clock.System{}
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// A single file is a single writer; keep the pool small so SQLite's
	// own lock, not connection contention, governs serialization.
	db.SetMaxOpenConns(4)

	s := &Store{db: db, clock: c, warnBytes: warnSizeBytes, hardBytes: hardSizeBytes}

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA foreign_keys=ON`,
		fmt.Sprintf(`PRAGMA busy_timeout=%d`, BusyTimeout.Milliseconds()),
	} {
		if _, err := execWithRetry(context.Background(), db, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", pragma, err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages (search, kg) that
// need read-only ad hoc queries beyond the Store's own CRUD surface.
func (s *Store) DB() *sql.DB { return s.db }

// Clock returns the store's time source.
func (s *Store) Clock() clock.Clock { return s.clock }

const (
	maxRetryAttempts = 8
	baseRetryDelay   = 50 * time.Millisecond
	maxRetryDelay    = 2 * time.Second
)

// isBusyErr reports whether err is SQLite reporting writer contention
// ("database is locked" / "database table is locked" / SQLITE_BUSY).
func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}

// execWithRetry runs db.ExecContext, retrying with capped exponential
// backoff while the failure looks like writer contention.
func execWithRetry(ctx context.Context, db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	return retryBusy(ctx, func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

// retryBusy runs op, retrying with capped exponential backoff while
// the failure looks like SQLite writer contention.
func retryBusy(ctx context.Context, op func() (sql.Result, error)) (sql.Result, error) {
	delay := baseRetryDelay
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		res, err := op()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !isBusyErr(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
	return nil, lastErr
}

// SizeInfo reports the current on-disk size of the database file.
func (s *Store) SizeInfo(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// IsBlocked reports whether the store has crossed the hard size cap
// and new writes should be refused (reads remain available).
func (s *Store) IsBlocked(ctx context.Context) (bool, int64, error) {
	size, err := s.SizeInfo(ctx)
	if err != nil {
		return false, 0, err
	}
	return size >= s.hardBytes, size, nil
}

// IsWarn reports whether the store has crossed the soft warn threshold.
func (s *Store) IsWarn(ctx context.Context) (bool, error) {
	size, err := s.SizeInfo(ctx)
	if err != nil {
		return false, err
	}
	return size >= s.warnBytes, nil
}
