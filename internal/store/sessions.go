package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateSession opens a new bookkeeping session.
func (s *Store) CreateSession(ctx context.Context, tx DBTX, sess *Session) (int64, error) {
	var project sql.NullString
	if sess.Project != nil {
		project = sql.NullString{String: *sess.Project, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (project, started_at, summary, memories_created, memories_accessed)
		VALUES (?,?,?,?,?)
	`, project, sess.StartedAt.Unix(), sess.Summary, sess.MemoriesCreated, sess.MemoriesAccessed)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	sess.ID = id
	return id, nil
}

// EndSession closes a session with a summary and final counters.
func (s *Store) EndSession(ctx context.Context, tx DBTX, id int64, endedAt time.Time, summary string, created, accessed int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, summary = ?, memories_created = ?, memories_accessed = ?
		WHERE id = ?
	`, endedAt.Unix(), summary, created, accessed, id)
	return err
}
