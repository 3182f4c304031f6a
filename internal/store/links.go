package store

import (
	"context"
	"database/sql"
	"time"
)

// CreateLink inserts a directed edge between two memories. (source,
// target) is unique; callers are responsible for source != target.
func (s *Store) CreateLink(ctx context.Context, tx DBTX, l *MemoryLink) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO memory_links (source_id, target_id, relationship, strength, created_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			relationship = excluded.relationship,
			strength = excluded.strength
	`, l.SourceID, l.TargetID, l.Relationship, l.Strength, l.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	return id, nil
}

// LinksForMemory returns every link with id at either end, optionally
// filtered to a single relationship (pass "" for all).
func (s *Store) LinksForMemory(ctx context.Context, tx DBTX, id int64, relationship string) ([]*MemoryLink, error) {
	var rows *sql.Rows
	var err error
	if relationship == "" {
		rows, err = tx.QueryContext(ctx, `SELECT id, source_id, target_id, relationship, strength, created_at FROM memory_links WHERE source_id = ? OR target_id = ?`, id, id)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT id, source_id, target_id, relationship, strength, created_at FROM memory_links WHERE (source_id = ? OR target_id = ?) AND relationship = ?`, id, id, relationship)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ListAllLinks returns every link row (used by the /api/links projection).
func (s *Store) ListAllLinks(ctx context.Context, tx DBTX) ([]*MemoryLink, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, source_id, target_id, relationship, strength, created_at FROM memory_links`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		var l MemoryLink
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &l)
	}
	return out, rows.Err()
}
