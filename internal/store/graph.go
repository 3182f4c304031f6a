package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// GetEntityByNameType looks up an entity by exact (name, type) — step
// 1 of the resolver's match order.
func (s *Store) GetEntityByNameType(ctx context.Context, tx DBTX, name, typ string) (*Entity, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, name, type, aliases, memory_count FROM entities WHERE name = ? AND type = ?`, name, typ)
	return scanEntity(row)
}

// GetEntityByNameCI looks up an entity by case-insensitive name match
// — step 2 of the resolver's match order.
func (s *Store) GetEntityByNameCI(ctx context.Context, tx DBTX, name string) (*Entity, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, name, type, aliases, memory_count FROM entities WHERE name = ? COLLATE NOCASE LIMIT 1`, name)
	return scanEntity(row)
}

// ListEntitiesCandidates returns entities whose name length falls
// within [minLen,maxLen] — narrows the set the fuzzy (Levenshtein)
// resolver step has to score.
func (s *Store) ListEntitiesCandidates(ctx context.Context, tx DBTX, minLen, maxLen int) ([]*Entity, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, type, aliases, memory_count FROM entities WHERE length(name) BETWEEN ? AND ?`, minLen, maxLen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var aliasesJSON string
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &aliasesJSON, &e.MemoryCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(aliasesJSON), &e.Aliases)
	return &e, nil
}

func scanEntities(rows *sql.Rows) ([]*Entity, error) {
	var out []*Entity
	for rows.Next() {
		var e Entity
		var aliasesJSON string
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &aliasesJSON, &e.MemoryCount); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(aliasesJSON), &e.Aliases)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// InsertEntity creates a brand-new entity — resolver step 5.
func (s *Store) InsertEntity(ctx context.Context, tx DBTX, name, typ string) (*Entity, error) {
	aliasesJSON, _ := json.Marshal([]string{})
	res, err := tx.ExecContext(ctx, `INSERT INTO entities (name, type, aliases, memory_count) VALUES (?,?,?,0)`, name, typ, string(aliasesJSON))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Entity{ID: id, Name: name, Type: typ, Aliases: []string{}}, nil
}

// AppendAlias unions alias (case-preserving, de-duplicated) into an
// entity's alias set — resolver steps 3/4 on a hit.
func (s *Store) AppendAlias(ctx context.Context, tx DBTX, entityID int64, alias string) error {
	row := tx.QueryRowContext(ctx, `SELECT aliases FROM entities WHERE id = ?`, entityID)
	var aliasesJSON string
	if err := row.Scan(&aliasesJSON); err != nil {
		return err
	}
	var aliases []string
	_ = json.Unmarshal([]byte(aliasesJSON), &aliases)

	for _, a := range aliases {
		if a == alias {
			return nil
		}
	}
	aliases = append(aliases, alias)
	updated, _ := json.Marshal(aliases)
	_, err := tx.ExecContext(ctx, `UPDATE entities SET aliases = ? WHERE id = ?`, string(updated), entityID)
	return err
}

// IncrementMemoryCount bumps an entity's memory_count by delta (may be negative).
func (s *Store) IncrementMemoryCount(ctx context.Context, tx DBTX, entityID int64, delta int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE entities SET memory_count = memory_count + ? WHERE id = ?`, delta, entityID)
	return err
}

// UpsertMemoryEntity links a mention, ignoring if it already exists.
func (s *Store) UpsertMemoryEntity(ctx context.Context, tx DBTX, memoryID, entityID int64, role MemoryEntityRole) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO memory_entities (memory_id, entity_id, role) VALUES (?,?,?)`, memoryID, entityID, string(role))
	return err
}

// HasMemoryEntity reports whether a mention link already exists (so
// callers can increment memory_count once per distinct entity per memory).
func (s *Store) HasMemoryEntity(ctx context.Context, tx DBTX, memoryID, entityID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM memory_entities WHERE memory_id = ? AND entity_id = ?`, memoryID, entityID).Scan(&n)
	return n > 0, err
}

// UpsertTriple inserts a triple, ignoring duplicates on the full unique tuple.
func (s *Store) UpsertTriple(ctx context.Context, tx DBTX, t *Triple) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO triples (subject_id, predicate, object_id, source_memory_id)
		VALUES (?,?,?,?)
	`, t.SubjectID, t.Predicate, t.ObjectID, t.SourceMemoryID)
	return err
}

// TriplesForEntity returns every triple where entityID is subject or object.
func (s *Store) TriplesForEntity(ctx context.Context, tx DBTX, entityID int64) ([]*Triple, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, subject_id, predicate, object_id, source_memory_id FROM triples WHERE subject_id = ? OR object_id = ?`, entityID, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Predicate, &t.ObjectID, &t.SourceMemoryID); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListEntities returns entities, optionally filtered by type and a
// minimum mention count, capped at limit (0 = unlimited).
func (s *Store) ListEntities(ctx context.Context, tx DBTX, typ string, minMentions, limit int) ([]*Entity, error) {
	query := `SELECT id, name, type, aliases, memory_count FROM entities WHERE memory_count >= ?`
	args := []interface{}{minMentions}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY memory_count DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

// GetEntity fetches a single entity by id.
func (s *Store) GetEntity(ctx context.Context, tx DBTX, id int64) (*Entity, error) {
	row := tx.QueryRowContext(ctx, `SELECT id, name, type, aliases, memory_count FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// DeleteEntity removes an entity row (cascades triples/memory_entities via FK).
func (s *Store) DeleteEntity(ctx context.Context, tx DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	return err
}

// RewireTriples repoints every triple referencing oldID onto newID —
// part of merge(keep,remove).
func (s *Store) RewireTriples(ctx context.Context, tx DBTX, oldID, newID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE OR IGNORE triples SET subject_id = ? WHERE subject_id = ?`, newID, oldID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE OR IGNORE triples SET object_id = ? WHERE object_id = ?`, newID, oldID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM triples WHERE subject_id = object_id`)
	return err
}

// RewireMentions repoints every memory_entities row referencing oldID
// onto newID — part of merge(keep,remove).
func (s *Store) RewireMentions(ctx context.Context, tx DBTX, oldID, newID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE OR IGNORE memory_entities SET entity_id = ? WHERE entity_id = ?`, newID, oldID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM memory_entities WHERE entity_id = ?`, oldID)
	return err
}

// SetAliases overwrites an entity's alias list wholesale (merge uses
// this to write the unioned set).
func (s *Store) SetAliases(ctx context.Context, tx DBTX, entityID int64, aliases []string) error {
	data, _ := json.Marshal(aliases)
	_, err := tx.ExecContext(ctx, `UPDATE entities SET aliases = ? WHERE id = ?`, string(data), entityID)
	return err
}

// SetMemoryCount overwrites an entity's memory_count (merge sums both sides).
func (s *Store) SetMemoryCount(ctx context.Context, tx DBTX, entityID int64, count int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE entities SET memory_count = ? WHERE id = ?`, count, entityID)
	return err
}
