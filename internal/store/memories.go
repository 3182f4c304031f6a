package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"
)

// InsertMemory inserts m and returns the assigned id. Callers are
// expected to have already computed category/salience/type/scope —
// this is the storage primitive, not the business-rule layer (that
// lives in memstore).
func (s *Store) InsertMemory(ctx context.Context, tx DBTX, m *Memory) (int64, error) {
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return 0, err
	}
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (
			type, category, title, content, project, scope, transferable,
			access_count, last_accessed, created_at, salience, decayed_score,
			tags, metadata, embedding
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		string(m.Type), string(m.Category), m.Title, m.Content, m.Project,
		string(m.Scope), boolToInt(m.Transferable),
		m.AccessCount, m.LastAccessed.Unix(), m.CreatedAt.Unix(),
		m.Salience, m.DecayedScore, string(tagsJSON), string(metaJSON),
		encodeEmbedding(m.Embedding),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

const memoryColumns = `id, type, category, title, content, project, scope, transferable, access_count, last_accessed, created_at, salience, decayed_score, tags, metadata, embedding`

// memoryColumnsQualified is memoryColumns with every column qualified
// by the "m" alias, for queries that join memories against another table.
const memoryColumnsQualified = `m.id, m.type, m.category, m.title, m.content, m.project, m.scope, m.transferable, m.access_count, m.last_accessed, m.created_at, m.salience, m.decayed_score, m.tags, m.metadata, m.embedding`

func scanMemory(row interface{ Scan(...interface{}) error }) (*Memory, error) {
	var m Memory
	var project sql.NullString
	var scope, tagsJSON, metaJSON string
	var transferable int
	var lastAccessed, createdAt int64
	var embedding []byte

	if err := row.Scan(
		&m.ID, &m.Type, &m.Category, &m.Title, &m.Content, &project, &scope, &transferable,
		&m.AccessCount, &lastAccessed, &createdAt, &m.Salience, &m.DecayedScore,
		&tagsJSON, &metaJSON, &embedding,
	); err != nil {
		return nil, err
	}

	if project.Valid {
		m.Project = &project.String
	}
	m.Scope = Scope(scope)
	m.Transferable = transferable != 0
	m.LastAccessed = time.Unix(lastAccessed, 0).UTC()
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.Embedding = decodeEmbedding(embedding)

	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)

	return &m, nil
}

// GetMemory fetches a single memory by id, or (nil, nil) if absent.
func (s *Store) GetMemory(ctx context.Context, tx DBTX, id int64) (*Memory, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// FindByTitleProject looks for an existing memory with the same title
// within the same project, for add()'s near-duplicate dedup check.
func (s *Store) FindByTitleProject(ctx context.Context, tx DBTX, title string, project *string) (*Memory, error) {
	var row *sql.Row
	if project == nil {
		row = tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE title = ? AND project IS NULL ORDER BY id LIMIT 1`, title)
	} else {
		row = tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE title = ? AND project = ? ORDER BY id LIMIT 1`, title, *project)
	}
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// MemoryPatch is a partial update for UpdateMemory. Only non-nil fields
// in patch are written; LastAccessed is always bumped to now per the
// "any mutation updates lastAccessed" invariant.
type MemoryPatch struct {
	Title        *string
	Content      *string
	Category     *Category
	Type         *MemoryType
	Scope        *Scope
	Transferable *bool
	Tags         []string
	Salience     *float64
	Metadata     map[string]string
}

func (s *Store) UpdateMemory(ctx context.Context, tx DBTX, id int64, patch MemoryPatch, now time.Time) error {
	existing, err := s.GetMemory(ctx, tx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return sql.ErrNoRows
	}

	if patch.Title != nil {
		existing.Title = *patch.Title
	}
	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.Category != nil {
		existing.Category = *patch.Category
	}
	if patch.Type != nil {
		existing.Type = *patch.Type
	}
	if patch.Scope != nil {
		existing.Scope = *patch.Scope
	}
	if patch.Transferable != nil {
		existing.Transferable = *patch.Transferable
	}
	if patch.Tags != nil {
		existing.Tags = patch.Tags
	}
	if patch.Salience != nil {
		existing.Salience = *patch.Salience
	}
	if patch.Metadata != nil {
		existing.Metadata = patch.Metadata
	}
	existing.LastAccessed = now

	tagsJSON, _ := json.Marshal(existing.Tags)
	metaJSON, _ := json.Marshal(existing.Metadata)

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET title=?, content=?, category=?, type=?, scope=?, transferable=?,
			tags=?, metadata=?, salience=?, last_accessed=?
		WHERE id=?
	`, existing.Title, existing.Content, string(existing.Category), string(existing.Type),
		string(existing.Scope), boolToInt(existing.Transferable), string(tagsJSON), string(metaJSON),
		existing.Salience, now.Unix(), id)
	return err
}

// SetEmbedding writes the computed embedding for a memory (the async
// embedding worker's single write).
func (s *Store) SetEmbedding(ctx context.Context, tx DBTX, id int64, embedding []float32) error {
	_, err := tx.ExecContext(ctx, `UPDATE memories SET embedding = ? WHERE id = ?`, encodeEmbedding(embedding), id)
	return err
}

// SetAccess applies reinforcement atomically: access_count+1,
// last_accessed=now, salience=newSalience, all in one statement so the
// two never diverge.
func (s *Store) SetAccess(ctx context.Context, tx DBTX, id int64, newSalience float64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?, salience = ?
		WHERE id = ?
	`, now.Unix(), newSalience, id)
	return err
}

// SetDecayedScore persists a recomputed decayed_score for one row.
func (s *Store) SetDecayedScore(ctx context.Context, tx DBTX, id int64, decayed float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE memories SET decayed_score = ? WHERE id = ?`, decayed, id)
	return err
}

// SetType promotes/demotes a memory's tier and optionally bumps salience.
func (s *Store) SetType(ctx context.Context, tx DBTX, id int64, t MemoryType, salience float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE memories SET type = ?, salience = ? WHERE id = ?`, string(t), salience, id)
	return err
}

// DeleteMemory removes a memory row. FK cascades (ON DELETE CASCADE)
// handle memory_links, memory_entities, and triples; the FTS trigger
// handles memories_fts.
func (s *Store) DeleteMemory(ctx context.Context, tx DBTX, id int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}

// ListRecent returns up to limit memories ordered by recency, optionally
// scoped to a project.
func (s *Store) ListRecent(ctx context.Context, tx DBTX, project *string, limit int) ([]*Memory, error) {
	var rows *sql.Rows
	var err error
	if project == nil {
		rows, err = tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project = ? ORDER BY created_at DESC LIMIT ?`, *project, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListHighPriority returns up to limit memories ordered by salience.
func (s *Store) ListHighPriority(ctx context.Context, tx DBTX, project *string, limit int) ([]*Memory, error) {
	var rows *sql.Rows
	var err error
	if project == nil {
		rows, err = tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY salience DESC, last_accessed DESC LIMIT ?`, limit)
	} else {
		rows, err = tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project = ? ORDER BY salience DESC, last_accessed DESC LIMIT ?`, *project, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListByType returns up to limit memories of the given type.
func (s *Store) ListByType(ctx context.Context, tx DBTX, t MemoryType, limit int) ([]*Memory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE type = ? ORDER BY last_accessed DESC LIMIT ?`, string(t), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListByProject returns every memory scoped to project (no limit — callers page).
func (s *Store) ListByProject(ctx context.Context, tx DBTX, project string) ([]*Memory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE project = ? ORDER BY created_at DESC`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListRecentlyAccessed returns the N most-recently-accessed memories,
// the light consolidation tick's capped working window.
func (s *Store) ListRecentlyAccessed(ctx context.Context, tx DBTX, limit int) ([]*Memory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY last_accessed DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListByTypeUnderThreshold returns rows of type t whose decayed_score
// is below threshold, the eviction sweep's candidate set.
func (s *Store) ListByTypeUnderThreshold(ctx context.Context, tx DBTX, t MemoryType, threshold float64) ([]*Memory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE type = ? AND decayed_score < ?`, string(t), threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListByTypeAboveSalience returns STM rows eligible for promotion.
func (s *Store) ListByTypeAboveSalience(ctx context.Context, tx DBTX, t MemoryType, threshold float64) ([]*Memory, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE type = ? AND salience >= ?`, string(t), threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
