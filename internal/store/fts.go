package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// FTSCandidate is one row returned from the lexical pass, carrying the
// raw FTS5 rank alongside the full memory so the fusion step never
// needs a second round-trip.
type FTSCandidate struct {
	Memory *Memory
	Rank   float64
}

// QuoteFTSQuery escapes FTS5 operator characters by double-quoting
// each token, then joins tokens with OR so any term may match, and
// appends a prefix wildcard to the last token for type-ahead feel.
// FTS5's MATCH grammar treats `- : * ^ ( ) "` as operators; quoting a
// token makes it a literal string match regardless of their presence.
func QuoteFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for i, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		if i == len(fields)-1 {
			quoted = append(quoted, `"`+f+`"*`)
		} else {
			quoted = append(quoted, `"`+f+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}

// SearchFTS runs a MATCH query against memories_fts and returns up to
// limit candidate rows with their rank, joined back to the full
// memories row. A malformed query (should not happen once quoted) is
// reported as an error for the caller to fall back on.
func (s *Store) SearchFTS(ctx context.Context, tx DBTX, ftsQuery string, limit int) ([]FTSCandidate, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+memoryColumnsQualified+`, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FTSCandidate
	for rows.Next() {
		m, rank, err := scanMemoryWithRank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, FTSCandidate{Memory: m, Rank: rank})
	}
	return out, rows.Err()
}

func scanMemoryWithRank(rows *sql.Rows) (*Memory, float64, error) {
	var m Memory
	var project sql.NullString
	var scope, tagsJSON, metaJSON string
	var transferable int
	var lastAccessed, createdAt int64
	var embedding []byte
	var rank float64

	if err := rows.Scan(
		&m.ID, &m.Type, &m.Category, &m.Title, &m.Content, &project, &scope, &transferable,
		&m.AccessCount, &lastAccessed, &createdAt, &m.Salience, &m.DecayedScore,
		&tagsJSON, &metaJSON, &embedding, &rank,
	); err != nil {
		return nil, 0, err
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

	return &m, rank, nil
}
