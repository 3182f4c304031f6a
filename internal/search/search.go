// Package search implements hybrid retrieval: a lexical (FTS5) pass
// and a vector (cosine) pass fused with decay/priority/tag signals
// into one ranked result list.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/cortexmem/cortex/internal/embedding"
	"github.com/cortexmem/cortex/internal/salience"
	"github.com/cortexmem/cortex/internal/store"
)

// Fusion weights for the five ranking signals, per the engine's
// hybrid-scoring contract. Kept as tunable package vars rather than
// untyped constants since a future config surface may expose them.
var (
	WeightFTS      = 0.30
	WeightVector   = 0.30
	WeightDecayed  = 0.25
	WeightPriority = 0.10
	WeightTagBoost = 0.05
)

// DecayedScoreFloor is the post-filter threshold: candidates decayed
// below this are dropped from results unless IncludeDecayed is set,
// matching salience.EvictionFloor.
const DecayedScoreFloor = salience.EvictionFloor

// VectorScoreFloor is the minimum cosine similarity a candidate must
// clear to take part in the vector-pass score at all.
const VectorScoreFloor = 0.3

// Filter narrows the candidate set before scoring.
type Filter struct {
	Project  *string
	Type     *store.MemoryType
	Category *store.Category
	Tags     []string

	// MinSalience drops candidates whose raw salience falls below it.
	MinSalience *float64
	// IncludeDecayed disables the DecayedScoreFloor post-filter,
	// surfacing memories that have decayed below eviction threshold.
	IncludeDecayed bool
	// IncludeGlobal controls whether global-scope memories are mixed
	// into a project-scoped search. Defaults to true (nil) so existing
	// callers keep today's behavior.
	IncludeGlobal *bool
}

func (f Filter) includeGlobal() bool {
	return f.IncludeGlobal == nil || *f.IncludeGlobal
}

// Contradiction names a memory that contradicts a result, carrying
// enough of its identity to render without a follow-up fetch.
type Contradiction struct {
	MemoryID int64   `json:"memoryId"`
	Title    string  `json:"title"`
	Strength float64 `json:"strength"`
}

// Result is one ranked hit plus the signals that produced its score.
type Result struct {
	Memory       *store.Memory
	Score        float64
	FTSScore     float64
	VectorScore  float64
	DecayedScore float64
	Priority     float64
	TagBoost     float64
	Contradicted bool
	Contradicts  []Contradiction
}

// Engine runs queries against a store and embedding pipeline.
type Engine struct {
	st       *store.Store
	pipeline *embedding.Pipeline
}

// New builds a search Engine.
func New(st *store.Store, pipeline *embedding.Pipeline) *Engine {
	return &Engine{st: st, pipeline: pipeline}
}

// Search runs the hybrid query: FTS candidates when query is
// non-empty (else salience/recency ordering), a vector pass scored
// via cosine similarity against the query embedding, fused with
// decay/priority/tag signals, contradiction-annotated, floor-filtered,
// and sorted with a deterministic tie-break.
func (e *Engine) Search(ctx context.Context, query string, f Filter, limit int) ([]Result, error) {
	now := e.st.Clock().Now()
	var results []Result

	err := e.st.WithTx(ctx, func(tx store.DBTX) error {
		candidates, ftsScores, err := e.candidateSet(ctx, tx, query, f, limit)
		if err != nil {
			return err
		}

		var queryVec []float32
		if query != "" && e.pipeline != nil {
			queryVec, _ = e.pipeline.Embed(ctx, query)
		}
		vectorScores := e.vectorPass(candidates, queryVec, limit)

		linksByMemory, err := e.contradictionIndex(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range candidates {
			if !passesFilter(m, f) {
				continue
			}
			if f.MinSalience != nil && m.Salience < *f.MinSalience {
				continue
			}

			decayed := salience.Decay(m.Salience, m.Type, now.Sub(m.LastAccessed).Hours())
			priority := salience.Priority(decayed, m.Salience, m.AccessCount, m.Type)

			ftsScore := ftsScores[m.ID]
			vectorScore := vectorScores[m.ID]
			tagBoost := tagCategoryBoost(m, f)

			score := WeightFTS*ftsScore + WeightVector*vectorScore +
				WeightDecayed*decayed + WeightPriority*priority + WeightTagBoost*tagBoost

			contradicts := linksByMemory[m.ID]

			if !f.IncludeDecayed && decayed < DecayedScoreFloor {
				continue
			}

			results = append(results, Result{
				Memory: m, Score: score, FTSScore: ftsScore, VectorScore: vectorScore,
				DecayedScore: decayed, Priority: priority, TagBoost: tagBoost,
				Contradicted: len(contradicts) > 0, Contradicts: contradicts,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Salience != b.Memory.Salience {
			return a.Memory.Salience > b.Memory.Salience
		}
		if !a.Memory.LastAccessed.Equal(b.Memory.LastAccessed) {
			return a.Memory.LastAccessed.After(b.Memory.LastAccessed)
		}
		return a.Memory.ID < b.Memory.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// candidateSet returns the memories to score plus their normalized
// FTS rank (0 for memories outside the FTS pass, e.g. when query is
// empty).
func (e *Engine) candidateSet(ctx context.Context, tx store.DBTX, query string, f Filter, limit int) ([]*store.Memory, map[int64]float64, error) {
	ftsScores := make(map[int64]float64)

	if strings.TrimSpace(query) == "" {
		mems, err := e.st.ListHighPriority(ctx, tx, f.Project, candidatePoolSize(limit))
		return mems, ftsScores, err
	}

	ftsQuery := store.QuoteFTSQuery(query)
	if ftsQuery == "" {
		mems, err := e.st.ListHighPriority(ctx, tx, f.Project, candidatePoolSize(limit))
		return mems, ftsScores, err
	}

	candidates, err := e.st.SearchFTS(ctx, tx, ftsQuery, candidatePoolSize(limit))
	if err != nil {
		return nil, nil, err
	}

	mems := make([]*store.Memory, 0, len(candidates))
	var minRank, maxRank float64
	for i, c := range candidates {
		mems = append(mems, c.Memory)
		if i == 0 || c.Rank < minRank {
			minRank = c.Rank
		}
		if i == 0 || c.Rank > maxRank {
			maxRank = c.Rank
		}
	}
	// bm25 returns lower-is-better; invert and min-max normalize to [0,1].
	spread := maxRank - minRank
	for _, c := range candidates {
		if spread == 0 {
			ftsScores[c.Memory.ID] = 1
			continue
		}
		ftsScores[c.Memory.ID] = 1 - (c.Rank-minRank)/spread
	}

	return mems, ftsScores, nil
}

func candidatePoolSize(limit int) int {
	pool := limit * 3
	if pool < 60 {
		pool = 60
	}
	return pool
}

// vectorPoolSize caps how many candidates the vector pass scores, so a
// handful of high-cosine hits don't get diluted into an entire FTS
// candidate set.
func vectorPoolSize(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit * 2
}

// vectorPass scores every embedded candidate against queryVec,
// discards anything below VectorScoreFloor, and keeps only the
// top vectorPoolSize(limit) scores.
func (e *Engine) vectorPass(candidates []*store.Memory, queryVec []float32, limit int) map[int64]float64 {
	scores := make(map[int64]float64)
	if len(queryVec) == 0 {
		return scores
	}

	type scored struct {
		id    int64
		score float64
	}
	var hits []scored
	for _, m := range candidates {
		if len(m.Embedding) == 0 {
			continue
		}
		s := embedding.Cosine(queryVec, m.Embedding)
		if s < VectorScoreFloor {
			continue
		}
		hits = append(hits, scored{id: m.ID, score: s})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	pool := vectorPoolSize(limit)
	if pool < len(hits) {
		hits = hits[:pool]
	}
	for _, h := range hits {
		scores[h.id] = h.score
	}
	return scores
}

func passesFilter(m *store.Memory, f Filter) bool {
	if f.Type != nil && m.Type != *f.Type {
		return false
	}
	if f.Category != nil && m.Category != *f.Category {
		return false
	}
	if f.Project != nil {
		isGlobal := m.Scope == store.ScopeGlobal
		if isGlobal && !f.includeGlobal() {
			return false
		}
		if !isGlobal && (m.Project == nil || *m.Project != *f.Project) {
			return false
		}
	}
	if len(f.Tags) > 0 {
		set := make(map[string]bool, len(m.Tags))
		for _, t := range m.Tags {
			set[strings.ToLower(t)] = true
		}
		matched := false
		for _, t := range f.Tags {
			if set[strings.ToLower(t)] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// tagCategoryBoost rewards a candidate for matching the filter's
// requested tags/category beyond the hard filter pass, so near-misses
// still rank above completely unrelated memories.
func tagCategoryBoost(m *store.Memory, f Filter) float64 {
	boost := 0.0
	if f.Category != nil && m.Category == *f.Category {
		boost += 0.5
	}
	if len(f.Tags) > 0 {
		set := make(map[string]bool, len(m.Tags))
		for _, t := range m.Tags {
			set[strings.ToLower(t)] = true
		}
		hits := 0
		for _, t := range f.Tags {
			if set[strings.ToLower(t)] {
				hits++
			}
		}
		boost += 0.5 * float64(hits) / float64(len(f.Tags))
	}
	if boost > 1 {
		boost = 1
	}
	return boost
}

// contradictionIndex maps a memory id to the memories it contradicts
// (or is contradicted by), via "contradicts"-relationship links, so
// Search can flag results without a per-candidate query.
func (e *Engine) contradictionIndex(ctx context.Context, tx store.DBTX) (map[int64][]Contradiction, error) {
	links, err := e.st.ListAllLinks(ctx, tx)
	if err != nil {
		return nil, err
	}

	titles := make(map[int64]string)
	titleFor := func(id int64) (string, error) {
		if t, ok := titles[id]; ok {
			return t, nil
		}
		m, err := e.st.GetMemory(ctx, tx, id)
		if err != nil {
			return "", err
		}
		t := ""
		if m != nil {
			t = m.Title
		}
		titles[id] = t
		return t, nil
	}

	out := make(map[int64][]Contradiction)
	for _, l := range links {
		if l.Relationship != "contradicts" {
			continue
		}
		sourceTitle, err := titleFor(l.SourceID)
		if err != nil {
			return nil, err
		}
		targetTitle, err := titleFor(l.TargetID)
		if err != nil {
			return nil, err
		}
		out[l.SourceID] = append(out[l.SourceID], Contradiction{MemoryID: l.TargetID, Title: targetTitle, Strength: l.Strength})
		out[l.TargetID] = append(out[l.TargetID], Contradiction{MemoryID: l.SourceID, Title: sourceTitle, Strength: l.Strength})
	}
	return out, nil
}
