package engine

import (
	"context"

	"github.com/cortexmem/cortex/internal/search"
	"github.com/cortexmem/cortex/internal/store"
)

// Stats summarizes the store for the /api/stats endpoint and the
// WebSocket initial_state frame.
type Stats struct {
	TotalMemories int64                    `json:"total_memories"`
	ByType        map[store.MemoryType]int64 `json:"by_type"`
	ByCategory    map[store.Category]int64   `json:"by_category"`
	AvgSalience   float64                  `json:"avg_salience"`
	SizeBytes     int64                    `json:"size_bytes"`
	WarnThreshold bool                     `json:"warn_threshold"`
	Paused        bool                     `json:"paused"`
	UptimeHuman   string                   `json:"uptime"`
}

// Stats computes store-wide statistics, optionally scoped to project.
func (e *Engine) Stats(ctx context.Context, project *string) (*Stats, error) {
	s := &Stats{
		ByType:     make(map[store.MemoryType]int64),
		ByCategory: make(map[store.Category]int64),
	}

	var mems []*store.Memory
	err := e.Store.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		if project != nil {
			mems, err = e.Store.ListByProject(ctx, tx, *project)
		} else {
			mems, err = e.Store.ListRecent(ctx, tx, nil, 1<<20)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	var salienceSum float64
	for _, m := range mems {
		s.TotalMemories++
		s.ByType[m.Type]++
		s.ByCategory[m.Category]++
		salienceSum += m.Salience
	}
	if s.TotalMemories > 0 {
		s.AvgSalience = salienceSum / float64(s.TotalMemories)
	}

	size, err := e.Store.SizeInfo(ctx)
	if err != nil {
		return nil, err
	}
	s.SizeBytes = size
	warn, err := e.Store.IsWarn(ctx)
	if err != nil {
		return nil, err
	}
	s.WarnThreshold = warn
	s.Paused = e.Control.Paused()
	s.UptimeHuman = e.Control.UptimeHuman()

	return s, nil
}

// Recent returns the most recently created memories for project (nil
// for every project).
func (e *Engine) Recent(ctx context.Context, project *string, limit int) ([]*store.Memory, error) {
	return e.Memstore.Recent(ctx, project, limit)
}

// Important returns the highest-salience memories for project.
func (e *Engine) Important(ctx context.Context, project *string, limit int) ([]*store.Memory, error) {
	return e.Memstore.HighPriority(ctx, project, limit)
}

// ByCategory returns memories of a single category within project.
func (e *Engine) ByCategory(ctx context.Context, project *string, cat store.Category, limit int) ([]*store.Memory, error) {
	var out []*store.Memory
	err := e.Store.WithTx(ctx, func(tx store.DBTX) error {
		var mems []*store.Memory
		var err error
		if project != nil {
			mems, err = e.Store.ListByProject(ctx, tx, *project)
		} else {
			mems, err = e.Store.ListRecent(ctx, tx, nil, 1<<20)
		}
		if err != nil {
			return err
		}
		for _, m := range mems {
			if m.Category == cat {
				out = append(out, m)
			}
		}
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

// ContextSummary builds the human-readable project context brief: top
// architecture/preference/pattern memories plus recent activity,
// the payload behind get_context / context_summary.
type ContextSummary struct {
	Project       string          `json:"project"`
	Architecture  []*store.Memory `json:"architecture"`
	Preferences   []*store.Memory `json:"preferences"`
	Patterns      []*store.Memory `json:"patterns"`
	RecentErrors  []*store.Memory `json:"recent_errors"`
	OpenTodos     []*store.Memory `json:"open_todos"`
}

// ContextSummary assembles the per-category highlight sets a client
// uses to prime its working context for project.
func (e *Engine) ContextSummary(ctx context.Context, project *string) (*ContextSummary, error) {
	const perSection = 5
	arch, err := e.ByCategory(ctx, project, store.CategoryArchitecture, perSection)
	if err != nil {
		return nil, err
	}
	prefs, err := e.ByCategory(ctx, project, store.CategoryPreference, perSection)
	if err != nil {
		return nil, err
	}
	patterns, err := e.ByCategory(ctx, project, store.CategoryPattern, perSection)
	if err != nil {
		return nil, err
	}
	errors, err := e.ByCategory(ctx, project, store.CategoryError, perSection)
	if err != nil {
		return nil, err
	}
	todos, err := e.ByCategory(ctx, project, store.CategoryTodo, perSection)
	if err != nil {
		return nil, err
	}

	proj := ""
	if project != nil {
		proj = *project
	}
	return &ContextSummary{
		Project: proj, Architecture: arch, Preferences: prefs,
		Patterns: patterns, RecentErrors: errors, OpenTodos: todos,
	}, nil
}

// Suggestions runs a hybrid search for q and returns the top results'
// memories, for the suggestions(q, limit) surface.
func (e *Engine) Suggestions(ctx context.Context, q string, limit int) ([]*store.Memory, error) {
	results, err := e.Search.Search(ctx, q, search.Filter{Project: e.ProjectPtr()}, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*store.Memory, 0, len(results))
	for _, r := range results {
		out = append(out, r.Memory)
	}
	return out, nil
}
