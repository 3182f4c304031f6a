// Package memstore is the business-rule layer over the raw store:
// inference (category/salience/type/scope) on add, near-duplicate
// dedup, content truncation, event-bus publishing, knowledge-graph
// extraction, and the background embedding queue.
package memstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexmem/cortex/internal/clock"
	"github.com/cortexmem/cortex/internal/control"
	"github.com/cortexmem/cortex/internal/errs"
	"github.com/cortexmem/cortex/internal/eventbus"
	"github.com/cortexmem/cortex/internal/kg"
	"github.com/cortexmem/cortex/internal/salience"
	"github.com/cortexmem/cortex/internal/store"
)

// DuplicateRelevance is the content-similarity threshold (see relevance)
// at or above which an Add call whose title and project match an
// existing memory is folded into it instead of creating a new one.
const DuplicateRelevance = 0.9

// Store is the memstore façade: every memory mutation an API/MCP
// handler performs goes through here, never directly against
// *store.Store.
type Store struct {
	st     *store.Store
	bus    *eventbus.Bus
	kg     *kg.Pipeline
	clock  clock.Clock
	embedQ *EmbedQueue
	ctrl   *control.State
}

// New builds a memstore.Store. embedQ may be nil (embeddings simply
// never get queued — used by tests that don't care about vectors).
// ctrl may be nil (pause gating is then a no-op — used by tests that
// don't exercise the control surface).
func New(st *store.Store, bus *eventbus.Bus, embedQ *EmbedQueue, ctrl *control.State) *Store {
	return &Store{
		st:     st,
		bus:    bus,
		kg:     kg.NewPipeline(st),
		clock:  st.Clock(),
		embedQ: embedQ,
		ctrl:   ctrl,
	}
}

// paused reports whether mutation is currently forbidden.
func (s *Store) paused() bool {
	return s.ctrl != nil && s.ctrl.Paused()
}

// AddRequest is the caller-supplied subset of a new memory; category,
// salience, scope and tags are inferred when left unset. Type defaults
// to short_term when unset, whatever the salience; it is not derived
// from the content.
type AddRequest struct {
	Title        string
	Content      string
	Category     *store.Category
	Project      *string
	Scope        *store.Scope
	Type         *store.MemoryType
	Tags         []string
	Transferable *bool
	Metadata     map[string]string
}

// Add validates, infers missing fields, truncates oversized content,
// folds near-duplicates into the existing row, inserts the memory,
// runs KG extraction, and publishes memory_created (or
// memory_updated, on the duplicate-fold path).
func (s *Store) Add(ctx context.Context, req AddRequest) (*store.Memory, error) {
	if s.paused() {
		return nil, errs.New(errs.Paused, "memory store is paused; add() refused")
	}
	if blocked, size, err := s.st.IsBlocked(ctx); err != nil {
		return nil, err
	} else if blocked {
		return nil, errs.New(errs.OverCapacity, fmt.Sprintf("store has reached its hard cap (%d bytes); writes are refused until it shrinks", size))
	}

	title := strings.TrimSpace(req.Title)
	content := req.Content
	if title == "" {
		return nil, errs.New(errs.Validation, "title must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.New(errs.Validation, "content must not be empty")
	}

	truncated := false
	if len(content) > store.MaxContentBytes {
		content = content[:store.MaxContentBytes] + store.TruncationMarker
		truncated = true
	}

	cat := store.CategoryNote
	if req.Category != nil {
		if !store.ValidCategories[*req.Category] {
			return nil, errs.New(errs.Validation, "unknown category: "+string(*req.Category))
		}
		cat = *req.Category
	} else {
		cat = salience.SuggestCategory(title, content)
	}

	sal := salience.Calculate(title, content)

	tags := req.Tags
	if tags == nil {
		tags = salience.ExtractTags(title, content, 8)
	}

	scope := store.ScopeProject
	if req.Scope != nil {
		scope = *req.Scope
	} else if salience.HasGlobalMarker(title+" "+content) || salience.HasGlobalMarker(strings.Join(tags, " ")) || isGlobalCategory(cat) {
		scope = store.ScopeGlobal
	}

	typ := store.ShortTerm
	if req.Type != nil {
		typ = *req.Type
	}

	transferable := scope == store.ScopeGlobal
	if req.Transferable != nil {
		transferable = *req.Transferable
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if truncated {
		metadata["truncated"] = "true"
	}

	now := s.clock.Now()
	var result *store.Memory
	wasDuplicate := false

	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		existing, err := s.st.FindByTitleProject(ctx, tx, title, req.Project)
		if err != nil {
			return err
		}
		if existing != nil && relevance(existing.Content, content) >= DuplicateRelevance {
			wasDuplicate = true
			patch := store.MemoryPatch{
				Content:  &content,
				Category: &cat,
				Tags:     tags,
				Salience: &sal,
				Metadata: metadata,
			}
			if err := s.st.UpdateMemory(ctx, tx, existing.ID, patch, now); err != nil {
				return err
			}
			result, err = s.st.GetMemory(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			return s.kg.Process(ctx, tx, result.ID, result.Title, result.Content, result.Category)
		}

		m := &store.Memory{
			Type: typ, Category: cat, Title: title, Content: content,
			Project: req.Project, Scope: scope, Transferable: transferable,
			Tags: tags, Salience: sal, DecayedScore: sal,
			AccessCount: 0, LastAccessed: now, CreatedAt: now, Metadata: metadata,
		}
		if _, err := s.st.InsertMemory(ctx, tx, m); err != nil {
			return err
		}
		result = m
		return s.kg.Process(ctx, tx, m.ID, m.Title, m.Content, m.Category)
	})
	if err != nil {
		return nil, err
	}

	if s.embedQ != nil {
		s.embedQ.Enqueue(result.ID, result.Title+" "+result.Content)
	}

	if wasDuplicate {
		s.bus.Publish(eventbus.MemoryUpdated, result)
	} else {
		s.bus.Publish(eventbus.MemoryCreated, result)
	}
	return result, nil
}

// isGlobalCategory reports whether a category implies cross-project
// relevance on its own, independent of any marker text.
func isGlobalCategory(cat store.Category) bool {
	switch cat {
	case store.CategoryPattern, store.CategoryPreference, store.CategoryLearning:
		return true
	default:
		return false
	}
}

// relevance is a coarse containment-based similarity used only for
// the duplicate-fold check: 1.0 if contents are identical, scaled
// down by the proportion of non-shared length otherwise.
func relevance(a, b string) float64 {
	if a == b {
		return 1.0
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if shorter == "" {
		return 0
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return float64(len(shorter)) / float64(len(longer))
}

// Get fetches a memory by id and, if touch is true, applies the
// reinforcement-on-access dynamics (SetAccess + memory_accessed event).
func (s *Store) Get(ctx context.Context, id int64, touch bool) (*store.Memory, error) {
	var m *store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		m, err = s.st.GetMemory(ctx, tx, id)
		if err != nil || m == nil {
			return err
		}
		if touch {
			newSalience := salience.Reinforce(m.Salience, m.Type, m.AccessCount)
			now := s.clock.Now()
			if err := s.st.SetAccess(ctx, tx, id, newSalience, now); err != nil {
				return err
			}
			m.AccessCount++
			m.Salience = newSalience
			m.LastAccessed = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errs.New(errs.NotFound, "memory not found")
	}
	if touch {
		s.bus.Publish(eventbus.MemoryAccessed, m)
	}
	return m, nil
}

// UpdateRequest carries the subset of fields a caller wants to change;
// nil/empty fields are left untouched.
type UpdateRequest struct {
	Title        *string
	Content      *string
	Category     *store.Category
	Type         *store.MemoryType
	Scope        *store.Scope
	Transferable *bool
	Tags         []string
	Salience     *float64
	Metadata     map[string]string
}

// Update applies a partial update, re-runs KG extraction when the
// content or title changed, re-queues embedding recomputation, and
// publishes memory_updated.
func (s *Store) Update(ctx context.Context, id int64, req UpdateRequest) (*store.Memory, error) {
	if req.Category != nil && !store.ValidCategories[*req.Category] {
		return nil, errs.New(errs.Validation, "unknown category: "+string(*req.Category))
	}

	patch := store.MemoryPatch{
		Title: req.Title, Content: req.Content, Category: req.Category,
		Type: req.Type, Scope: req.Scope, Transferable: req.Transferable,
		Tags: req.Tags, Salience: req.Salience, Metadata: req.Metadata,
	}

	var result *store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		existing, err := s.st.GetMemory(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return errs.New(errs.NotFound, "memory not found")
		}
		if err := s.st.UpdateMemory(ctx, tx, id, patch, s.clock.Now()); err != nil {
			return err
		}
		result, err = s.st.GetMemory(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Title != nil || req.Content != nil {
			return s.kg.Process(ctx, tx, result.ID, result.Title, result.Content, result.Category)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.embedQ != nil && (req.Title != nil || req.Content != nil) {
		s.embedQ.Enqueue(result.ID, result.Title+" "+result.Content)
	}

	s.bus.Publish(eventbus.MemoryUpdated, result)
	return result, nil
}

// Delete removes a memory and publishes memory_deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		existing, err := s.st.GetMemory(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return errs.New(errs.NotFound, "memory not found")
		}
		return s.st.DeleteMemory(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.MemoryDeleted, map[string]int64{"id": id})
	return nil
}

// Recent returns the most-recently-created memories, optionally
// scoped to a project.
func (s *Store) Recent(ctx context.Context, project *string, limit int) ([]*store.Memory, error) {
	var out []*store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		out, err = s.st.ListRecent(ctx, tx, project, limit)
		return err
	})
	return out, err
}

// HighPriority returns the highest-salience memories, optionally
// scoped to a project.
func (s *Store) HighPriority(ctx context.Context, project *string, limit int) ([]*store.Memory, error) {
	var out []*store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		out, err = s.st.ListHighPriority(ctx, tx, project, limit)
		return err
	})
	return out, err
}

// ByType returns memories of the given tier.
func (s *Store) ByType(ctx context.Context, t store.MemoryType, limit int) ([]*store.Memory, error) {
	var out []*store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		out, err = s.st.ListByType(ctx, tx, t, limit)
		return err
	})
	return out, err
}

// ProjectMemories returns every memory scoped to project.
func (s *Store) ProjectMemories(ctx context.Context, project string) ([]*store.Memory, error) {
	var out []*store.Memory
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		out, err = s.st.ListByProject(ctx, tx, project)
		return err
	})
	return out, err
}

// UpdateDecayScores recomputes and persists decayed_score for every
// memory in the store, reflecting the time elapsed since each one was
// last accessed. Returns the number of rows touched.
func (s *Store) UpdateDecayScores(ctx context.Context) (int, error) {
	now := s.clock.Now()
	touched := 0
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		mems, err := s.st.ListRecent(ctx, tx, nil, 1<<20)
		if err != nil {
			return err
		}
		for _, m := range mems {
			decayed := salience.Decay(m.Salience, m.Type, now.Sub(m.LastAccessed).Hours())
			if err := s.st.SetDecayedScore(ctx, tx, m.ID, decayed); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	return touched, err
}

// CleanupDecayed deletes every short-term memory whose decayed_score
// has fallen below threshold, publishing memory_deleted for each.
// Returns the number of rows deleted.
func (s *Store) CleanupDecayed(ctx context.Context, threshold float64) (int, error) {
	var ids []int64
	err := s.st.WithTx(ctx, func(tx store.DBTX) error {
		mems, err := s.st.ListByTypeUnderThreshold(ctx, tx, store.ShortTerm, threshold)
		if err != nil {
			return err
		}
		for _, m := range mems {
			if err := s.st.DeleteMemory(ctx, tx, m.ID); err != nil {
				return err
			}
			ids = append(ids, m.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.bus.Publish(eventbus.MemoryDeleted, map[string]int64{"id": id})
	}
	return len(ids), nil
}
