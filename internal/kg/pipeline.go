package kg

import (
	"context"

	"github.com/cortexmem/cortex/internal/store"
)

// Pipeline runs extraction and resolution for one memory: extract
// candidate entities/triples from its text, resolve each entity
// against the store, upsert the mention + triple rows, and bump
// memory_count once per distinct entity.
type Pipeline struct {
	st       *store.Store
	resolver *Resolver
}

// NewPipeline builds a Pipeline over the given store.
func NewPipeline(st *store.Store) *Pipeline {
	return &Pipeline{st: st, resolver: NewResolver(st)}
}

// Process extracts and resolves entities/triples for memoryID's text,
// within the given transaction (the caller — memstore.Add/Update —
// owns the surrounding transaction boundary).
func (p *Pipeline) Process(ctx context.Context, tx store.DBTX, memoryID int64, title, content string, cat store.Category) error {
	result := Extract(title, content, cat)

	resolved := make(map[string]*store.Entity, len(result.Entities))
	for _, e := range result.Entities {
		entity, err := p.resolver.Resolve(ctx, tx, e.Name, e.Type)
		if err != nil {
			return err
		}
		resolved[normalizeKey(e.Name)] = entity

		already, err := p.st.HasMemoryEntity(ctx, tx, memoryID, entity.ID)
		if err != nil {
			return err
		}
		if err := p.st.UpsertMemoryEntity(ctx, tx, memoryID, entity.ID, store.RoleMention); err != nil {
			return err
		}
		if !already {
			if err := p.st.IncrementMemoryCount(ctx, tx, entity.ID, 1); err != nil {
				return err
			}
		}
	}

	for _, t := range result.Triples {
		subj, ok := resolved[normalizeKey(t.Subject)]
		if !ok {
			continue
		}
		obj, ok := resolved[normalizeKey(t.Object)]
		if !ok {
			continue
		}
		if err := p.st.UpsertTriple(ctx, tx, &store.Triple{
			SubjectID: subj.ID, Predicate: t.Predicate, ObjectID: obj.ID, SourceMemoryID: memoryID,
		}); err != nil {
			return err
		}
	}

	return nil
}

func normalizeKey(name string) string {
	return Canonicalize(name)
}
