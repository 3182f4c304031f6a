package kg

import (
	"context"

	"github.com/cortexmem/cortex/internal/store"
)

// DefaultDepthCap bounds BFS traversal depth for graph_query/graph_explain.
const DefaultDepthCap = 4

// Neighbor is one hop discovered during a graph traversal.
type Neighbor struct {
	Entity    *store.Entity
	Predicate string
	Depth     int
}

// Query performs a breadth-first traversal from the named entity out
// to depth (0 = DefaultDepthCap), optionally restricted to a set of
// predicates. Entities form a directed multigraph over stable ids, so
// cycles are natural; a visited-set keeps BFS terminating.
func Query(ctx context.Context, st *store.Store, tx store.DBTX, startID int64, depth int, predicates []string) ([]Neighbor, error) {
	if depth <= 0 || depth > DefaultDepthCap {
		depth = DefaultDepthCap
	}
	allowed := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		allowed[p] = true
	}

	visited := map[int64]bool{startID: true}
	frontier := []int64{startID}
	var out []Neighbor

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []int64
		for _, id := range frontier {
			triples, err := st.TriplesForEntity(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			for _, t := range triples {
				if len(allowed) > 0 && !allowed[t.Predicate] {
					continue
				}
				neighborID := t.ObjectID
				if t.ObjectID == id {
					neighborID = t.SubjectID
				}
				if visited[neighborID] {
					continue
				}
				visited[neighborID] = true
				entity, err := st.GetEntity(ctx, tx, neighborID)
				if err != nil {
					return nil, err
				}
				if entity == nil {
					continue
				}
				out = append(out, Neighbor{Entity: entity, Predicate: t.Predicate, Depth: d})
				next = append(next, neighborID)
			}
		}
		frontier = next
	}

	return out, nil
}

// hop records how a BFS frontier node was first reached.
type hop struct {
	from      int64
	predicate string
	hasParent bool
}

// Explain finds the shortest predicate path from one entity to
// another, up to maxDepth hops, via BFS with parent-pointer
// backtracking.
func Explain(ctx context.Context, st *store.Store, tx store.DBTX, fromID, toID int64, maxDepth int) ([]Neighbor, bool, error) {
	if maxDepth <= 0 || maxDepth > DefaultDepthCap {
		maxDepth = DefaultDepthCap
	}
	if fromID == toID {
		return nil, true, nil
	}

	parents := map[int64]hop{fromID: {}}
	frontier := []int64{fromID}

	for d := 1; d <= maxDepth && len(frontier) > 0; d++ {
		var next []int64
		for _, id := range frontier {
			triples, err := st.TriplesForEntity(ctx, tx, id)
			if err != nil {
				return nil, false, err
			}
			for _, t := range triples {
				neighborID := t.ObjectID
				if t.ObjectID == id {
					neighborID = t.SubjectID
				}
				if _, seen := parents[neighborID]; seen {
					continue
				}
				parents[neighborID] = hop{from: id, predicate: t.Predicate, hasParent: true}
				if neighborID == toID {
					path, err := backtrack(ctx, st, tx, parents, toID)
					return path, true, err
				}
				next = append(next, neighborID)
			}
		}
		frontier = next
	}

	return nil, false, nil
}

// backtrack walks parent pointers from toID back to the BFS root and
// returns the path in root-to-target order.
func backtrack(ctx context.Context, st *store.Store, tx store.DBTX, parents map[int64]hop, toID int64) ([]Neighbor, error) {
	var path []Neighbor
	cur := toID
	depth := 0
	for {
		h, ok := parents[cur]
		if !ok || !h.hasParent {
			break
		}
		entity, err := st.GetEntity(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			path = append([]Neighbor{{Entity: entity, Predicate: h.predicate, Depth: depth}}, path...)
		}
		cur = h.from
		depth++
	}
	return path, nil
}
