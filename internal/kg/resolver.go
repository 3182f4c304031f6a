package kg

import (
	"context"
	"strings"

	"github.com/cortexmem/cortex/internal/store"
)

// FuzzyMinNameLen is the minimum candidate-name length before the
// fuzzy (Levenshtein) resolver step is attempted at all.
const FuzzyMinNameLen = 5

// FuzzyMaxDistance is the maximum edit distance considered a match.
const FuzzyMaxDistance = 2

// FuzzyLenWindow bounds candidate length around the incoming name.
const FuzzyLenWindow = 2

// Resolver implements the entity-matching algorithm: exact
// (name,type) -> case-insensitive name -> alias set -> fuzzy
// Levenshtein -> insert new. It stops at the first hit.
type Resolver struct {
	st *store.Store
}

// NewResolver builds a Resolver over the given store.
func NewResolver(st *store.Store) *Resolver {
	return &Resolver{st: st}
}

// Resolve finds or creates the entity referred to by (name, typ),
// applying the five-step match order and appending incoming casing as
// an alias on a case-insensitive or fuzzy hit.
func (r *Resolver) Resolve(ctx context.Context, tx store.DBTX, name, typ string) (*store.Entity, error) {
	// 1. Exact (name, type) match.
	if e, err := r.st.GetEntityByNameType(ctx, tx, name, typ); err != nil {
		return nil, err
	} else if e != nil {
		return e, nil
	}

	// 2. Case-insensitive name match.
	if e, err := r.st.GetEntityByNameCI(ctx, tx, name); err != nil {
		return nil, err
	} else if e != nil {
		if e.Name != name {
			if err := r.st.AppendAlias(ctx, tx, e.ID, name); err != nil {
				return nil, err
			}
			return r.st.GetEntity(ctx, tx, e.ID)
		}
		return e, nil
	}

	// 3. Alias-set match.
	if e, err := r.matchAlias(ctx, tx, name); err != nil {
		return nil, err
	} else if e != nil {
		if err := r.st.AppendAlias(ctx, tx, e.ID, name); err != nil {
			return nil, err
		}
		return r.st.GetEntity(ctx, tx, e.ID)
	}

	// 4. Fuzzy (Levenshtein <= 2) match for names longer than 5 chars.
	if len(name) > FuzzyMinNameLen {
		if e, err := r.matchFuzzy(ctx, tx, name); err != nil {
			return nil, err
		} else if e != nil {
			if err := r.st.AppendAlias(ctx, tx, e.ID, name); err != nil {
				return nil, err
			}
			return r.st.GetEntity(ctx, tx, e.ID)
		}
	}

	// 5. Insert a new entity.
	return r.st.InsertEntity(ctx, tx, name, typ)
}

func (r *Resolver) matchAlias(ctx context.Context, tx store.DBTX, name string) (*store.Entity, error) {
	lower := strings.ToLower(name)
	candidates, err := r.st.ListEntitiesCandidates(ctx, tx, 0, 1<<30)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		for _, alias := range c.Aliases {
			if strings.ToLower(alias) == lower {
				return c, nil
			}
		}
	}
	return nil, nil
}

func (r *Resolver) matchFuzzy(ctx context.Context, tx store.DBTX, name string) (*store.Entity, error) {
	minLen := len(name) - FuzzyLenWindow
	maxLen := len(name) + FuzzyLenWindow
	if minLen < 0 {
		minLen = 0
	}

	candidates, err := r.st.ListEntitiesCandidates(ctx, tx, minLen, maxLen)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(name)
	for _, c := range candidates {
		if levenshtein(lower, strings.ToLower(c.Name)) <= FuzzyMaxDistance {
			return c, nil
		}
	}
	return nil, nil
}

// levenshtein computes the edit distance between a and b using the
// standard two-row dynamic-programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Merge rewires all triples and mentions from removeID onto keepID,
// unions aliases (adding the removed entity's primary name), sums
// memory_count, and deletes removeID. Idempotent: merging twice in a
// row is a no-op the second time since removeID no longer exists.
func (r *Resolver) Merge(ctx context.Context, tx store.DBTX, keepID, removeID int64) error {
	if keepID == removeID {
		return nil
	}

	keep, err := r.st.GetEntity(ctx, tx, keepID)
	if err != nil {
		return err
	}
	remove, err := r.st.GetEntity(ctx, tx, removeID)
	if err != nil {
		return err
	}
	if keep == nil || remove == nil {
		return nil
	}

	if err := r.st.RewireTriples(ctx, tx, removeID, keepID); err != nil {
		return err
	}
	if err := r.st.RewireMentions(ctx, tx, removeID, keepID); err != nil {
		return err
	}

	unioned := unionAliases(keep.Aliases, remove.Aliases, remove.Name)
	if err := r.st.SetAliases(ctx, tx, keepID, unioned); err != nil {
		return err
	}
	if err := r.st.SetMemoryCount(ctx, tx, keepID, keep.MemoryCount+remove.MemoryCount); err != nil {
		return err
	}
	return r.st.DeleteEntity(ctx, tx, removeID)
}

func unionAliases(base, extra []string, extraName string) []string {
	seen := make(map[string]bool, len(base)+len(extra)+1)
	out := make([]string, 0, len(base)+len(extra)+1)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, a := range base {
		add(a)
	}
	for _, a := range extra {
		add(a)
	}
	add(extraName)
	return out
}
