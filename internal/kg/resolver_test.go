package kg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/clock"
	"github.com/cortexmem/cortex/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", clock.System{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolveExactMatchReusesEntity(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	var first, second *store.Entity
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		first, err = r.Resolve(ctx, tx, "Luffy", "character")
		if err != nil {
			return err
		}
		second, err = r.Resolve(ctx, tx, "Luffy", "character")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveCaseInsensitiveAddsAlias(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	var e *store.Entity
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := r.Resolve(ctx, tx, "Luffy", "character"); err != nil {
			return err
		}
		var err error
		e, err = r.Resolve(ctx, tx, "LUFFY", "character")
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, e.Aliases, "LUFFY")
}

func TestResolveFuzzyMatchesCloseTypo(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	var original, typoed *store.Entity
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		original, err = r.Resolve(ctx, tx, "Kaido", "character")
		if err != nil {
			return err
		}
		typoed, err = r.Resolve(ctx, tx, "Kaidoo", "character") // 1 edit away, len > FuzzyMinNameLen
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, typoed.ID)
}

func TestResolveCreatesNewEntityWhenNoMatch(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	var e *store.Entity
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		e, err = r.Resolve(ctx, tx, "Zoro", "character")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Zoro", e.Name)
}

func TestMergeRewiresAndUnionsAliases(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	var keep, remove *store.Entity
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		keep, err = st.InsertEntity(ctx, tx, "Monkey D. Luffy", "character")
		if err != nil {
			return err
		}
		remove, err = st.InsertEntity(ctx, tx, "Straw Hat", "character")
		if err != nil {
			return err
		}
		return st.UpsertTriple(ctx, tx, &store.Triple{SubjectID: remove.ID, Predicate: "leads", ObjectID: keep.ID, SourceMemoryID: 1})
	})
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx store.DBTX) error {
		return r.Merge(ctx, tx, keep.ID, remove.ID)
	})
	require.NoError(t, err)

	var merged *store.Entity
	var gone *store.Entity
	err = st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		merged, err = st.GetEntity(ctx, tx, keep.ID)
		if err != nil {
			return err
		}
		gone, err = st.GetEntity(ctx, tx, remove.ID)
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, merged.Aliases, "Straw Hat")
	assert.Nil(t, gone)
}

func TestMergeSameIDIsNoop(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx store.DBTX) error {
		return r.Merge(ctx, tx, 7, 7)
	})
	assert.NoError(t, err)
}

func TestLevenshteinBasics(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("abc", "abd"))
	assert.Equal(t, 3, levenshtein("", "abc"))
}
