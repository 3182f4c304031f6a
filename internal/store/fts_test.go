package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteFTSQuery(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", QuoteFTSQuery("   "))
	assert.Equal(t, `"hello"*`, QuoteFTSQuery("hello"))
	assert.Equal(t, `"foo" OR "bar"*`, QuoteFTSQuery("foo bar"))
	// FTS5 operator characters must not break out of the quoted literal.
	assert.Equal(t, `"a""b"*`, QuoteFTSQuery(`a"b`))
}

func TestSearchFTSMatchesAndRanks(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx DBTX) error {
		if _, err := s.InsertMemory(ctx, tx, newMemory("Go routines", "goroutines and channels in go")); err != nil {
			return err
		}
		_, err := s.InsertMemory(ctx, tx, newMemory("Python decorators", "decorators in python"))
		return err
	})
	require.NoError(t, err)

	var candidates []FTSCandidate
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		candidates, err = s.SearchFTS(ctx, tx, QuoteFTSQuery("goroutines"), 10)
		return err
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Go routines", candidates[0].Memory.Title)
}
