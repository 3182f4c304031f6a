package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashedBoWIsDeterministicAndUnitNorm(t *testing.T) {
	t.Parallel()
	var e HashedBoW
	ctx := context.Background()

	v1, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, Dim)

	var sumSq float64
	for _, f := range v1 {
		sumSq += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-4)
}

func TestHashedBoWEmptyTextIsZeroVector(t *testing.T) {
	t.Parallel()
	var e HashedBoW
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, f := range v {
		assert.Zero(t, f)
	}
}

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	t.Parallel()
	var e HashedBoW
	v, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}

func TestCosineUnrelatedVectorsLowerThanIdentical(t *testing.T) {
	t.Parallel()
	var e HashedBoW
	a, err := e.Embed(context.Background(), "databases and sql queries")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "gardening tips for tomatoes")
	require.NoError(t, err)

	assert.Less(t, Cosine(a, b), Cosine(a, a))
}

func TestCosineMismatchedDimReturnsZero(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, Cosine(nil, []float32{1}))
}

func TestPipelineDefaultEmbeds(t *testing.T) {
	t.Parallel()
	p := Default()
	v, err := p.Embed(context.Background(), "some memory content")
	require.NoError(t, err)
	assert.Len(t, v, Dim)
	assert.True(t, p.Available())
}

func TestPipelineWrapsFailureAsUnavailable(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	p := NewPipeline(func() (Embedder, error) { return failingEmbedder{err: boom}, nil })

	_, err := p.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUnavailable)
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}
