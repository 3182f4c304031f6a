package salience

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cortexmem/cortex/internal/store"
)

func TestCalculateClampedAndAdditive(t *testing.T) {
	t.Parallel()
	base := Calculate("plain note", "nothing special here")
	assert.Equal(t, baseSalience, base)

	boosted := Calculate("architecture decision", "we decided to use a microservice design pattern")
	assert.Greater(t, boosted, base)
	assert.LessOrEqual(t, boosted, 1.0)
}

func TestSuggestCategoryPicksHeaviestMatch(t *testing.T) {
	t.Parallel()
	cat := SuggestCategory("", "this is a critical architecture decision, we decided to go with microservices")
	assert.Equal(t, store.CategoryArchitecture, cat)

	assert.Equal(t, store.CategoryNote, SuggestCategory("", "just some ordinary words"))
}

func TestHasGlobalMarker(t *testing.T) {
	t.Parallel()
	assert.True(t, HasGlobalMarker("always use tabs over spaces"))
	assert.True(t, HasGlobalMarker("this is a best practice"))
	assert.False(t, HasGlobalMarker("sometimes we use tabs"))
}

func TestExtractTagsDropsStopwordsAndShortTokens(t *testing.T) {
	t.Parallel()
	tags := ExtractTags("the architecture", "the system uses a microservice architecture and the database is postgres", 5)
	assert.Contains(t, tags, "microservice")
	assert.Contains(t, tags, "architecture")
	assert.NotContains(t, tags, "the")
	assert.NotContains(t, tags, "is")
	assert.LessOrEqual(t, len(tags), 5)
}

func TestDecayMonotonicAndClampsNegativeDelta(t *testing.T) {
	t.Parallel()
	salienceVal := 0.8
	d0 := Decay(salienceVal, store.ShortTerm, 0)
	assert.Equal(t, salienceVal, d0)

	d1 := Decay(salienceVal, store.ShortTerm, 24)
	d2 := Decay(salienceVal, store.ShortTerm, 48)
	assert.Less(t, d2, d1)
	assert.Less(t, d1, d0)

	dNeg := Decay(salienceVal, store.ShortTerm, -10)
	assert.Equal(t, salienceVal, dNeg)
}

func TestDecayRateOrdering(t *testing.T) {
	t.Parallel()
	// Long-term memories should decay slower than short-term over the same window.
	stm := Decay(0.9, store.ShortTerm, 100)
	ltm := Decay(0.9, store.LongTerm, 100)
	assert.Greater(t, ltm, stm)
}

func TestReinforceDiminishingReturns(t *testing.T) {
	t.Parallel()
	first := Reinforce(0.5, store.ShortTerm, 0)
	second := Reinforce(first, store.ShortTerm, 1)
	assert.Greater(t, first, 0.5)
	assert.Greater(t, second-first, 0.0)
	assert.Less(t, second-first, first-0.5)
}

func TestReinforceClampsAtOne(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, Reinforce(0.99, store.ShortTerm, 0))
}

func TestPriorityBounded(t *testing.T) {
	t.Parallel()
	p := Priority(1.0, 1.0, 1000000, store.LongTerm)
	assert.LessOrEqual(t, p, 1.0)
	assert.Greater(t, p, 0.0)
}
