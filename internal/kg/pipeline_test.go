package kg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/store"
)

func TestPipelineProcessCreatesEntitiesAndTriple(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	p := NewPipeline(st)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx store.DBTX) error {
		return p.Process(ctx, tx, 1, "Stack", "We use PostgreSQL for storage.", store.CategoryArchitecture)
	})
	require.NoError(t, err)

	var entities []*store.Entity
	var triples []*store.Triple
	err = st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		entities, err = st.ListEntities(ctx, tx, "", 0, 0)
		if err != nil {
			return err
		}
		for _, e := range entities {
			ts, err := st.TriplesForEntity(ctx, tx, e.ID)
			if err != nil {
				return err
			}
			triples = append(triples, ts...)
		}
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entities)
	assert.NotEmpty(t, triples)
}

func TestPipelineProcessIncrementsMemoryCountOncePerDistinctEntity(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	p := NewPipeline(st)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx store.DBTX) error {
		// "Redis" mentioned implicitly twice via the capitalized-word
		// fallback (once literally, once inside the "uses" pattern).
		return p.Process(ctx, tx, 1, "", "We use Redis. Redis is fast.", store.CategoryArchitecture)
	})
	require.NoError(t, err)

	var redis *store.Entity
	err = st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		redis, err = st.GetEntityByNameCI(ctx, tx, "Redis")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, redis)
	assert.EqualValues(t, 1, redis.MemoryCount)
}
