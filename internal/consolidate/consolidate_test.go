package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/clock"
	"github.com/cortexmem/cortex/internal/control"
	"github.com/cortexmem/cortex/internal/eventbus"
	"github.com/cortexmem/cortex/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.Store, *eventbus.Bus) {
	t.Helper()
	st, err := store.Open(":memory:", clock.System{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.New(8)
	return New(st, bus, control.New()), st, bus
}

func insertMemory(t *testing.T, st *store.Store, m *store.Memory) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		id, err = st.InsertMemory(ctx, tx, m)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestLightTickRecomputesDecayedScore(t *testing.T) {
	t.Parallel()
	w, st, bus := newTestWorker(t)
	ctx := context.Background()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	old := time.Now().UTC().Add(-48 * time.Hour)
	id := insertMemory(t, st, &store.Memory{
		Type: store.ShortTerm, Category: store.CategoryNote, Title: "t", Content: "c",
		Scope: store.ScopeProject, Salience: 0.8, DecayedScore: 0.8,
		LastAccessed: old, CreatedAt: old, Metadata: map[string]string{},
	})

	require.NoError(t, w.LightTick(ctx))

	var found bool
	var m *store.Memory
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		m, err = st.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	found = m.DecayedScore < 0.8
	assert.True(t, found)

	ev := <-ch
	assert.Equal(t, eventbus.DecayTick, ev.Type)
}

func TestMediumTickPromotesHighSalienceShortTerm(t *testing.T) {
	t.Parallel()
	w, st, _ := newTestWorker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id := insertMemory(t, st, &store.Memory{
		Type: store.ShortTerm, Category: store.CategoryNote, Title: "t", Content: "c",
		Scope: store.ScopeProject, Salience: 0.75, DecayedScore: 0.75,
		LastAccessed: now, CreatedAt: now, Metadata: map[string]string{},
	})

	require.NoError(t, w.MediumTick(ctx))

	var m *store.Memory
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		m, err = st.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, store.LongTerm, m.Type)
	assert.InDelta(t, 0.85, m.Salience, 0.001)
}

func TestMediumTickEvictsDecayedShortTermRows(t *testing.T) {
	t.Parallel()
	w, st, _ := newTestWorker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	id := insertMemory(t, st, &store.Memory{
		Type: store.ShortTerm, Category: store.CategoryNote, Title: "t", Content: "c",
		Scope: store.ScopeProject, Salience: 0.01, DecayedScore: 0.01,
		LastAccessed: now, CreatedAt: now, Metadata: map[string]string{},
	})

	require.NoError(t, w.MediumTick(ctx))

	err := st.WithTx(ctx, func(tx store.DBTX) error {
		m, err := st.GetMemory(ctx, tx, id)
		assert.NoError(t, err)
		assert.Nil(t, m)
		return nil
	})
	require.NoError(t, err)
}

func TestMediumTickDiscoversLinksForSharedCategory(t *testing.T) {
	t.Parallel()
	w, st, _ := newTestWorker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	a := insertMemory(t, st, &store.Memory{
		Type: store.ShortTerm, Category: store.CategoryArchitecture, Title: "a", Content: "c",
		Scope: store.ScopeProject, Salience: 0.5, DecayedScore: 0.5,
		LastAccessed: now, CreatedAt: now, Metadata: map[string]string{},
	})
	b := insertMemory(t, st, &store.Memory{
		Type: store.ShortTerm, Category: store.CategoryArchitecture, Title: "b", Content: "c",
		Scope: store.ScopeProject, Salience: 0.5, DecayedScore: 0.5,
		LastAccessed: now, CreatedAt: now, Metadata: map[string]string{},
	})

	require.NoError(t, w.MediumTick(ctx))

	var links []*store.MemoryLink
	err := st.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		links, err = st.ListAllLinks(ctx, tx)
		return err
	})
	require.NoError(t, err)

	var found bool
	for _, l := range links {
		if (l.SourceID == a && l.TargetID == b) || (l.SourceID == b && l.TargetID == a) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMediumTickPausedSkipsWhenCalledDirectlyStillRuns(t *testing.T) {
	t.Parallel()
	w, _, bus := newTestWorker(t)
	ctx := context.Background()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	w.ctrl.Pause()
	require.NoError(t, w.MediumTick(ctx))

	var sawComplete bool
	var payload map[string]int
	for i := 0; i < 4; i++ {
		select {
		case ev := <-ch:
			if ev.Type == eventbus.ConsolidationComplete {
				sawComplete = true
				payload, _ = ev.Data.(map[string]int)
			}
		case <-time.After(time.Second):
		}
	}
	assert.True(t, sawComplete)
	require.NotNil(t, payload)
	assert.Contains(t, payload, "consolidated")
	assert.Contains(t, payload, "decayed")
	assert.Contains(t, payload, "deleted")
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, pairKey(1, 2), pairKey(2, 1))
	assert.NotEqual(t, pairKey(1, 2), pairKey(1, 3))
}

func TestSharedTagCount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2, sharedTagCount([]string{"go", "db", "x"}, []string{"go", "db", "y"}))
	assert.Equal(t, 0, sharedTagCount([]string{"a"}, []string{"b"}))
	assert.Equal(t, 0, sharedTagCount(nil, []string{"b"}))
}
