package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/clock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", clock.System{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemory(title, content string) *Memory {
	now := time.Now().UTC()
	return &Memory{
		Type:         ShortTerm,
		Category:     CategoryNote,
		Title:        title,
		Content:      content,
		Scope:        ScopeProject,
		Transferable: false,
		Tags:         []string{"a", "b"},
		Salience:     0.5,
		DecayedScore: 0.5,
		LastAccessed: now,
		CreatedAt:    now,
		Metadata:     map[string]string{},
	}
}

func TestInsertAndGetMemory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		id, err = s.InsertMemory(ctx, tx, newMemory("title", "content"))
		return err
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	var got *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, "content", got.Content)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func TestGetMemoryMissingReturnsNil(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var got *Memory
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, 999)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMemoryPatchBumpsLastAccessed(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		id, err = s.InsertMemory(ctx, tx, newMemory("title", "content"))
		return err
	})
	require.NoError(t, err)

	newContent := "updated content"
	future := time.Now().Add(time.Hour).UTC()
	err = s.WithTx(ctx, func(tx DBTX) error {
		return s.UpdateMemory(ctx, tx, id, MemoryPatch{Content: &newContent}, future)
	})
	require.NoError(t, err)

	var got *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, newContent, got.Content)
	assert.WithinDuration(t, future, got.LastAccessed, time.Second)
}

func TestSetAccessIncrementsAtomically(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		id, err = s.InsertMemory(ctx, tx, newMemory("title", "content"))
		return err
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	err = s.WithTx(ctx, func(tx DBTX) error {
		return s.SetAccess(ctx, tx, id, 0.9, now)
	})
	require.NoError(t, err)

	var got *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount)
	assert.Equal(t, 0.9, got.Salience)
}

func TestDeleteMemory(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		id, err = s.InsertMemory(ctx, tx, newMemory("title", "content"))
		return err
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx DBTX) error {
		return s.DeleteMemory(ctx, tx, id)
	})
	require.NoError(t, err)

	var got *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListByTypeThresholds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	lowDecay := newMemory("low", "content one")
	lowDecay.DecayedScore = 0.05
	highSalience := newMemory("high", "content two")
	highSalience.Salience = 0.95

	err := s.WithTx(ctx, func(tx DBTX) error {
		if _, err := s.InsertMemory(ctx, tx, lowDecay); err != nil {
			return err
		}
		_, err := s.InsertMemory(ctx, tx, highSalience)
		return err
	})
	require.NoError(t, err)

	var underThreshold, aboveSalience []*Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		underThreshold, err = s.ListByTypeUnderThreshold(ctx, tx, ShortTerm, 0.1)
		if err != nil {
			return err
		}
		aboveSalience, err = s.ListByTypeAboveSalience(ctx, tx, ShortTerm, 0.7)
		return err
	})
	require.NoError(t, err)

	require.Len(t, underThreshold, 1)
	assert.Equal(t, "low", underThreshold[0].Title)
	require.Len(t, aboveSalience, 1)
	assert.Equal(t, "high", aboveSalience[0].Title)
}

func TestFindByTitleProjectScoping(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	proj := "proj-a"
	m := newMemory("dup-title", "content")
	m.Project = &proj

	err := s.WithTx(ctx, func(tx DBTX) error {
		_, err := s.InsertMemory(ctx, tx, m)
		return err
	})
	require.NoError(t, err)

	var found, notFound *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		found, err = s.FindByTitleProject(ctx, tx, "dup-title", &proj)
		if err != nil {
			return err
		}
		otherProj := "proj-b"
		notFound, err = s.FindByTitleProject(ctx, tx, "dup-title", &otherProj)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Nil(t, notFound)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	m := newMemory("title", "content")
	var id int64
	err := s.WithTx(ctx, func(tx DBTX) error {
		var err error
		id, err = s.InsertMemory(ctx, tx, m)
		return err
	})
	require.NoError(t, err)

	vec := []float32{0.1, -0.2, 0.3}
	err = s.WithTx(ctx, func(tx DBTX) error {
		return s.SetEmbedding(ctx, tx, id, vec)
	})
	require.NoError(t, err)

	var got *Memory
	err = s.WithTx(ctx, func(tx DBTX) error {
		var err error
		got, err = s.GetMemory(ctx, tx, id)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got.Embedding, 3)
	assert.InDelta(t, 0.1, got.Embedding[0], 1e-6)
	assert.InDelta(t, -0.2, got.Embedding[1], 1e-6)
	assert.InDelta(t, 0.3, got.Embedding[2], 1e-6)
}
