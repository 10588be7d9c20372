package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/models"
)

func chunk(session string, seq int, text string, emb []float32) models.Chunk {
	return models.Chunk{
		ID:        session + "-" + text,
		SessionID: session,
		Sequence:  seq,
		Page:      1,
		Text:      text,
		Embedding: emb,
	}
}

func TestMemoryStoreQueryRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Replace(ctx, "s1", []models.Chunk{
		chunk("s1", 0, "orthogonal", []float32{0, 1, 0}),
		chunk("s1", 1, "aligned", []float32{1, 0, 0}),
		chunk("s1", 2, "close", []float32{0.9, 0.1, 0}),
	}))

	got, err := s.Query(ctx, "s1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aligned", got[0].Text)
	assert.Equal(t, "close", got[1].Text)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestMemoryStoreSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Replace(ctx, "a", []models.Chunk{chunk("a", 0, "one", []float32{1})}))
	require.NoError(t, s.Replace(ctx, "b", []models.Chunk{
		chunk("b", 0, "two", []float32{1}),
		chunk("b", 1, "three", []float32{1}),
	}))

	na, err := s.Count(ctx, "a")
	require.NoError(t, err)
	nb, err := s.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, na)
	assert.Equal(t, 2, nb)

	got, err := s.Query(ctx, "a", []float32{1}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Text)
}

func TestMemoryStoreReplaceSwapsWholeSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Replace(ctx, "s", []models.Chunk{
		chunk("s", 0, "old-a", []float32{1}),
		chunk("s", 1, "old-b", []float32{1}),
	}))
	require.NoError(t, s.Replace(ctx, "s", []models.Chunk{
		chunk("s", 0, "new", []float32{1}),
	}))

	all, err := s.All(ctx, "s")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Text)
}

func TestMemoryStoreAllReturnsDocumentOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Replace(ctx, "s", []models.Chunk{
		chunk("s", 2, "third", []float32{1}),
		chunk("s", 0, "first", []float32{1}),
		chunk("s", 1, "second", []float32{1}),
	}))

	all, err := s.All(ctx, "s")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{all[0].Text, all[1].Text, all[2].Text})
}

func TestMemoryStoreDrop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Replace(ctx, "s", []models.Chunk{chunk("s", 0, "x", []float32{1})}))
	require.NoError(t, s.Drop(ctx, "s"))

	n, err := s.Count(ctx, "s")
	require.NoError(t, err)
	assert.Zero(t, n)
}
