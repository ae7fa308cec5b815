package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook-rag/internal/config"
	"handbook-rag/internal/models"
)

func newMemoryStore(t *testing.T, dir string) *Store {
	t.Helper()
	return newMemoryStoreWithDimension(t, dir, 0)
}

func newMemoryStoreWithDimension(t *testing.T, dir string, dimension int) *Store {
	t.Helper()
	s, err := NewStore(&config.ChromemConfig{
		Path:          dir,
		Collection:    "handbook_chunks",
		InMemory:      true,
		EncryptionKey: "0123456789abcdef0123456789abcdef",
	}, dimension)
	require.NoError(t, err)
	return s
}

func chunk(doc string, page, idx int, content string) models.Chunk {
	return models.Chunk{SourceDocument: doc, PageNumber: page, ChunkIndex: idx, Content: content}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldReturnEmptyForEmptyCollection", func(t *testing.T) {
		s := newMemoryStore(t, t.TempDir())
		res, err := s.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("ShouldRankBySimilarity", func(t *testing.T) {
		s := newMemoryStore(t, t.TempDir())
		require.NoError(t, s.StoreChunk(ctx, chunk("hs", 12, 0, "phones"), []float32{1, 0, 0}))
		require.NoError(t, s.StoreChunk(ctx, chunk("hs", 13, 0, "dress code"), []float32{0, 1, 0}))
		require.NoError(t, s.StoreChunk(ctx, chunk("es", 4, 1, "devices"), []float32{0.8, 0.6, 0}))

		res, err := s.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "phones", res[0].Content)
		assert.Equal(t, "hs", res[0].SourceDocument)
		assert.Equal(t, 12, res[0].PageNumber)
		assert.Equal(t, "devices", res[1].Content)
		assert.Equal(t, 1, res[1].ChunkIndex)
		assert.GreaterOrEqual(t, res[0].Similarity, res[1].Similarity)
		assert.InDelta(t, 1.0, res[0].Similarity, 1e-5)

		all, err := s.Search(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ShouldDeleteDocument", func(t *testing.T) {
		s := newMemoryStore(t, t.TempDir())
		require.NoError(t, s.StoreChunk(ctx, chunk("hs", 1, 0, "a"), []float32{1, 0}))
		require.NoError(t, s.StoreChunk(ctx, chunk("hs", 1, 1, "b"), []float32{0, 1}))
		require.NoError(t, s.StoreChunk(ctx, chunk("es", 1, 0, "c"), []float32{1, 1}))

		removed, err := s.DeleteDocument(ctx, "hs")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("ShouldExportAndImport", func(t *testing.T) {
		dir := t.TempDir()
		s := newMemoryStore(t, dir)
		require.NoError(t, s.StoreChunk(ctx, chunk("hs", 2, 0, "lockers"), []float32{0, 1}))
		require.NoError(t, s.Export())

		restored := newMemoryStore(t, dir)
		require.NoError(t, restored.Import())
		n, err := restored.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		res, err := restored.Search(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "lockers", res[0].Content)
	})

	t.Run("ShouldRequireEncryptionKeyForExport", func(t *testing.T) {
		s, err := NewStore(&config.ChromemConfig{Path: t.TempDir(), Collection: "c", InMemory: true}, 0)
		require.NoError(t, err)
		assert.Error(t, s.Export())
	})

	t.Run("ShouldRejectWrongDimension", func(t *testing.T) {
		s := newMemoryStoreWithDimension(t, t.TempDir(), 3)
		require.NoError(t, s.StoreChunk(ctx, chunk("a", 1, 0, "fits"), []float32{1, 0, 0}))

		err := s.StoreChunk(ctx, chunk("b", 1, 0, "short"), []float32{1, 0})
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrRetrievalService)
		var svcErr *models.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "dimension_mismatch", svcErr.Code)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.Search(ctx, []float32{1, 0}, 5)
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "dimension_mismatch", svcErr.Code)

		res, err := s.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "fits", res[0].Content)
	})
}
