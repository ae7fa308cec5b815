package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook-rag/internal/models"
	"handbook-rag/internal/parser"
)

type memoryWriter struct {
	chunks  []models.Chunk
	vectors [][]float32
	failOn  map[int]int // chunk index -> remaining failures
	deleted []string
}

func (m *memoryWriter) StoreChunk(_ context.Context, c models.Chunk, vec []float32) error {
	if n := m.failOn[c.ChunkIndex]; n > 0 {
		m.failOn[c.ChunkIndex] = n - 1
		return errors.New("insert failed")
	}
	m.chunks = append(m.chunks, c)
	m.vectors = append(m.vectors, vec)
	return nil
}

func (m *memoryWriter) DeleteDocument(_ context.Context, docName string) (int64, error) {
	m.deleted = append(m.deleted, docName)
	return 3, nil
}

type failingEmbedder struct {
	failText string
}

func (f *failingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, f.failText) {
		return nil, models.NewEmbeddingError("500", "", errors.New("boom"))
	}
	return []float32{float32(len(text))}, nil
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix
	}
	return strings.Join(parts, " ") + "."
}

func newTestIngester(t *testing.T, emb Embedder, w ChunkWriter, opts ...IngestOption) *Ingester {
	t.Helper()
	ing, err := NewIngester(emb, w, opts...)
	require.NoError(t, err)
	return ing
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()
	small := parser.ChunkOptions{TargetWords: 6, MinWords: 4, MaxWords: 8, OverlapWords: 0}

	pages := []models.PageText{
		{PageNumber: 1, Text: words("alpha", 5) + " " + words("beta", 5)},
		{PageNumber: 2, Text: "   "},
		{PageNumber: 3, Text: words("gamma", 3)},
	}

	t.Run("ShouldEmbedAndStoreEveryChunk", func(t *testing.T) {
		w := &memoryWriter{}
		ing := newTestIngester(t, &stubEmbedder{vec: []float32{1, 2}}, w, WithChunkOptions(small))
		res, err := ing.IngestDocument(ctx, "handbook", pages)
		require.NoError(t, err)
		assert.Equal(t, IngestResult{Documents: 1, Pages: 2, Chunks: 3, Persisted: 3}, res)
		require.Len(t, w.chunks, 3)
		assert.Equal(t, "handbook", w.chunks[0].SourceDocument)
		assert.Equal(t, 1, w.chunks[1].PageNumber)
		assert.Equal(t, 1, w.chunks[1].ChunkIndex)
		assert.Equal(t, 3, w.chunks[2].PageNumber)
		assert.Equal(t, 0, w.chunks[2].ChunkIndex)
	})

	t.Run("ShouldCountFailuresAndContinue", func(t *testing.T) {
		w := &memoryWriter{}
		ing := newTestIngester(t, &failingEmbedder{failText: "beta"}, w, WithChunkOptions(small))
		res, err := ing.IngestDocument(ctx, "handbook", pages)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Chunks)
		assert.Equal(t, 2, res.Persisted)
		assert.Equal(t, 1, res.Errors)
	})

	t.Run("ShouldRetryWhenConfigured", func(t *testing.T) {
		w := &memoryWriter{failOn: map[int]int{0: 2}}
		ing := newTestIngester(t, &stubEmbedder{vec: []float32{1}}, w,
			WithChunkOptions(small), WithRetries(2, time.Millisecond))
		res, err := ing.IngestDocument(ctx, "handbook", pages[:1])
		require.NoError(t, err)
		assert.Equal(t, 2, res.Persisted)
		assert.Zero(t, res.Errors)
	})

	t.Run("ShouldNotRetryByDefault", func(t *testing.T) {
		w := &memoryWriter{failOn: map[int]int{0: 1}}
		emb := &stubEmbedder{vec: []float32{1}}
		ing := newTestIngester(t, emb, w, WithChunkOptions(small))
		res, err := ing.IngestDocument(ctx, "handbook", pages[:1])
		require.NoError(t, err)
		assert.Equal(t, 1, res.Persisted)
		assert.Equal(t, 1, res.Errors)
		assert.Equal(t, 2, emb.calls)
	})

	t.Run("ShouldSkipEmbeddingOnDryRun", func(t *testing.T) {
		w := &memoryWriter{}
		emb := &stubEmbedder{vec: []float32{1}}
		ing := newTestIngester(t, emb, w, WithChunkOptions(small), WithDryRun(true))
		res, err := ing.IngestDocument(ctx, "handbook", pages)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Chunks)
		assert.Zero(t, res.Persisted)
		assert.Zero(t, emb.calls)
		assert.Empty(t, w.chunks)
	})

	t.Run("ShouldRemovePreviousRecordsOnReplace", func(t *testing.T) {
		w := &memoryWriter{}
		ing := newTestIngester(t, &stubEmbedder{vec: []float32{1}}, w, WithChunkOptions(small), WithReplace(true))
		_, err := ing.IngestDocument(ctx, "handbook", pages)
		require.NoError(t, err)
		assert.Equal(t, []string{"handbook"}, w.deleted)
	})

	t.Run("ShouldStopOnCanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ing := newTestIngester(t, &stubEmbedder{vec: []float32{1}}, &memoryWriter{}, WithChunkOptions(small))
		_, err := ing.IngestDocument(cctx, "handbook", pages)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "LincolnHandbook2025HighSchoolEnglish.txt")
	require.NoError(t, os.WriteFile(good, []byte("Phones stay in lockers. Hats are not allowed."), 0o600))
	missing := filepath.Join(dir, "missing.txt")

	w := &memoryWriter{}
	ing := newTestIngester(t, &stubEmbedder{vec: []float32{1}}, w)
	res, err := ing.IngestFiles(context.Background(), []string{good, missing})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, w.chunks, 1)
	assert.Equal(t, "LincolnHandbook2025HighSchoolEnglish", w.chunks[0].SourceDocument)
}

func TestNewIngester(t *testing.T) {
	_, err := NewIngester(nil, &memoryWriter{})
	assert.Error(t, err)
	_, err = NewIngester(&stubEmbedder{}, nil)
	assert.Error(t, err)
}
