package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"handbook-rag/internal/models"
	"handbook-rag/internal/parser"
)

// ChunkWriter persists one embedded chunk
type ChunkWriter interface {
	StoreChunk(ctx context.Context, chunk models.Chunk, embedding []float32) error
}

// DocumentRemover is implemented by stores that can drop a document before it is re-ingested
type DocumentRemover interface {
	DeleteDocument(ctx context.Context, docName string) (int64, error)
}

type IngestResult struct {
	Documents int
	Pages     int
	Chunks    int
	Persisted int
	Errors    int
}

func (r *IngestResult) add(o IngestResult) {
	r.Documents += o.Documents
	r.Pages += o.Pages
	r.Chunks += o.Chunks
	r.Persisted += o.Persisted
	r.Errors += o.Errors
}

type IngestOption func(*Ingester)

func WithChunkOptions(opts parser.ChunkOptions) IngestOption {
	return func(i *Ingester) { i.chunking = opts }
}

// WithRetries retries a failed embed or insert up to n times with a constant backoff
func WithRetries(n int, backoff time.Duration) IngestOption {
	return func(i *Ingester) {
		if n > 0 {
			i.retries = uint64(n)
		}
		if backoff > 0 {
			i.backoff = backoff
		}
	}
}

// WithDryRun chunks documents without embedding or writing them
func WithDryRun(dryRun bool) IngestOption {
	return func(i *Ingester) { i.dryRun = dryRun }
}

// WithReplace removes a document's existing records before writing new ones
func WithReplace(replace bool) IngestOption {
	return func(i *Ingester) { i.replace = replace }
}

// Ingester turns extracted pages into stored, embedded chunks.
// A failing chunk is counted and skipped; the run goes on.
type Ingester struct {
	embedder Embedder
	writer   ChunkWriter
	chunking parser.ChunkOptions
	retries  uint64
	backoff  time.Duration
	dryRun   bool
	replace  bool
}

func NewIngester(embedder Embedder, writer ChunkWriter, opts ...IngestOption) (*Ingester, error) {
	if embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if writer == nil {
		return nil, errors.New("ingest: chunk writer is required")
	}
	i := &Ingester{
		embedder: embedder,
		writer:   writer,
		chunking: parser.DefaultChunkOptions(),
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IngestFiles extracts and ingests every file. A file that cannot be read counts as a document with one error.
func (i *Ingester) IngestFiles(ctx context.Context, paths []string) (IngestResult, error) {
	var total IngestResult
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		docName := parser.DocumentName(path)
		pages, err := parser.ExtractPages(path)
		if err != nil {
			log.Error().Err(err).Str("doc", docName).Msg("Error extracting document")
			total.Documents++
			total.Errors++
			continue
		}
		res, err := i.IngestDocument(ctx, docName, pages)
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	log.Info().
		Int("documents", total.Documents).
		Int("chunks", total.Chunks).
		Int("persisted", total.Persisted).
		Int("errors", total.Errors).
		Msg("Ingestion finished")
	return total, nil
}

// IngestDocument chunks, embeds and stores the pages of one document.
// Only context cancellation aborts the run.
func (i *Ingester) IngestDocument(ctx context.Context, docName string, pages []models.PageText) (IngestResult, error) {
	res := IngestResult{Documents: 1}

	var chunks []models.Chunk
	for _, page := range pages {
		pageChunks := parser.ChunkPage(docName, page, i.chunking)
		if len(pageChunks) == 0 {
			continue
		}
		res.Pages++
		chunks = append(chunks, pageChunks...)
	}
	res.Chunks = len(chunks)
	log.Debug().Str("doc", docName).Int("pages", res.Pages).Int("chunks", res.Chunks).Msg("Chunked document")

	if i.dryRun || len(chunks) == 0 {
		return res, nil
	}

	if i.replace {
		if remover, ok := i.writer.(DocumentRemover); ok {
			removed, err := remover.DeleteDocument(ctx, docName)
			if err != nil {
				log.Error().Err(err).Str("doc", docName).Msg("Error removing previous records")
				res.Errors++
				return res, nil
			}
			log.Debug().Str("doc", docName).Int64("removed", removed).Msg("Removed previous records")
		}
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := i.storeChunk(ctx, c); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).
				Str("doc", c.SourceDocument).
				Int("page", c.PageNumber).
				Int("chunk_index", c.ChunkIndex).
				Msg("Error ingesting chunk")
			res.Errors++
			continue
		}
		res.Persisted++
	}
	return res, nil
}

func (i *Ingester) storeChunk(ctx context.Context, c models.Chunk) error {
	backoff := retry.WithMaxRetries(i.retries, retry.NewConstant(i.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		vec, err := i.embedder.Embed(ctx, c.Content)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to embed chunk: %w", err))
		}
		if err := i.writer.StoreChunk(ctx, c, vec); err != nil {
			return retry.RetryableError(fmt.Errorf("failed to store chunk: %w", err))
		}
		return nil
	})
}
