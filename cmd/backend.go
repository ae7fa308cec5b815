package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"handbook-rag/internal/chromemdb"
	"handbook-rag/internal/config"
	"handbook-rag/internal/db"
	"handbook-rag/internal/embedding"
	"handbook-rag/internal/helper"
	"handbook-rag/internal/llmservice"
	"handbook-rag/internal/metrics"
	"handbook-rag/internal/models"
	"handbook-rag/internal/rag"
)

type vectorStore interface {
	rag.Retriever
	rag.ChunkWriter
	rag.DocumentRemover
	Count(ctx context.Context) (int, error)
}

// backend owns the vector store and whatever connection backs it
type backend struct {
	store   vectorStore
	pg      *db.Store
	bunDB   *bun.DB
	chromem *chromemdb.Store
	cfg     *config.Config
}

// openBackend connects the configured store. initSchema creates the Postgres objects first.
func openBackend(ctx context.Context, cfg *config.Config, initSchema bool) (*backend, error) {
	switch cfg.VectorStore.Type {
	case config.StorePostgres:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if initSchema {
			if err := db.InitDB(ctx, bunDB, cfg.Embedding.Dimension); err != nil {
				_ = bunDB.Close()
				return nil, err
			}
		}
		pg := db.NewStore(bunDB, cfg.Embedding.Dimension)
		return &backend{store: pg, pg: pg, bunDB: bunDB, cfg: cfg}, nil

	case config.StoreChromem:
		ccfg := cfg.VectorStore.Chromem
		if err := helper.CreateFolder(ccfg.Path); err != nil {
			return nil, err
		}
		cs, err := chromemdb.NewStore(&ccfg, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		if ccfg.InMemory && fileExists(cs.ExportPath()) {
			if err := cs.Import(); err != nil {
				return nil, err
			}
			log.Debug().Str("file", cs.ExportPath()).Msg("Imported chromem collection")
		}
		return &backend{store: cs, chromem: cs, cfg: cfg}, nil

	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore.Type)
	}
}

// persist writes an in-memory chromem collection back to its export file
func (b *backend) persist() error {
	if b.chromem == nil || !b.cfg.VectorStore.Chromem.InMemory {
		return nil
	}
	if b.cfg.VectorStore.Chromem.EncryptionKey == "" {
		return errors.New("in-memory chromem store needs an encryption_key to be exported")
	}
	return b.chromem.Export()
}

func (b *backend) Close() error {
	if b.bunDB != nil {
		return b.bunDB.Close()
	}
	return nil
}

// hooks returns the query observers enabled for this run
func (b *backend) hooks(recorder *metrics.Recorder) []rag.Hook {
	var hooks []rag.Hook
	if recorder != nil {
		hooks = append(hooks, recorder)
	}
	if b.bunDB != nil && b.cfg.QueryLog.Enabled {
		hooks = append(hooks, db.NewQueryLogger(b.bunDB))
	}
	return hooks
}

func newEmbedder(cfg *config.Config) (rag.Embedder, error) {
	return embedding.NewEmbedder(&cfg.Embedding)
}

func newPipeline(cfg *config.Config, b *backend, recorder *metrics.Recorder) (*rag.Pipeline, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	model, err := llmservice.NewModel(&cfg.Inference)
	if err != nil {
		return nil, err
	}
	var namer rag.DocumentNamer = rag.NewHandbookNamer()
	if cfg.RAG.Namer == config.NamerIdentity {
		namer = rag.IdentityNamer{}
	}
	return rag.NewPipeline(emb, b.store, llmservice.NewSynthesizer(model, cfg.Inference.Temperature),
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithNamer(namer),
		rag.WithTimeout(time.Duration(cfg.RAG.RequestTimeoutSecs)*time.Second),
		rag.WithHooks(b.hooks(recorder)...),
	)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// noopEmbedder and discardWriter stand in during dry runs, which never embed or store
type noopEmbedder struct{}

func (noopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

type discardWriter struct{}

func (discardWriter) StoreChunk(context.Context, models.Chunk, []float32) error { return nil }
