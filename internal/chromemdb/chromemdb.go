package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"handbook-rag/internal/config"
	"handbook-rag/internal/models"
)

const (
	metaDocName    = "doc_name"
	metaPage       = "page"
	metaChunkIndex = "chunk_index"
)

// Store keeps handbook chunks in a chromem-go collection, either on disk or in memory
type Store struct {
	db            *chromem.DB
	collection    *chromem.Collection
	compress      bool
	encryptionKey string
	filePath      string
	dimension     int
}

// NewStore opens (or creates) the configured collection. A positive dimension
// makes StoreChunk and Search reject vectors of any other length.
func NewStore(cfg *config.ChromemConfig, dimension int) (*Store, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	// embeddings are always supplied by the caller, so no embedding func is registered
	c, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	filePath := cfg.ExportFile
	if filePath == "" {
		filePath = filepath.Join(cfg.Path, cfg.Collection+".chromem")
	}
	return &Store{
		db:            db,
		collection:    c,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filePath,
		dimension:     dimension,
	}, nil
}

func documentID(chunk models.Chunk) string {
	return fmt.Sprintf("%s-%d-%d", chunk.SourceDocument, chunk.PageNumber, chunk.ChunkIndex)
}

func (s *Store) StoreChunk(ctx context.Context, chunk models.Chunk, embedding []float32) error {
	if err := s.checkDimension(embedding); err != nil {
		return err
	}
	doc := chromem.Document{
		ID:      documentID(chunk),
		Content: chunk.Content,
		Metadata: map[string]string{
			metaDocName:    chunk.SourceDocument,
			metaPage:       strconv.Itoa(chunk.PageNumber),
			metaChunkIndex: strconv.Itoa(chunk.ChunkIndex),
		},
		Embedding: embedding,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return models.NewRetrievalError("", "", fmt.Errorf("failed to add document: %w", err))
	}
	return nil
}

// Search returns at most k chunks ordered by descending cosine similarity
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	if err := s.checkDimension(queryEmbedding); err != nil {
		return nil, err
	}
	n := min(k, s.collection.Count())
	if n <= 0 {
		return []models.RetrievedChunk{}, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, queryEmbedding, n, nil, nil)
	if err != nil {
		return nil, models.NewRetrievalError("", "", fmt.Errorf("failed to query by similarity: %w", err))
	}

	out := make([]models.RetrievedChunk, 0, len(results))
	for _, r := range results {
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		out = append(out, models.RetrievedChunk{
			Chunk: models.Chunk{
				SourceDocument: r.Metadata[metaDocName],
				PageNumber:     page,
				ChunkIndex:     idx,
				Content:        r.Content,
			},
			Similarity: float64(r.Similarity),
		})
	}
	return out, nil
}

// chromem-go does not check vector length on insert
func (s *Store) checkDimension(vec []float32) error {
	if s.dimension > 0 && len(vec) != s.dimension {
		return models.NewRetrievalError("", "dimension_mismatch",
			fmt.Errorf("vector has %d dimensions, collection expects %d", len(vec), s.dimension))
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, docName string) (int64, error) {
	before := s.collection.Count()
	if err := s.collection.Delete(ctx, map[string]string{metaDocName: docName}, nil); err != nil {
		return 0, models.NewRetrievalError("", "", fmt.Errorf("failed to delete document %q: %w", docName, err))
	}
	return int64(before - s.collection.Count()), nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Export writes the collection to an encrypted file
func (s *Store) Export() error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if len(s.encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(s.encryptionKey))
	}
	log.Debug().Str("collection", s.collection.Name).Str("file", s.filePath).Bool("compress", s.compress).Msg("Exporting collection")
	if err := s.db.ExportToFile(s.filePath, s.compress, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

func (s *Store) ExportPath() string { return s.filePath }

// Import loads a file written by Export into the collection
func (s *Store) Import() error {
	if err := s.db.ImportFromFile(s.filePath, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := s.db.GetCollection(s.collection.Name, nil)
	if c == nil {
		return fmt.Errorf("collection %q missing after import", s.collection.Name)
	}
	s.collection = c
	return nil
}
