package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"handbook-rag/internal/config"
	"handbook-rag/internal/models"
)

// ChunkRecord is one row of handbook_chunks. Rows are replaced by re-ingestion, never updated.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:handbook_chunks,alias:hc"`
	ID            int64           `bun:"id,pk,autoincrement"`
	DocName       string          `bun:"doc_name,notnull"`
	Page          int             `bun:"page,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type matchRow struct {
	DocName    string  `bun:"doc_name"`
	Page       int     `bun:"page"`
	Content    string  `bun:"content"`
	Similarity float64 `bun:"similarity"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the Supabase Postgres database with the configured driver
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, models.Configurationf("database dsn is not set")
	}
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPGDriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, models.Configurationf("unknown database driver %q", cfg.Driver)
	}
}

func schemaStatements(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS handbook_chunks (
	id bigserial PRIMARY KEY,
	doc_name text NOT NULL,
	page integer NOT NULL,
	chunk_index integer NOT NULL,
	content text NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
)`, dimension),
		`CREATE INDEX IF NOT EXISTS handbook_chunks_doc_name_idx ON handbook_chunks (doc_name)`,
		`CREATE INDEX IF NOT EXISTS handbook_chunks_embedding_idx ON handbook_chunks
	USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION match_handbook_chunks(query_embedding vector(%d), match_count int)
RETURNS TABLE (doc_name text, page integer, content text, similarity float8)
LANGUAGE sql STABLE AS $$
	SELECT hc.doc_name, hc.page, hc.content, 1 - (hc.embedding <=> query_embedding) AS similarity
	FROM handbook_chunks hc
	ORDER BY hc.embedding <=> query_embedding
	LIMIT match_count
$$`, dimension),
	}
}

// InitDB creates the pgvector extension, the chunk table with its indexes,
// the match function and the query log table. It is safe to run repeatedly.
func InitDB(ctx context.Context, db *bun.DB, dimension int) error {
	if dimension <= 0 {
		return models.Configurationf("embedding dimension must be positive, got %d", dimension)
	}
	for _, stmt := range schemaStatements(dimension) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	if _, err := db.NewCreateTable().Model((*QueryLog)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create query_logs: %w", err)
	}
	return nil
}

// Store is the Supabase vector store
type Store struct {
	db        *bun.DB
	dimension int
}

func NewStore(db *bun.DB, dimension int) *Store {
	return &Store{db: db, dimension: dimension}
}

func (s *Store) StoreChunk(ctx context.Context, chunk models.Chunk, embedding []float32) error {
	if err := s.checkDimension(embedding); err != nil {
		return err
	}
	rec := &ChunkRecord{
		DocName:    chunk.SourceDocument,
		Page:       chunk.PageNumber,
		ChunkIndex: chunk.ChunkIndex,
		Content:    chunk.Content,
		Embedding:  pgvector.NewVector(embedding),
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		status, code := ErrorDetail(err)
		return models.NewRetrievalError(status, code, fmt.Errorf("failed to insert chunk: %w", err))
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

	var rows []matchRow
	err := s.db.NewRaw(
		"SELECT doc_name, page, content, similarity FROM match_handbook_chunks(?, ?)",
		pgvector.NewVector(queryEmbedding), k,
	).Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status, code := ErrorDetail(err)
		return nil, models.NewRetrievalError(status, code, fmt.Errorf("match_handbook_chunks failed: %w", err))
	}
	return toRetrieved(rows, k), nil
}

func toRetrieved(rows []matchRow, k int) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RetrievedChunk{
			Chunk:      models.Chunk{SourceDocument: r.DocName, PageNumber: r.Page, Content: r.Content},
			Similarity: r.Similarity,
		})
	}
	slices.SortStableFunc(out, func(a, b models.RetrievedChunk) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// DeleteDocument removes every chunk of a document and reports how many rows went
func (s *Store) DeleteDocument(ctx context.Context, docName string) (int64, error) {
	res, err := s.db.NewDelete().Model((*ChunkRecord)(nil)).Where("doc_name = ?", docName).Exec(ctx)
	if err != nil {
		status, code := ErrorDetail(err)
		return 0, models.NewRetrievalError(status, code, fmt.Errorf("failed to delete document %q: %w", docName, err))
	}
	n, _ := res.RowsAffected()
	log.Debug().Str("doc", docName).Int64("rows", n).Msg("Deleted document chunks")
	return n, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*ChunkRecord)(nil)).Count(ctx)
	if err != nil {
		status, code := ErrorDetail(err)
		return 0, models.NewRetrievalError(status, code, fmt.Errorf("failed to count chunks: %w", err))
	}
	return n, nil
}

func (s *Store) checkDimension(vec []float32) error {
	if s.dimension > 0 && len(vec) != s.dimension {
		return models.NewRetrievalError("", "dimension_mismatch",
			fmt.Errorf("vector has %d dimensions, store expects %d", len(vec), s.dimension))
	}
	return nil
}

// ErrorDetail extracts the SQLSTATE of a Postgres failure from either driver
func ErrorDetail(err error) (status, code string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Severity), string(pqErr.Code)
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('S'), pgErr.Field('C')
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "", "timeout"
	case errors.Is(err, context.Canceled):
		return "", "canceled"
	}
	return "", ""
}

// TextSearch finds chunks containing term, case-insensitively. Used to compare against vector search.
func (s *Store) TextSearch(ctx context.Context, term string, limit int) ([]models.Chunk, error) {
	var recs []ChunkRecord
	err := s.db.NewSelect().
		Model(&recs).
		Column("doc_name", "page", "chunk_index", "content").
		Where("content ILIKE ?", "%"+term+"%").
		OrderExpr("doc_name, page, chunk_index").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		status, code := ErrorDetail(err)
		return nil, models.NewRetrievalError(status, code, fmt.Errorf("text search failed: %w", err))
	}
	out := make([]models.Chunk, len(recs))
	for i, r := range recs {
		out[i] = models.Chunk{SourceDocument: r.DocName, PageNumber: r.Page, ChunkIndex: r.ChunkIndex, Content: r.Content}
	}
	return out, nil
}
