package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"handbook-rag/internal/config"
	"handbook-rag/internal/embedding"
	"handbook-rag/internal/helper"
	"handbook-rag/internal/metrics"
	"handbook-rag/internal/parser"
	"handbook-rag/internal/rag"
	"handbook-rag/internal/server"
)

type IngestCmd struct {
	Files   []string `arg:"" optional:"" type:"existingfile" help:"Documents to ingest. Defaults to every supported file in the ingest directory."`
	Dir     string   `help:"Directory to scan when no files are given (overrides ingest.dir)."`
	DryRun  bool     `help:"Chunk documents without embedding or storing them."`
	Replace bool     `help:"Delete a document's existing chunks before storing new ones."`
}

func (c *IngestCmd) Run(a *app) error {
	cfg := a.cfg
	if !c.DryRun {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	files := c.Files
	if len(files) == 0 {
		dir := c.Dir
		if dir == "" {
			dir = cfg.Ingest.Dir
		}
		var err error
		files, err = helper.ListFiles(dir, parser.IsSupported)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no supported documents found in %s", dir)
		}
	}
	fmt.Printf("Found %d document(s) to process.\n\n", len(files))

	opts := []rag.IngestOption{
		rag.WithChunkOptions(parser.ChunkOptions{
			TargetWords:  cfg.Chunking.TargetWords,
			MinWords:     cfg.Chunking.MinWords,
			MaxWords:     cfg.Chunking.MaxWords,
			OverlapWords: cfg.Chunking.OverlapWords,
		}),
		rag.WithRetries(cfg.Ingest.Retries, time.Duration(cfg.Ingest.RetryBackoff)*time.Millisecond),
		rag.WithDryRun(c.DryRun),
		rag.WithReplace(c.Replace),
	}

	var (
		emb    rag.Embedder = noopEmbedder{}
		writer rag.ChunkWriter
		b      *backend
	)
	if c.DryRun {
		writer = discardWriter{}
	} else {
		var err error
		if emb, err = newEmbedder(cfg); err != nil {
			return err
		}
		if b, err = openBackend(a.ctx, cfg, true); err != nil {
			return err
		}
		defer b.Close()
		writer = b.store
	}

	ing, err := rag.NewIngester(emb, writer, opts...)
	if err != nil {
		return err
	}
	res, err := ing.IngestFiles(a.ctx, files)
	if b != nil {
		if perr := b.persist(); perr != nil {
			err = errors.Join(err, perr)
		}
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Ingestion Complete!")
	fmt.Printf("  Documents:       %d\n", res.Documents)
	fmt.Printf("  Pages:           %d\n", res.Pages)
	fmt.Printf("  Total chunks:    %d\n", res.Chunks)
	fmt.Printf("  Persisted:       %d\n", res.Persisted)
	fmt.Printf("  Errors:          %d\n", res.Errors)
	fmt.Println(strings.Repeat("=", 60))
	return err
}

type AskCmd struct {
	Question []string `arg:"" help:"The question to answer."`
	HTML     bool     `help:"Render the answer as HTML."`
	JSON     bool     `help:"Print the full result as JSON."`
}

func (c *AskCmd) Run(a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	b, err := openBackend(a.ctx, a.cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	pipeline, err := newPipeline(a.cfg, b, nil)
	if err != nil {
		return err
	}
	question := strings.Join(c.Question, " ")
	res, err := pipeline.Answer(a.ctx, question)
	if err != nil {
		return err
	}

	if c.JSON {
		helper.PrettyPrint(os.Stdout, res)
		return nil
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", question)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	answer := res.Answer
	if c.HTML {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(answer), &buf); err != nil {
			return fmt.Errorf("failed to render answer: %w", err)
		}
		answer = buf.String()
	}
	fmt.Printf("%s\n\n", answer)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for i, s := range res.Sources {
		fmt.Printf("[%d] %s, p.%d\n    %s\n", i+1, s.DocName, s.Page, helper.Truncate(s.Content, 150))
	}
	return nil
}

type SearchCmd struct {
	Query []string `arg:"" help:"Text to search for."`
	K     int      `short:"k" default:"5" help:"Number of chunks to retrieve."`
	Text  string   `help:"Also run a case-insensitive text search for this term (postgres only)."`
}

func (c *SearchCmd) Run(a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	b, err := openBackend(a.ctx, a.cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	emb, err := newEmbedder(a.cfg)
	if err != nil {
		return err
	}
	query := strings.Join(c.Query, " ")
	vec, err := emb.Embed(a.ctx, query)
	if err != nil {
		return err
	}
	results, err := b.store.Search(a.ctx, vec, c.K)
	if err != nil {
		return err
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Query: %q (%d result(s))\n", query, len(results))
	for i, r := range results {
		fmt.Printf("\n[%d] %s\n", i+1, r.SourceDocument)
		fmt.Printf("    Page: %d, Similarity: %.4f\n", r.PageNumber, r.Similarity)
		fmt.Printf("    Content: %q\n", helper.Truncate(r.Content, 150))
	}

	if c.Text != "" {
		if b.pg == nil {
			return errors.New("text search needs the postgres vector store")
		}
		rows, err := b.pg.TextSearch(a.ctx, c.Text, 3)
		if err != nil {
			return err
		}
		fmt.Println("\n" + strings.Repeat("-", 60))
		fmt.Printf("\nText search for %q:\n", c.Text)
		for i, r := range rows {
			fmt.Printf("\n[%d] %s\n    Page: %d\n    Content: %q\n", i+1, r.SourceDocument, r.PageNumber, helper.Truncate(r.Content, 150))
		}
	}
	fmt.Println("\n" + strings.Repeat("=", 60))
	return nil
}

type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)."`
}

func (c *ServeCmd) Run(a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	b, err := openBackend(a.ctx, a.cfg, false)
	if err != nil {
		return err
	}
	defer b.Close()

	recorder := metrics.NewRecorder()
	pipeline, err := newPipeline(a.cfg, b, recorder)
	if err != nil {
		return err
	}
	addr := c.Addr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(pipeline, newDiagnostics(a.cfg, b), recorder.Handler())
	return srv.ListenAndServe(a.ctx, addr)
}

type DebugCmd struct{}

func (c *DebugCmd) Run(a *app) error {
	var b *backend
	if opened, err := openBackend(a.ctx, a.cfg, false); err != nil {
		log.Warn().Err(err).Msg("Vector store unavailable")
	} else {
		b = opened
		defer b.Close()
	}
	helper.PrettyPrint(os.Stdout, newDiagnostics(a.cfg, b).Run(a.ctx))
	return nil
}

func newDiagnostics(cfg *config.Config, b *backend) *server.Diagnostics {
	var lister server.ModelLister
	if cfg.Embedding.Provider == config.ProviderOpenAI {
		lister = embedding.NewOpenAIClient(&cfg.Embedding)
	}
	var counter server.RowCounter
	if b != nil {
		counter = b.store
	}
	return server.NewDiagnostics(lister, counter,
		server.Secret{Name: "OPENAI_API_KEY", Value: cfg.Embedding.Key, ShowChars: 10},
		server.Secret{Name: "DATABASE_URL", Value: cfg.Database.DSN, ShowChars: 20},
		server.Secret{Name: "SUPABASE_SERVICE_ROLE_KEY", Value: cfg.Database.Password, ShowChars: 10},
	)
}
