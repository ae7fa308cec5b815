package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"handbook-rag/internal/helper"
	"handbook-rag/internal/models"
)

const defaultTimeout = 60 * time.Second

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns at most k chunks ordered by descending similarity.
// An empty result is not an error.
type Retriever interface {
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]models.RetrievedChunk, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

type Option func(*Pipeline)

func WithTopK(k int) Option {
	return func(r *Pipeline) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithTimeout bounds the whole embed, retrieve and synthesize chain
func WithTimeout(d time.Duration) Option {
	return func(r *Pipeline) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithNamer(n DocumentNamer) Option {
	return func(r *Pipeline) {
		r.prompts = NewPromptBuilder(n)
	}
}

func WithHooks(hooks ...Hook) Option {
	return func(r *Pipeline) {
		r.hooks = append(r.hooks, hooks...)
	}
}

// Pipeline answers questions from retrieved context. It keeps no state between queries.
type Pipeline struct {
	embedder    Embedder
	retriever   Retriever
	synthesizer Synthesizer
	prompts     *PromptBuilder
	topK        int
	timeout     time.Duration
	hooks       []Hook
}

func NewPipeline(embedder Embedder, retriever Retriever, synthesizer Synthesizer, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	if retriever == nil {
		return nil, errors.New("rag: retriever is required")
	}
	if synthesizer == nil {
		return nil, errors.New("rag: synthesizer is required")
	}
	r := &Pipeline{
		embedder:    embedder,
		retriever:   retriever,
		synthesizer: synthesizer,
		prompts:     NewPromptBuilder(NewHandbookNamer()),
		topK:        models.DefaultTopK,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Answer runs embed -> retrieve -> (no results | build prompt -> synthesize).
// Service failures are returned as they are; nothing is retried.
func (r *Pipeline) Answer(ctx context.Context, question string) (result *models.AnswerResult, err error) {
	start := time.Now()
	requestID, idErr := helper.GenerateUUID()
	if idErr != nil {
		log.Warn().Err(idErr).Msg("Failed to generate request id")
	}
	question = strings.TrimSpace(question)
	ev := Event{RequestID: requestID, Question: question}
	logger := log.With().Str("request_id", requestID).Logger()

	defer func() {
		ev.Latency = time.Since(start)
		ev.Err = err
		if result != nil {
			ev.Answer = result.Answer
			ev.SourcesCount = len(result.Sources)
		}
		r.emit(ctx, ev)
	}()

	if question == "" {
		return nil, models.Validationf("Question cannot be empty")
	}

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queryEmbedding, err := r.embedder.Embed(qctx, question)
	if err != nil {
		logger.Error().Err(err).Msg("Embedding question failed")
		return nil, withTimeout(qctx, err)
	}

	chunks, err := r.retriever.Search(qctx, queryEmbedding, r.topK)
	if err != nil {
		logger.Error().Err(err).Msg("Retrieval failed")
		return nil, withTimeout(qctx, err)
	}
	if len(chunks) > r.topK {
		chunks = chunks[:r.topK]
	}
	logger.Debug().Int("chunks", len(chunks)).Msg("Found relevant chunks")

	if len(chunks) == 0 {
		ev.NoResults = true
		return &models.AnswerResult{Answer: models.NoResultsAnswer, Sources: []models.Source{}}, nil
	}

	prompt := r.prompts.Build(chunks, question)
	answer, err := r.synthesizer.Synthesize(qctx, prompt)
	if err != nil {
		logger.Error().Err(err).Msg("Synthesis failed")
		return nil, withTimeout(qctx, err)
	}

	logger.Info().Dur("latency", time.Since(start)).Int("sources", len(chunks)).Msg("Answered question")
	return &models.AnswerResult{
		Answer:  answer,
		Sources: r.prompts.Sources(chunks),
	}, nil
}

// a chain that ran out of budget is reported as a timeout, keeping the service cause
func withTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrRequestTimeout) {
		return fmt.Errorf("%w: %w", models.ErrRequestTimeout, err)
	}
	return err
}
