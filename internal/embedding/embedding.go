package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"handbook-rag/internal/config"
	"handbook-rag/internal/models"
)

// Embedder turns text into a vector. The same instance must serve ingestion and queries
// so both sides share one model and preprocessing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the embedder for the configured provider
func NewEmbedder(cfg *config.LLMConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedding config")

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg), nil
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg)
	default:
		return nil, models.Configurationf("unknown embedding provider %q", cfg.Provider)
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
type OpenAIEmbedder struct {
	client        *openai.Client
	model         string
	key           string
	checkKeyShape bool
}

// NewOpenAIClient builds a go-openai client for the configured endpoint
func NewOpenAIClient(cfg *config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(strings.TrimPrefix(cfg.Key, "Bearer "))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func NewOpenAIEmbedder(cfg *config.LLMConfig) *OpenAIEmbedder {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	return &OpenAIEmbedder{
		client: NewOpenAIClient(cfg),
		model:  cfg.Model,
		key:    key,
		// compatible gateways issue keys in other shapes
		checkKeyShape: cfg.BaseURL == "",
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.Validationf("embedding input is empty")
	}
	if err := e.checkKey(); err != nil {
		return nil, err
	}

	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		status, code := OpenAIErrorDetail(err)
		return nil, models.NewEmbeddingError(status, code, fmt.Errorf("openai embedding failed: %w", err))
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, models.NewEmbeddingError("", "empty_response", errors.New("no embedding returned"))
	}
	return rsp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) checkKey() error {
	if e.key == "" {
		return models.NewEmbeddingError("", "missing_api_key", errors.New("OPENAI_API_KEY environment variable is not set"))
	}
	if e.checkKeyShape && !strings.HasPrefix(e.key, "sk-") {
		return models.NewEmbeddingError("", "invalid_api_key", errors.New("OPENAI_API_KEY appears invalid"))
	}
	return nil
}

// OpenAIErrorDetail extracts the HTTP status and error code from a go-openai error
func OpenAIErrorDetail(err error) (status, code string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode != 0 {
			status = strconv.Itoa(apiErr.HTTPStatusCode)
		}
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		} else if apiErr.Type != "" {
			code = apiErr.Type
		}
		return status, code
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode != 0 {
			status = strconv.Itoa(reqErr.HTTPStatusCode)
		}
		return status, code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.Is(err, context.Canceled):
		code = "canceled"
	}
	return status, code
}

// LangchainEmbedder adapts a langchaingo embedder
type LangchainEmbedder struct {
	impl embeddings.Embedder
}

func NewLangchainEmbedder(impl embeddings.Embedder) *LangchainEmbedder {
	return &LangchainEmbedder{impl: impl}
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*LangchainEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewLangchainEmbedder(embedder), nil
}

func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.Validationf("embedding input is empty")
	}
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		_, code := OpenAIErrorDetail(err)
		return nil, models.NewEmbeddingError("", code, fmt.Errorf("embedding failed: %w", err))
	}
	if len(vec) == 0 {
		return nil, models.NewEmbeddingError("", "empty_response", errors.New("no embedding returned"))
	}
	return vec, nil
}
