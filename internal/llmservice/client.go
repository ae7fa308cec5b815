package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"handbook-rag/internal/config"
	"handbook-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var statusCodeRe = regexp.MustCompile(`status code:? (\d{3})`)

// ContentGenerator is the part of a langchaingo model the synthesizer needs
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Synthesizer answers a rendered prompt under a fixed grounding instruction
type Synthesizer struct {
	llm         ContentGenerator
	system      string
	temperature float64
}

func NewSynthesizer(llm ContentGenerator, temperature float64) *Synthesizer {
	return &Synthesizer{
		llm:         llm,
		system:      models.GroundingInstruction,
		temperature: temperature,
	}
}

// NewModel builds the langchaingo model for the configured provider
func NewModel(llmConfig *config.LLMConfig) (ContentGenerator, error) {
	log.Debug().Interface("llmConfig", llmConfig.Model).Str("provider", llmConfig.Provider).Msg("Creating inference model")
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, models.Configurationf("unknown inference provider %q", llmConfig.Provider)
	}
}

// Synthesize returns the model's answer. An empty completion is not an error;
// it becomes the fixed "No response from model." answer.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	res, err := s.llm.GenerateContent(ctx, msgContent, llms.WithTemperature(s.temperature))
	if err != nil {
		status, code := errorDetail(err)
		return "", models.NewGenerationError(status, code, fmt.Errorf("completion failed: %w", err))
	}
	if res == nil || len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
		log.Warn().Msg("Model returned no content")
		return models.NoResponseAnswer, nil
	}
	return res.Choices[0].Content, nil
}

// langchaingo flattens provider errors into text, so the status is recovered best-effort
func errorDetail(err error) (status, code string) {
	if m := statusCodeRe.FindStringSubmatch(err.Error()); m != nil {
		status = m[1]
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.Is(err, context.Canceled):
		code = "canceled"
	}
	return status, code
}
