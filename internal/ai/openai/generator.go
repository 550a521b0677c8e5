package openai

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/ai"
)

// Generator implements ai.Generator using an OpenAI-compatible chat API.
type Generator struct {
	client      llms.Model
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// NewGenerator builds a Generator from config.
func NewGenerator(cfg *ai.Config, logger *zap.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithModel(cfg.GenerationModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:      client,
		model:       cfg.GenerationModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.Named("generator"),
	}, nil
}

// Generate runs one chat completion. The caller's context deadline bounds
// the provider call; generation is not retried since the answer engine has
// its own excerpt fallback.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := g.client.GenerateContent(ctx, content,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		g.logger.Warn("generation failed", zap.String("model", g.model), zap.Error(err))
		return "", &ai.ProviderError{Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ai.ProviderError{Op: "generate", Err: errNoChoices}
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var errNoChoices = &emptyResponseError{}

type emptyResponseError struct{}

func (*emptyResponseError) Error() string { return "provider returned no choices" }
