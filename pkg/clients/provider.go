package clients

import (
	"context"
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/llm"
)

// NewProvider builds the text-generation provider selected by LLM_PROVIDER.
func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "", "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIEndpoint,
			Model:   cfg.OpenAIModel,
		})
	case "google":
		return GoogleAi(ctx, cfg.GoogleApiKey, cfg.GoogleModel)
	default:
		return nil, fmt.Errorf("invalid llm provider: %s", cfg.LLMProvider)
	}
}
