package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/mikeboe/deep-research/pkg/llm"
)

// DefaultGoogleModel is used when no model is configured.
const DefaultGoogleModel = "gemini-2.5-flash"

// GoogleProvider generates structured output with Gemini through langchaingo.
// Gemini's JSON mode does not take a schema here, so the schema is appended
// to the system prompt.
type GoogleProvider struct {
	LLM   llms.Model
	Model string
}

var _ llm.Provider = (*GoogleProvider)(nil)

// GoogleAi creates a Gemini provider for the given model.
func GoogleAi(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
	}
	if model == "" {
		model = DefaultGoogleModel
	}

	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	client, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to init google ai client: %w", err)
	}

	return &GoogleProvider{LLM: client, Model: model}, nil
}

func (g *GoogleProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	system := req.System
	if req.Schema != nil {
		system += "\n\n# Response Format:\n" + llm.SchemaPrompt(req.Schema)
	}

	resp, err := g.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}, llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}

	return resp.Choices[0].Content, nil
}
