package embeddings

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/retry"
)

const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 1536
	// maxBatch is the number of texts sent in one EmbedContent call.
	maxBatch = 100
)

var ErrEmptyEmbedding = errors.New("empty embedding returned")

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// GoogleEmbedder wraps Gemini embeddings
type GoogleEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	retry      retry.Policy
}

var _ Embedder = (*GoogleEmbedder)(nil)

// NewGoogleEmbedder creates a Gemini API embedder authenticated with apiKey.
func NewGoogleEmbedder(ctx context.Context, model, apiKey string) (*GoogleEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required for embeddings")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GoogleEmbedder{
		client:     client,
		model:      model,
		dimensions: DefaultDimensions,
		retry:      retry.DefaultPolicy(),
	}, nil
}

func (e *GoogleEmbedder) Dimensions() int {
	return e.dimensions
}

// EmbedTexts embeds texts in batches, retrying rate limited batches.
func (e *GoogleEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxBatch {
		batch := texts[start:min(start+maxBatch, len(texts))]
		vecs, err := retry.Do(ctx, e.retry, func(ctx context.Context) ([][]float32, error) {
			return e.embedBatch(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		result = append(result, vecs...)
	}

	return result, nil
}

func (e *GoogleEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	outputDim := int32(e.dimensions)
	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmptyEmbedding, len(res.Embeddings), len(texts))
	}

	vecs := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vecs = append(vecs, emb.Values)
	}
	return vecs, nil
}
