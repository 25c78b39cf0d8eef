package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/embeddings"
)

// Store persists learnings with their vectors.
type Store interface {
	AddLearnings(ctx context.Context, learnings []Learning) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, jobID uuid.UUID) ([]SearchResult, error)
}

var _ Store = (*PGVectorStore)(nil)

// Index embeds learnings and makes them searchable by meaning.
type Index struct {
	Store    Store
	Embedder embeddings.Embedder
}

func NewIndex(store Store, embedder embeddings.Embedder) *Index {
	return &Index{Store: store, Embedder: embedder}
}

// IndexLearnings embeds and stores the learnings of a research run.
func (ix *Index) IndexLearnings(ctx context.Context, jobID uuid.UUID, query string, learnings []string) error {
	texts := make([]string, 0, len(learnings))
	for _, l := range learnings {
		if strings.TrimSpace(l) != "" {
			texts = append(texts, l)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	vecs, err := ix.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed learnings: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d learnings", len(vecs), len(texts))
	}

	rows := make([]Learning, 0, len(texts))
	for i, text := range texts {
		rows = append(rows, Learning{JobID: jobID, Query: query, Content: text, Embedding: vecs[i]})
	}
	return ix.Store.AddLearnings(ctx, rows)
}

// Search finds the topK learnings closest to text. A zero jobID searches
// every job.
func (ix *Index) Search(ctx context.Context, text string, topK int, jobID uuid.UUID) ([]SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("search text is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	vecs, err := ix.Embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return ix.Store.SimilaritySearch(ctx, vecs[0], topK, jobID)
}
