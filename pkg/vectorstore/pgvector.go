package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Learning is one indexed learning. JobID is uuid.Nil for learnings produced
// outside a server job.
type Learning struct {
	ID        string    `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Query     string    `json:"query"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float32 `json:"-"`
}

// SearchResult is a learning with its cosine similarity to the query.
type SearchResult struct {
	Learning Learning `json:"learning"`
	Score    float64  `json:"score"`
}

// PGVectorStore handles pgvector operations
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName reports whether name is safe to interpolate as a table name:
// lowercase start, word characters only, at most 63 characters.
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// ValidateTableName returns an error for names NewPGVectorStore would reject.
func ValidateTableName(name string) error {
	if !isValidTableName(name) {
		return fmt.Errorf("invalid table name %q: must contain only alphanumeric characters and underscores, start with a lowercase letter or underscore, and be 1-63 characters long", name)
	}
	return nil
}

func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if err := ValidateTableName(tableName); err != nil {
		return nil, err
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// AddLearnings inserts learnings in one batch. A learning already stored for
// the same job is skipped.
func (vs *PGVectorStore) AddLearnings(ctx context.Context, learnings []Learning) error {
	if len(learnings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (job_id, query, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, content) DO NOTHING
	`, pgx.Identifier{vs.tableName}.Sanitize())

	batch := &pgx.Batch{}
	for _, l := range learnings {
		batch.Queue(query, nullableID(l.JobID), l.Query, l.Content, pgvector.NewVector(l.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range learnings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert learning: %w", err)
		}
	}

	return nil
}

// SimilaritySearch returns the topK learnings closest to queryEmbedding,
// optionally restricted to one job.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, jobID uuid.UUID) ([]SearchResult, error) {
	embedding := pgvector.NewVector(queryEmbedding)
	table := pgx.Identifier{vs.tableName}.Sanitize()

	var query string
	var args []any
	if jobID != uuid.Nil {
		query = fmt.Sprintf(`
			SELECT id, job_id, query, content, created_at, 1 - (embedding <=> $1) AS similarity
			FROM %s
			WHERE job_id = $2
			ORDER BY embedding <=> $1
			LIMIT $3
		`, table)
		args = []any{embedding, jobID, topK}
	} else {
		query = fmt.Sprintf(`
			SELECT id, job_id, query, content, created_at, 1 - (embedding <=> $1) AS similarity
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2
		`, table)
		args = []any{embedding, topK}
	}

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var l Learning
		var job *uuid.UUID
		var score float64
		if err := rows.Scan(&l.ID, &job, &l.Query, &l.Content, &l.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if job != nil {
			l.JobID = *job
		}
		results = append(results, SearchResult{Learning: l, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
