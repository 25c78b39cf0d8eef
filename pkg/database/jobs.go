package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Query       string          `json:"query"`
	Breadth     int             `json:"breadth"`
	Depth       int             `json:"depth"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Progress    json.RawMessage `json:"progress,omitempty"`
	Report      *string         `json:"report,omitempty"`
	Answer      *string         `json:"answer,omitempty"`
	Learnings   []string        `json:"learnings"`
	VisitedURLs []string        `json:"visitedUrls"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NewJob struct {
	Query   string
	Breadth int
	Depth   int
	Mode    string
}

// JobOutput is what a finished job stores.
type JobOutput struct {
	Report      string
	Answer      string
	Learnings   []string
	VisitedURLs []string
}

type LogEntry struct {
	ID        int             `json:"id"`
	JobID     uuid.UUID       `json:"job_id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

const jobColumns = `id, query, breadth, depth, mode, status, progress, report, answer, learnings, visited_urls, error, created_at, updated_at`

func (db *PostgresDB) CreateJob(ctx context.Context, req NewJob) (*Job, error) {
	query := `
		INSERT INTO research_jobs (id, query, breadth, depth, mode, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING ` + jobColumns

	job, err := scanJob(db.Pool.QueryRow(ctx, query, uuid.New(), req.Query, req.Breadth, req.Depth, req.Mode))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (db *PostgresDB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs WHERE id = $1`

	job, err := scanJob(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (db *PostgresDB) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func (db *PostgresDB) MarkJobRunning(ctx context.Context, id uuid.UUID) error {
	return db.setStatus(ctx, id, StatusRunning, nil)
}

func (db *PostgresDB) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	return db.setStatus(ctx, id, StatusFailed, &reason)
}

func (db *PostgresDB) setStatus(ctx context.Context, id uuid.UUID, status string, reason *string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1",
		id, status, reason)
	if err != nil {
		return fmt.Errorf("failed to set job status to %s: %w", status, err)
	}
	return nil
}

// UpdateJobProgress stores progress as JSON.
func (db *PostgresDB) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress any) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		"UPDATE research_jobs SET progress = $2, updated_at = NOW() WHERE id = $1",
		id, progressJSON)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (db *PostgresDB) CompleteJob(ctx context.Context, id uuid.UUID, out JobOutput) error {
	learningsJSON, err := json.Marshal(nonNil(out.Learnings))
	if err != nil {
		return fmt.Errorf("failed to marshal learnings: %w", err)
	}
	urlsJSON, err := json.Marshal(nonNil(out.VisitedURLs))
	if err != nil {
		return fmt.Errorf("failed to marshal visited urls: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = 'completed', report = NULLIF($2, ''), answer = NULLIF($3, ''),
			learnings = $4, visited_urls = $5, updated_at = NOW()
		WHERE id = $1`,
		id, out.Report, out.Answer, learningsJSON, urlsJSON)
	if err != nil {
		return fmt.Errorf("failed to save job output: %w", err)
	}
	return nil
}

func (db *PostgresDB) InsertLog(ctx context.Context, entry LogEntry) error {
	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := db.Pool.Exec(ctx, query, entry.JobID, entry.Timestamp, entry.Level, entry.Message, []byte(entry.Metadata)); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, job_id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.JobID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return logs, nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var progress, learns, urls []byte
	err := row.Scan(
		&job.ID, &job.Query, &job.Breadth, &job.Depth, &job.Mode, &job.Status,
		&progress, &job.Report, &job.Answer, &learns, &urls, &job.Error,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(progress) > 0 {
		job.Progress = progress
	}
	if job.Learnings, err = decodeStrings(learns); err != nil {
		return nil, fmt.Errorf("failed to decode learnings: %w", err)
	}
	if job.VisitedURLs, err = decodeStrings(urls); err != nil {
		return nil, fmt.Errorf("failed to decode visited urls: %w", err)
	}
	return &job, nil
}

func decodeStrings(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
