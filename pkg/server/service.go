package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/runner"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

const listJobsLimit = 50

var (
	ErrStorageDisabled = errors.New("job storage is not configured")
	ErrIndexDisabled   = errors.New("learning index is not configured")
)

// JobStore persists research jobs and their logs.
type JobStore interface {
	LogSink
	CreateJob(ctx context.Context, req database.NewJob) (*database.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error)
	ListJobs(ctx context.Context, limit int) ([]database.Job, error)
	MarkJobRunning(ctx context.Context, id uuid.UUID) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress any) error
	CompleteJob(ctx context.Context, id uuid.UUID, out database.JobOutput) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]database.LogEntry, error)
}

var _ JobStore = (*database.PostgresDB)(nil)

// Researcher runs one research session.
type Researcher interface {
	Run(ctx context.Context, opts runner.Options) (*runner.Output, error)
}

var _ Researcher = (*runner.Runner)(nil)

// LearningSearcher finds indexed learnings by meaning.
type LearningSearcher interface {
	Search(ctx context.Context, text string, topK int, jobID uuid.UUID) ([]vectorstore.SearchResult, error)
}

// Service runs research synchronously or as persisted background jobs.
// Store and Index are optional.
type Service struct {
	Runner Researcher
	Store  JobStore
	Index  LearningSearcher
	Logger *slog.Logger

	// ctx outlives requests; jobs are cancelled when the server shuts down.
	ctx context.Context
	wg  sync.WaitGroup
}

func NewService(ctx context.Context, r Researcher, store JobStore, index LearningSearcher) *Service {
	return &Service{
		Runner: r,
		Store:  store,
		Index:  index,
		Logger: slog.Default(),
		ctx:    ctx,
	}
}

type ResearchRequest struct {
	Query   string        `json:"query" binding:"required"`
	Breadth int           `json:"breadth"`
	Depth   *int          `json:"depth"`
	Mode    research.Mode `json:"mode"`
}

func (r ResearchRequest) options(mode research.Mode) runner.Options {
	depth := runner.DefaultDepth
	if r.Depth != nil {
		depth = *r.Depth
	}
	if r.Mode != "" {
		mode = r.Mode
	}
	return runner.Options{Query: r.Query, Breadth: r.Breadth, Depth: depth, Mode: mode}
}

// Research runs a session in the given mode and waits for its output.
func (s *Service) Research(ctx context.Context, req ResearchRequest, mode research.Mode) (*runner.Output, error) {
	req.Mode = mode
	return s.Runner.Run(ctx, req.options(mode))
}

// CreateJob stores a pending job and starts it in the background.
func (s *Service) CreateJob(ctx context.Context, req ResearchRequest) (*database.Job, error) {
	if s.Store == nil {
		return nil, ErrStorageDisabled
	}
	opts := req.options(research.ModeReport)
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	job, err := s.Store.CreateJob(ctx, database.NewJob{
		Query:   opts.Query,
		Breadth: opts.Breadth,
		Depth:   opts.Depth,
		Mode:    string(opts.Mode),
	})
	if err != nil {
		return nil, err
	}

	opts.JobID = job.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(opts)
	}()

	return job, nil
}

// Wait blocks until every background job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*database.Job, error) {
	if s.Store == nil {
		return nil, ErrStorageDisabled
	}
	return s.Store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]database.Job, error) {
	if s.Store == nil {
		return nil, ErrStorageDisabled
	}
	return s.Store.ListJobs(ctx, listJobsLimit)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]database.LogEntry, error) {
	if s.Store == nil {
		return nil, ErrStorageDisabled
	}
	if _, err := s.Store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.GetJobLogs(ctx, id)
}

func (s *Service) SearchLearnings(ctx context.Context, text string, topK int, jobID uuid.UUID) ([]vectorstore.SearchResult, error) {
	if s.Index == nil {
		return nil, ErrIndexDisabled
	}
	return s.Index.Search(ctx, text, topK, jobID)
}

func (s *Service) runWorker(opts runner.Options) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	jobLogger := slog.New(NewDBLogHandler(s.Store, opts.JobID, s.logger().Handler())).With("job_id", opts.JobID.String())

	if err := s.Store.MarkJobRunning(ctx, opts.JobID); err != nil {
		jobLogger.Error("Failed to mark job running", "error", err)
	}

	opts.Logger = jobLogger
	opts.OnProgress = func(p research.Progress) {
		if err := s.Store.UpdateJobProgress(ctx, opts.JobID, p); err != nil {
			jobLogger.Warn("Failed to save progress", "error", err)
		}
	}

	out, err := s.Runner.Run(ctx, opts)
	if err != nil {
		s.failJob(ctx, jobLogger, opts.JobID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	err = s.Store.CompleteJob(ctx, opts.JobID, database.JobOutput{
		Report:      out.Report,
		Answer:      out.Answer,
		Learnings:   out.Learnings,
		VisitedURLs: out.VisitedURLs,
	})
	if err != nil {
		jobLogger.Error("Failed to save job output", "error", err)
		return
	}
	jobLogger.Info("Job completed", "learnings", len(out.Learnings), "visited_urls", len(out.VisitedURLs))
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	// The job context may be the reason for failure.
	if err := s.Store.FailJob(context.WithoutCancel(ctx), jobID, reason); err != nil {
		s.logger().Error("Failed to mark job failed", "job_id", jobID, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
