package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

const (
	DefaultBreadth       = 4
	DefaultDepth         = 2
	MaxBreadth           = 10
	MaxDepth             = 5
	MaxFeedbackQuestions = 3
)

var ErrInvalidRequest = errors.New("invalid research request")

// LearningIndex stores the learnings of finished runs.
type LearningIndex interface {
	IndexLearnings(ctx context.Context, jobID uuid.UUID, query string, learnings []string) error
}

// Runner runs complete research sessions: the research tree followed by a
// report or an answer. Every run shares Limiter.
type Runner struct {
	Searcher research.Searcher
	Analyst  *research.Analyst
	Trimmer  *splitter.Trimmer
	Config   research.Config
	Limiter  *semaphore.Weighted
	Index    LearningIndex
	Logger   *slog.Logger
}

// New builds a runner from environment configuration.
func New(ctx context.Context, cfg *config.Config) (*Runner, error) {
	provider, err := clients.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init llm provider: %w", err)
	}
	searcher, err := tools.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init search provider: %w", err)
	}
	tokenizer, err := splitter.NewTiktokenTokenizer(splitter.DefaultEncoding)
	if err != nil {
		return nil, err
	}

	trimmer := splitter.NewTrimmer(tokenizer)
	analyst := research.NewAnalyst(provider, trimmer)
	if cfg.ContextSize > 0 && cfg.ContextSize < analyst.ReportTokens {
		analyst.ReportTokens = cfg.ContextSize
	}

	researchCfg := research.DefaultConfig()
	if cfg.FirecrawlConcurrency > 0 {
		researchCfg.Concurrency = cfg.FirecrawlConcurrency
	}

	return &Runner{
		Searcher: searcher,
		Analyst:  analyst,
		Trimmer:  trimmer,
		Config:   researchCfg,
		Limiter:  semaphore.NewWeighted(int64(researchCfg.Concurrency)),
		Logger:   slog.Default(),
	}, nil
}

// Options describe one research session.
type Options struct {
	Query   string
	Breadth int
	Depth   int
	Mode    research.Mode

	// JobID tags indexed learnings; uuid.Nil outside server jobs.
	JobID      uuid.UUID
	Logger     *slog.Logger
	OnProgress func(research.Progress)
}

type Output struct {
	research.Result
	Report string `json:"report,omitempty"`
	Answer string `json:"answer,omitempty"`
}

// Validate fills defaults and rejects values outside the supported range.
func (o *Options) Validate() error {
	o.Query = strings.TrimSpace(o.Query)
	if o.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if o.Breadth == 0 {
		o.Breadth = DefaultBreadth
	}
	if o.Breadth < 1 || o.Breadth > MaxBreadth {
		return fmt.Errorf("%w: breadth must be between 1 and %d", ErrInvalidRequest, MaxBreadth)
	}
	if o.Depth < 0 || o.Depth > MaxDepth {
		return fmt.Errorf("%w: depth must be between 0 and %d", ErrInvalidRequest, MaxDepth)
	}
	switch o.Mode {
	case "":
		o.Mode = research.ModeReport
	case research.ModeReport, research.ModeAnswer:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, o.Mode)
	}
	return nil
}

// Run researches opts.Query and writes the report or answer.
func (r *Runner) Run(ctx context.Context, opts Options) (*Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = r.logger()
	}
	analyst := *r.Analyst
	analyst.Logger = logger
	analyst.Retry.Logger = logger

	engine := research.NewEngine(r.Config, r.Searcher, &analyst, &analyst, r.Trimmer)
	if r.Limiter != nil {
		engine.Limiter = r.Limiter
	}
	engine.Logger = logger
	engine.OnProgress = opts.OnProgress

	logger.Info("Starting research", "query", opts.Query, "breadth", opts.Breadth, "depth", opts.Depth, "mode", opts.Mode)
	result, err := engine.Research(ctx, research.Request{
		Query:   opts.Query,
		Breadth: opts.Breadth,
		Depth:   opts.Depth,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Research finished", "learnings", len(result.Learnings), "visited_urls", len(result.VisitedURLs))

	if r.Index != nil {
		if err := r.Index.IndexLearnings(ctx, opts.JobID, opts.Query, result.Learnings); err != nil {
			logger.Warn("Failed to index learnings", "error", err)
		}
	}

	out := &Output{Result: *result}
	switch opts.Mode {
	case research.ModeAnswer:
		out.Answer, err = analyst.WriteAnswer(ctx, opts.Query, result.Learnings)
	default:
		out.Report, err = analyst.WriteReport(ctx, opts.Query, result.Learnings, result.VisitedURLs)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Feedback asks clarifying questions about query before research starts.
func (r *Runner) Feedback(ctx context.Context, query string) ([]string, error) {
	return r.Analyst.GenerateFeedback(ctx, query, MaxFeedbackQuestions)
}

// CombineFeedback folds the clarifying questions and the user's answers into
// the research query.
func CombineFeedback(query string, questions, answers []string) string {
	if len(questions) == 0 {
		return query
	}
	var sb strings.Builder
	sb.WriteString("Initial Query: ")
	sb.WriteString(query)
	sb.WriteString("\nFollow-up Questions and Answers:\n")
	for i, q := range questions {
		var a string
		if i < len(answers) {
			a = answers[i]
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q, a)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
