package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/llm"
	"github.com/mikeboe/deep-research/pkg/retry"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// QueryGenerator turns a prompt into at most numQueries search queries.
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, query string, numQueries int, learnings []string) ([]Query, error)
}

// LearningExtractor digests search contents into learnings and follow-ups.
type LearningExtractor interface {
	ExtractLearnings(ctx context.Context, query string, contents []string, numLearnings, numFollowUps int) (FindingSet, error)
}

// Synthesizer writes the final output of a research run.
type Synthesizer interface {
	WriteReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error)
	WriteAnswer(ctx context.Context, prompt string, learnings []string) (string, error)
}

type queriesResponse struct {
	Queries []Query `json:"queries" description:"List of SERP queries"`
}

type reportResponse struct {
	ReportMarkdown string `json:"reportMarkdown" description:"Final report on the topic in Markdown"`
}

type answerResponse struct {
	ExactAnswer string `json:"exactAnswer" description:"The final answer, make it short and concise, just the answer, no other text"`
}

type feedbackResponse struct {
	Questions []string `json:"questions" description:"Follow up questions to clarify the research direction"`
}

// Analyst implements the generation collaborators on top of an llm.Provider.
// Every call is retried on rate limiting.
type Analyst struct {
	LLM          llm.Provider
	Trimmer      *splitter.Trimmer
	Retry        retry.Policy
	ReportTokens int
	Logger       *slog.Logger
	Now          func() time.Time
}

var (
	_ QueryGenerator    = (*Analyst)(nil)
	_ LearningExtractor = (*Analyst)(nil)
	_ Synthesizer       = (*Analyst)(nil)
)

func NewAnalyst(provider llm.Provider, trimmer *splitter.Trimmer) *Analyst {
	return &Analyst{
		LLM:          provider,
		Trimmer:      trimmer,
		Retry:        retry.DefaultPolicy(),
		ReportTokens: DefaultReportTokens,
		Logger:       slog.Default(),
		Now:          time.Now,
	}
}

func generate[T any](ctx context.Context, a *Analyst, name, prompt string) (T, error) {
	policy := a.Retry
	if policy.Logger == nil {
		policy.Logger = a.logger()
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	system := SystemPrompt(now())
	return retry.Do(ctx, policy, func(ctx context.Context) (T, error) {
		return llm.GenerateObject[T](ctx, a.LLM, name, system, prompt)
	})
}

func (a *Analyst) GenerateQueries(ctx context.Context, query string, numQueries int, learnings []string) ([]Query, error) {
	resp, err := generate[queriesResponse](ctx, a, "serp_queries", queriesPrompt(query, numQueries, learnings))
	if err != nil {
		return nil, fmt.Errorf("query generation failed: %w", err)
	}

	queries := make([]Query, 0, len(resp.Queries))
	for _, q := range resp.Queries {
		if strings.TrimSpace(q.Query) == "" {
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) > numQueries {
		queries = queries[:numQueries]
	}

	a.logger().Info("Created queries", "count", len(queries), "queries", queryTexts(queries))
	return queries, nil
}

func (a *Analyst) ExtractLearnings(ctx context.Context, query string, contents []string, numLearnings, numFollowUps int) (FindingSet, error) {
	resp, err := generate[FindingSet](ctx, a, "serp_learnings", learningsPrompt(query, contents, numLearnings))
	if err != nil {
		return FindingSet{}, fmt.Errorf("learning extraction failed: %w", err)
	}

	if len(resp.Learnings) > numLearnings {
		resp.Learnings = resp.Learnings[:numLearnings]
	}
	if len(resp.FollowUpQuestions) > numFollowUps {
		resp.FollowUpQuestions = resp.FollowUpQuestions[:numFollowUps]
	}

	a.logger().Info("Created learnings", "query", query, "learnings", len(resp.Learnings), "follow_ups", len(resp.FollowUpQuestions))
	return resp, nil
}

// WriteReport writes a long markdown report and appends the visited sources.
func (a *Analyst) WriteReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error) {
	learningsText := a.trimLearnings(learnings)

	resp, err := generate[reportResponse](ctx, a, "final_report", reportPrompt(prompt, learningsText))
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(resp.ReportMarkdown)
	sb.WriteString("\n\n## Sources\n\n")
	for i, u := range visitedURLs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(u)
	}
	return sb.String(), nil
}

// WriteAnswer writes a concise answer following the format the prompt asks for.
func (a *Analyst) WriteAnswer(ctx context.Context, prompt string, learnings []string) (string, error) {
	learningsText := a.trimLearnings(learnings)

	resp, err := generate[answerResponse](ctx, a, "exact_answer", answerPrompt(prompt, learningsText))
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return resp.ExactAnswer, nil
}

// GenerateFeedback asks clarifying questions about a research query.
func (a *Analyst) GenerateFeedback(ctx context.Context, query string, numQuestions int) ([]string, error) {
	resp, err := generate[feedbackResponse](ctx, a, "feedback", feedbackPrompt(query, numQuestions))
	if err != nil {
		return nil, fmt.Errorf("feedback generation failed: %w", err)
	}
	if len(resp.Questions) > numQuestions {
		resp.Questions = resp.Questions[:numQuestions]
	}
	return resp.Questions, nil
}

func (a *Analyst) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Analyst) trimLearnings(learnings []string) string {
	text := wrapLearnings(learnings)
	if a.Trimmer == nil {
		return text
	}
	budget := a.ReportTokens
	if budget <= 0 {
		budget = DefaultReportTokens
	}
	return a.Trimmer.Trim(text, budget)
}

func queryTexts(queries []Query) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		out = append(out, q.Query)
	}
	return out
}
