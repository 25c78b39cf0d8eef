package research

import "time"

const (
	DefaultConcurrency    = 2
	DefaultSearchTimeout  = 15 * time.Second
	DefaultExtractTimeout = 60 * time.Second
	DefaultSearchLimit    = 5
	DefaultMaxDocTokens   = 25_000
	DefaultNumLearnings   = 3
	DefaultReportTokens   = 150_000
)

// Config holds the tunables of a research run.
type Config struct {
	// Concurrency is the number of branches allowed to search and digest at
	// the same time across the whole research tree.
	Concurrency    int
	SearchTimeout  time.Duration
	ExtractTimeout time.Duration
	SearchLimit    int
	MaxDocTokens   int
	NumLearnings   int
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Concurrency:    DefaultConcurrency,
		SearchTimeout:  DefaultSearchTimeout,
		ExtractTimeout: DefaultExtractTimeout,
		SearchLimit:    DefaultSearchLimit,
		MaxDocTokens:   DefaultMaxDocTokens,
		NumLearnings:   DefaultNumLearnings,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = d.ExtractTimeout
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = d.SearchLimit
	}
	if c.MaxDocTokens <= 0 {
		c.MaxDocTokens = d.MaxDocTokens
	}
	if c.NumLearnings <= 0 {
		c.NumLearnings = d.NumLearnings
	}
	return c
}

// Query is a generated search query and the reason it was asked.
type Query struct {
	Query        string `json:"query" description:"The SERP query"`
	ResearchGoal string `json:"researchGoal" description:"First talk about the goal of the research that this query is meant to accomplish, then go deeper into how to advance the research once the results are found, mention additional research directions. Be as specific as possible, especially for additional research directions."`
}

// Document is one search hit. Content may be empty.
type Document struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// FindingSet is what a single branch learned from its documents.
type FindingSet struct {
	Learnings         []string `json:"learnings" description:"List of learnings"`
	FollowUpQuestions []string `json:"followUpQuestions" description:"List of follow-up questions to research the topic further"`
}

// Request is the input of one research level. It is passed by value; every
// branch works on its own copy.
type Request struct {
	Query       string
	Breadth     int
	Depth       int
	Learnings   []string
	VisitedURLs []string
}

// Result is the deduplicated output of a research level.
type Result struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Progress is a snapshot of a running research tree.
type Progress struct {
	CurrentDepth     int    `json:"currentDepth"`
	TotalDepth       int    `json:"totalDepth"`
	CurrentBreadth   int    `json:"currentBreadth"`
	TotalBreadth     int    `json:"totalBreadth"`
	CurrentQuery     string `json:"currentQuery,omitempty"`
	TotalQueries     int    `json:"totalQueries"`
	CompletedQueries int    `json:"completedQueries"`
}

// Mode selects what is synthesised from the learnings.
type Mode string

const (
	ModeReport Mode = "report"
	ModeAnswer Mode = "answer"
)

// union returns the distinct strings of lists in first-seen order.
func union(lists ...[]string) []string {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, l := range lists {
		for _, s := range l {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// ChildBreadth halves breadth, rounding up, so exploration never narrows to zero.
func ChildBreadth(breadth int) int {
	return (breadth + 1) / 2
}
