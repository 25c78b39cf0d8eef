package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mikeboe/deep-research/pkg/retry"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// Searcher is the remote search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// ResearchEngine runs the recursive research tree.
type ResearchEngine struct {
	Config    Config
	Searcher  Searcher
	Queries   QueryGenerator
	Extractor LearningExtractor
	Trimmer   *splitter.Trimmer
	Retry     retry.Policy

	// Limiter bounds the branches searching and digesting at once across
	// every level and every run sharing this engine.
	Limiter    *semaphore.Weighted
	Logger     *slog.Logger
	OnProgress func(Progress)

	limiterOnce sync.Once
}

// NewEngine wires an engine with its own limiter sized by cfg.Concurrency.
func NewEngine(cfg Config, searcher Searcher, queries QueryGenerator, extractor LearningExtractor, trimmer *splitter.Trimmer) *ResearchEngine {
	cfg = cfg.withDefaults()
	return &ResearchEngine{
		Config:    cfg,
		Searcher:  searcher,
		Queries:   queries,
		Extractor: extractor,
		Trimmer:   trimmer,
		Retry:     retry.DefaultPolicy(),
		Limiter:   semaphore.NewWeighted(int64(cfg.Concurrency)),
		Logger:    slog.Default(),
	}
}

// Research explores req.Query breadth-first down to req.Depth levels and
// returns every learning and URL found. Only a failure to generate the
// root-level queries is returned as an error; failed branches just
// contribute nothing.
func (e *ResearchEngine) Research(ctx context.Context, req Request) (*Result, error) {
	run := e.prepare()

	tracker := &progressTracker{
		onProgress: run.OnProgress,
		progress: Progress{
			CurrentDepth:   req.Depth,
			TotalDepth:     req.Depth,
			CurrentBreadth: req.Breadth,
			TotalBreadth:   req.Breadth,
		},
	}

	result, err := run.research(ctx, req, tracker)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// prepare returns a defaulted copy of e for a single run. e itself is only
// written once, when a nil Limiter is replaced.
func (e *ResearchEngine) prepare() *ResearchEngine {
	cfg := e.Config.withDefaults()
	e.limiterOnce.Do(func() {
		if e.Limiter == nil {
			e.Limiter = semaphore.NewWeighted(int64(cfg.Concurrency))
		}
	})

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := e.Retry
	if policy.Logger == nil {
		policy.Logger = logger
	}

	return &ResearchEngine{
		Config:     cfg,
		Searcher:   e.Searcher,
		Queries:    e.Queries,
		Extractor:  e.Extractor,
		Trimmer:    e.Trimmer,
		Retry:      policy,
		Limiter:    e.Limiter,
		Logger:     logger,
		OnProgress: e.OnProgress,
	}
}

func (e *ResearchEngine) research(ctx context.Context, req Request, tracker *progressTracker) (*Result, error) {
	queries, err := e.Queries.GenerateQueries(ctx, req.Query, req.Breadth, req.Learnings)
	if err != nil {
		return nil, fmt.Errorf("failed to generate queries: %w", err)
	}
	if len(queries) > req.Breadth {
		queries = queries[:req.Breadth]
	}

	tracker.startLevel(req.Depth, req.Breadth, queries)

	results := make([]*Result, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q Query) {
			defer wg.Done()
			defer tracker.complete()

			res, err := e.branch(ctx, req, q, tracker)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					e.Logger.Error("Timeout error running query", "query", q.Query, "error", err)
				} else {
					e.Logger.Error("Error running query", "query", q.Query, "error", err)
				}
				res = &Result{Learnings: []string{}, VisitedURLs: []string{}}
			}
			results[i] = res
		}(i, q)
	}
	wg.Wait()

	learnings := make([][]string, 0, len(results))
	urls := make([][]string, 0, len(results))
	for _, r := range results {
		learnings = append(learnings, r.Learnings)
		urls = append(urls, r.VisitedURLs)
	}

	return &Result{
		Learnings:   union(learnings...),
		VisitedURLs: union(urls...),
	}, nil
}

// branch runs one query's search, digest and recursion. parent is a copy;
// nothing here is shared with sibling branches.
func (e *ResearchEngine) branch(ctx context.Context, parent Request, q Query, tracker *progressTracker) (*Result, error) {
	childBreadth := ChildBreadth(parent.Breadth)

	findings, urls, err := e.digest(ctx, q, childBreadth)
	if err != nil {
		return nil, err
	}

	allLearnings := union(parent.Learnings, findings.Learnings)
	allURLs := union(parent.VisitedURLs, urls)

	childDepth := parent.Depth - 1
	if childDepth <= 0 {
		return &Result{Learnings: allLearnings, VisitedURLs: allURLs}, nil
	}

	e.Logger.Info("Researching deeper", "breadth", childBreadth, "depth", childDepth)
	return e.research(ctx, Request{
		Query:       nextQuery(q.ResearchGoal, findings.FollowUpQuestions),
		Breadth:     childBreadth,
		Depth:       childDepth,
		Learnings:   allLearnings,
		VisitedURLs: allURLs,
	}, tracker)
}

// digest searches for q and extracts findings while holding a limiter slot.
// The slot is released before the branch recurses.
func (e *ResearchEngine) digest(ctx context.Context, q Query, numFollowUps int) (FindingSet, []string, error) {
	if err := e.Limiter.Acquire(ctx, 1); err != nil {
		return FindingSet{}, nil, fmt.Errorf("waiting for a search slot: %w", err)
	}
	defer e.Limiter.Release(1)

	docs, err := retry.Do(ctx, e.Retry, func(ctx context.Context) ([]Document, error) {
		searchCtx, cancel := context.WithTimeout(ctx, e.Config.SearchTimeout)
		defer cancel()
		return e.Searcher.Search(searchCtx, q.Query, e.Config.SearchLimit)
	})
	if err != nil {
		return FindingSet{}, nil, fmt.Errorf("search failed: %w", err)
	}
	if len(docs) > e.Config.SearchLimit {
		docs = docs[:e.Config.SearchLimit]
	}

	contents := make([]string, 0, len(docs))
	urls := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		content := d.Content
		if e.Trimmer != nil {
			content = e.Trimmer.Trim(content, e.Config.MaxDocTokens)
		}
		contents = append(contents, content)
	}
	e.Logger.Info("Ran query", "query", q.Query, "documents", len(docs), "contents", len(contents))

	extractCtx, cancel := context.WithTimeout(ctx, e.Config.ExtractTimeout)
	defer cancel()
	findings, err := e.Extractor.ExtractLearnings(extractCtx, q.Query, contents, e.Config.NumLearnings, numFollowUps)
	if err != nil {
		return FindingSet{}, nil, err
	}

	return findings, union(urls), nil
}

// progressTracker counts queries across a run. Hooks are called outside mu,
// one at a time, and always end on the latest snapshot; callers never wait
// for a hook another branch is running.
type progressTracker struct {
	mu         sync.Mutex
	progress   Progress
	seq        int
	delivered  int
	onProgress func(Progress)

	hook sync.Mutex
}

func (t *progressTracker) startLevel(depth, breadth int, queries []Query) {
	t.mu.Lock()
	t.progress.CurrentDepth = depth
	t.progress.CurrentBreadth = breadth
	t.progress.TotalQueries += len(queries)
	if len(queries) > 0 {
		t.progress.CurrentQuery = queries[0].Query
	}
	t.seq++
	t.mu.Unlock()

	t.publish()
}

func (t *progressTracker) complete() {
	t.mu.Lock()
	t.progress.CompletedQueries++
	t.seq++
	t.mu.Unlock()

	t.publish()
}

func (t *progressTracker) publish() {
	if t.onProgress == nil {
		return
	}
	for {
		// Whoever holds hook picks up our snapshot before it lets go.
		if !t.hook.TryLock() {
			return
		}
		for {
			t.mu.Lock()
			if t.delivered == t.seq {
				t.mu.Unlock()
				break
			}
			snapshot, seq := t.progress, t.seq
			t.mu.Unlock()

			t.onProgress(snapshot)

			t.mu.Lock()
			t.delivered = seq
			t.mu.Unlock()
		}
		t.hook.Unlock()

		t.mu.Lock()
		pending := t.delivered != t.seq
		t.mu.Unlock()
		if !pending {
			return
		}
	}
}
