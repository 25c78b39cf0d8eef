package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/runner"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*database.Job
	logs []database.LogEntry
}

func newMemStore() *memStore {
	return &memStore{jobs: map[uuid.UUID]*database.Job{}}
}

func (m *memStore) CreateJob(_ context.Context, req database.NewJob) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &database.Job{ID: uuid.New(), Query: req.Query, Breadth: req.Breadth, Depth: req.Depth, Mode: req.Mode, Status: database.StatusPending, CreatedAt: time.Now()}
	m.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) ListJobs(_ context.Context, limit int) ([]database.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []database.Job
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (m *memStore) update(id uuid.UUID, fn func(*database.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	fn(job)
	return nil
}

func (m *memStore) MarkJobRunning(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(j *database.Job) { j.Status = database.StatusRunning })
}

func (m *memStore) UpdateJobProgress(_ context.Context, id uuid.UUID, progress any) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return m.update(id, func(j *database.Job) { j.Progress = data })
}

func (m *memStore) CompleteJob(_ context.Context, id uuid.UUID, out database.JobOutput) error {
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusCompleted
		j.Report = &out.Report
		j.Learnings = out.Learnings
		j.VisitedURLs = out.VisitedURLs
	})
}

func (m *memStore) FailJob(_ context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(j *database.Job) {
		j.Status = database.StatusFailed
		j.Error = &reason
	})
}

func (m *memStore) InsertLog(_ context.Context, entry database.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = len(m.logs) + 1
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) GetJobLogs(_ context.Context, jobID uuid.UUID) ([]database.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.LogEntry
	for _, l := range m.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeResearcher struct {
	mu   sync.Mutex
	last runner.Options
	err  error
}

func (f *fakeResearcher) Run(_ context.Context, opts runner.Options) (*runner.Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.last = opts
	f.mu.Unlock()

	if opts.Logger != nil {
		opts.Logger.Info("Running query", "query", opts.Query, "delay", time.Second)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(research.Progress{TotalQueries: 1, CompletedQueries: 1})
	}
	if f.err != nil {
		return nil, f.err
	}

	out := &runner.Output{Result: research.Result{Learnings: []string{"learned"}, VisitedURLs: []string{"https://example.com"}}}
	if opts.Mode == research.ModeAnswer {
		out.Answer = "42"
	} else {
		out.Report = "# Report"
	}
	return out, nil
}

type fakeSearcher struct {
	text  string
	topK  int
	jobID uuid.UUID
}

func (f *fakeSearcher) Search(_ context.Context, text string, topK int, jobID uuid.UUID) ([]vectorstore.SearchResult, error) {
	f.text, f.topK, f.jobID = text, topK, jobID
	return []vectorstore.SearchResult{{Learning: vectorstore.Learning{Content: "learned"}, Score: 0.8}}, nil
}

func setupRouter(svc *Service, mcpHandler http.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, mcpHandler).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResearchEndpoint(t *testing.T) {
	researcher := &fakeResearcher{}
	r := setupRouter(NewService(context.Background(), researcher, nil, nil), nil)

	w := doJSON(t, r, http.MethodPost, "/api/research", gin.H{"query": "what?", "breadth": 2, "depth": 0, "mode": "report"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success     bool     `json:"success"`
		Answer      string   `json:"answer"`
		Learnings   []string `json:"learnings"`
		VisitedURLs []string `json:"visitedUrls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Answer != "42" || len(resp.Learnings) != 1 || len(resp.VisitedURLs) != 1 {
		t.Errorf("response = %+v", resp)
	}
	if researcher.last.Mode != research.ModeAnswer || researcher.last.Depth != 0 || researcher.last.Breadth != 2 {
		t.Errorf("runner options = %+v", researcher.last)
	}
}

func TestGenerateReportEndpoint(t *testing.T) {
	researcher := &fakeResearcher{}
	r := setupRouter(NewService(context.Background(), researcher, nil, nil), nil)

	w := doJSON(t, r, http.MethodPost, "/api/generate-report", gin.H{"query": "topic"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if researcher.last.Depth != runner.DefaultDepth || researcher.last.Breadth != runner.DefaultBreadth {
		t.Errorf("defaults not applied: %+v", researcher.last)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["report"] != "# Report" {
		t.Errorf("report = %v", resp["report"])
	}
}

func TestResearchEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   any
		status int
	}{
		{name: "missing query", body: gin.H{"breadth": 2}, status: http.StatusBadRequest},
		{name: "breadth out of range", body: gin.H{"query": "x", "breadth": 99}, status: http.StatusBadRequest},
		{name: "runner failure", err: errors.New("llm down"), body: gin.H{"query": "x"}, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(NewService(context.Background(), &fakeResearcher{err: tt.err}, nil, nil), nil)
			w := doJSON(t, r, http.MethodPost, "/api/research", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	store := newMemStore()
	svc := NewService(context.Background(), &fakeResearcher{}, store, nil)
	r := setupRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", gin.H{"query": "topic", "breadth": 3, "depth": 1})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var created database.Job
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Breadth != 3 || created.Depth != 1 || created.Mode != string(research.ModeReport) {
		t.Errorf("created job = %+v", created)
	}

	svc.Wait()

	w = doJSON(t, r, http.MethodGet, "/api/jobs/"+created.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var job database.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != database.StatusCompleted || job.Report == nil || *job.Report != "# Report" {
		t.Errorf("job = %+v", job)
	}
	if len(job.Progress) == 0 {
		t.Error("progress was not saved")
	}

	w = doJSON(t, r, http.MethodGet, "/api/jobs/"+created.ID.String()+"/logs", nil)
	var logs []database.LogEntry
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs) < 2 {
		t.Fatalf("got %d log entries, want at least 2", len(logs))
	}
	var meta map[string]any
	if err := json.Unmarshal(logs[0].Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta["query"] != "topic" || meta["job_id"] != created.ID.String() || meta["delay"] != "1s" {
		t.Errorf("log metadata = %v", meta)
	}

	w = doJSON(t, r, http.MethodGet, "/api/jobs", nil)
	var jobs []database.Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("listed %d jobs, want 1", len(jobs))
	}
}

func TestJobFailure(t *testing.T) {
	store := newMemStore()
	svc := NewService(context.Background(), &fakeResearcher{err: errors.New("no queries")}, store, nil)
	r := setupRouter(svc, nil)

	w := doJSON(t, r, http.MethodPost, "/api/jobs", gin.H{"query": "topic"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d", w.Code)
	}
	var created database.Job
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	svc.Wait()

	job, err := store.GetJob(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if job.Status != database.StatusFailed || job.Error == nil {
		t.Errorf("job = %+v, want failed with a reason", job)
	}
}

func TestJobEndpointsErrors(t *testing.T) {
	withStore := setupRouter(NewService(context.Background(), &fakeResearcher{}, newMemStore(), nil), nil)
	withoutStore := setupRouter(NewService(context.Background(), &fakeResearcher{}, nil, nil), nil)

	tests := []struct {
		name   string
		router *gin.Engine
		method string
		path   string
		body   any
		status int
	}{
		{"invalid id", withStore, http.MethodGet, "/api/jobs/not-a-uuid", nil, http.StatusBadRequest},
		{"unknown job", withStore, http.MethodGet, "/api/jobs/" + uuid.NewString(), nil, http.StatusNotFound},
		{"unknown job logs", withStore, http.MethodGet, "/api/jobs/" + uuid.NewString() + "/logs", nil, http.StatusNotFound},
		{"invalid depth", withStore, http.MethodPost, "/api/jobs", gin.H{"query": "x", "depth": 9}, http.StatusBadRequest},
		{"no storage create", withoutStore, http.MethodPost, "/api/jobs", gin.H{"query": "x"}, http.StatusServiceUnavailable},
		{"no storage list", withoutStore, http.MethodGet, "/api/jobs", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, tt.router, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestSearchLearningsEndpoint(t *testing.T) {
	searcher := &fakeSearcher{}
	r := setupRouter(NewService(context.Background(), &fakeResearcher{}, nil, searcher), nil)
	jobID := uuid.New()

	w := doJSON(t, r, http.MethodGet, "/api/learnings/search?q=solar&topK=3&jobId="+jobID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if searcher.text != "solar" || searcher.topK != 3 || searcher.jobID != jobID {
		t.Errorf("searcher got %q %d %s", searcher.text, searcher.topK, searcher.jobID)
	}

	for _, path := range []string{"/api/learnings/search", "/api/learnings/search?q=x&topK=0", "/api/learnings/search?q=x&jobId=bad"} {
		if w := doJSON(t, r, http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}

	noIndex := setupRouter(NewService(context.Background(), &fakeResearcher{}, nil, nil), nil)
	if w := doJSON(t, noIndex, http.MethodGet, "/api/learnings/search?q=x", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without index: status = %d, want 503", w.Code)
	}
}

func TestMCPDeepResearchTool(t *testing.T) {
	ctx := context.Background()
	researcher := &fakeResearcher{}
	srv := NewMCPServer(researcher, "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      DeepResearchTool,
		Arguments: map[string]any{"query": "topic", "mode": "answer", "depth": 1},
	})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned an error result: %+v", res.Content)
	}
	if len(res.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok || text.Text != "42" {
		t.Errorf("content = %#v, want answer text", res.Content[0])
	}
	if researcher.last.Mode != research.ModeAnswer || researcher.last.Depth != 1 {
		t.Errorf("runner options = %+v", researcher.last)
	}
}
