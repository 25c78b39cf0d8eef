package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"

type firecrawlSearchRequest struct {
	Query         string                 `json:"query"`
	Limit         int                    `json:"limit"`
	Timeout       int                    `json:"timeout,omitempty"`
	ScrapeOptions firecrawlScrapeOptions `json:"scrapeOptions"`
}

type firecrawlScrapeOptions struct {
	Formats []string `json:"formats"`
}

type firecrawlSearchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error"`
}

// Firecrawl searches the web and scrapes each hit to markdown.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewFirecrawl creates a Firecrawl search client. A positive requestsPerMinute
// paces outgoing calls.
func NewFirecrawl(apiKey, baseURL string, requestsPerMinute int) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlBaseURL
	}
	f := &Firecrawl{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	if requestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return f
}

var _ research.Searcher = (*Firecrawl)(nil)

// Search runs a Firecrawl search. The deadline of ctx is forwarded as the
// server-side timeout.
func (f *Firecrawl) Search(ctx context.Context, query string, limit int) ([]research.Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("firecrawl rate limiter: %w", err)
		}
	}

	reqBody := firecrawlSearchRequest{
		Query:         query,
		Limit:         limit,
		ScrapeOptions: firecrawlScrapeOptions{Formats: []string{"markdown"}},
	}
	if deadline, ok := ctx.Deadline(); ok {
		reqBody.Timeout = int(time.Until(deadline).Milliseconds())
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	clientReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	clientReq.Header.Set("Content-Type", "application/json")
	if f.APIKey != "" {
		clientReq.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.client.Do(clientReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firecrawl request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var searchResp firecrawlSearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search response: %w", err)
	}
	if !searchResp.Success {
		if searchResp.Error == "" {
			return nil, fmt.Errorf("firecrawl search failed without an error message")
		}
		return nil, fmt.Errorf("firecrawl search failed: %s", searchResp.Error)
	}

	docs := make([]research.Document, 0, len(searchResp.Data))
	for _, item := range searchResp.Data {
		docs = append(docs, research.Document{
			URL:     item.URL,
			Title:   item.Title,
			Content: item.Markdown,
		})
	}

	slog.Debug("Firecrawl search complete", "query", query, "count", len(docs))
	return docs, nil
}
