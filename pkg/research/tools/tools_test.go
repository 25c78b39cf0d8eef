package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikeboe/deep-research/pkg/config"
)

func TestFirecrawlSearch(t *testing.T) {
	var got firecrawlSearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s, want /v1/search", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"url":"https://a.example","title":"A","markdown":"# A\ncontent"},
			{"url":"https://b.example","title":"B","markdown":""}
		]}`))
	}))
	defer srv.Close()

	fc := NewFirecrawl("secret", srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	docs, err := fc.Search(ctx, "golang", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].URL != "https://a.example" || !strings.Contains(docs[0].Content, "content") {
		t.Errorf("unexpected first doc: %+v", docs[0])
	}
	if docs[1].Content != "" {
		t.Errorf("second doc should have empty content, got %q", docs[1].Content)
	}
	if got.Query != "golang" || got.Limit != 5 {
		t.Errorf("request = %+v", got)
	}
	if len(got.ScrapeOptions.Formats) != 1 || got.ScrapeOptions.Formats[0] != "markdown" {
		t.Errorf("scrape formats = %v, want [markdown]", got.ScrapeOptions.Formats)
	}
	if got.Timeout <= 0 || got.Timeout > 15000 {
		t.Errorf("timeout = %d, want (0, 15000]", got.Timeout)
	}
}

func TestFirecrawlSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"Rate limit exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewFirecrawl("k", srv.URL, 0).Search(context.Background(), "q", 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q should carry the status", err)
	}
}

func TestFirecrawlSearchUnsuccessfulResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"with message", `{"success":false,"error":"bad query"}`, "bad query"},
		{"without message", `{"success":false,"data":[]}`, "without an error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			docs, err := NewFirecrawl("k", srv.URL, 0).Search(context.Background(), "q", 5)
			if err == nil {
				t.Fatalf("expected error, got %d docs", len(docs))
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1234.5678v1</id>
    <title>Attention Is
      All You Need</title>
    <summary>  We propose the Transformer.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <link href="http://arxiv.org/abs/1234.5678v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1234.5678v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/9999.0001v1</id>
    <title>Empty</title>
    <summary></summary>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("search_query"); q != "all:transformers" {
			t.Errorf("search_query = %q", q)
		}
		if m := r.URL.Query().Get("max_results"); m != "3" {
			t.Errorf("max_results = %q", m)
		}
		_, _ = w.Write([]byte(arxivFeed))
	}))
	defer srv.Close()

	a := NewArxiv()
	a.BaseURL = srv.URL

	docs, err := a.Search(context.Background(), "transformers", 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].URL != "http://arxiv.org/pdf/1234.5678v1" {
		t.Errorf("URL = %q, want pdf link", docs[0].URL)
	}
	if docs[0].Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", docs[0].Title)
	}
	if !strings.Contains(docs[0].Content, "We propose the Transformer.") {
		t.Errorf("Content = %q", docs[0].Content)
	}
	if docs[1].Content != "" || docs[1].URL != "http://arxiv.org/abs/9999.0001v1" {
		t.Errorf("unexpected second doc: %+v", docs[1])
	}
}

func TestNewSearcher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"firecrawl", config.Config{SearchProvider: "firecrawl", FirecrawlKey: "k", FirecrawlBaseURL: DefaultFirecrawlBaseURL}, false},
		{"firecrawl self-hosted without key", config.Config{SearchProvider: "firecrawl", FirecrawlBaseURL: "http://localhost:3002"}, false},
		{"firecrawl missing key", config.Config{SearchProvider: "firecrawl", FirecrawlBaseURL: DefaultFirecrawlBaseURL}, true},
		{"arxiv", config.Config{SearchProvider: "arxiv"}, false},
		{"unknown", config.Config{SearchProvider: "bing"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSearcher(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSearcher() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
