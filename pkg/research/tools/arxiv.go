package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

const DefaultArxivBaseURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches arXiv papers. Abstracts serve as document content.
type Arxiv struct {
	BaseURL string
	client  *http.Client
}

func NewArxiv() *Arxiv {
	return &Arxiv{BaseURL: DefaultArxivBaseURL, client: &http.Client{}}
}

var _ research.Searcher = (*Arxiv)(nil)

// Search queries the arXiv API.
func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]research.Document, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	docs := make([]research.Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		docs = append(docs, entryToDocument(entry))
	}
	return docs, nil
}

func entryToDocument(entry ArxivEntry) research.Document {
	link := strings.TrimSpace(entry.ID)
	for _, l := range entry.Link {
		if l.Type == "application/pdf" {
			link = l.Href
			break
		}
	}

	title := strings.Join(strings.Fields(entry.Title), " ")
	summary := strings.TrimSpace(entry.Summary)

	var content string
	if summary != "" {
		content = fmt.Sprintf("# %s\n\nPublished: %s\n\n%s", title, entry.Published, summary)
	}

	return research.Document{URL: link, Title: title, Content: content}
}
