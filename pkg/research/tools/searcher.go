package tools

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewSearcher returns the search backend selected by SEARCH_PROVIDER.
func NewSearcher(cfg *config.Config) (research.Searcher, error) {
	switch cfg.SearchProvider {
	case "", "firecrawl":
		if cfg.FirecrawlKey == "" && cfg.FirecrawlBaseURL == DefaultFirecrawlBaseURL {
			return nil, fmt.Errorf("FIRECRAWL_KEY is not set")
		}
		return NewFirecrawl(cfg.FirecrawlKey, cfg.FirecrawlBaseURL, cfg.FirecrawlRPM), nil
	case "arxiv":
		return NewArxiv(), nil
	default:
		return nil, fmt.Errorf("invalid search provider: %s", cfg.SearchProvider)
	}
}
