package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlasserver/atlasai/internal/logging"
)

// Search provider names
const (
	SearchBrave      = "brave"
	SearchTavily     = "tavily"
	SearchDuckDuckGo = "duckduckgo"
)

// ErrInvalidSearchProvider is returned for unknown backends.
var ErrInvalidSearchProvider = fmt.Errorf("invalid search provider. Use '%s', '%s', or '%s'", SearchBrave, SearchTavily, SearchDuckDuckGo)

// SearchResult is one hit from a search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"snippet"`
}

// SearchResponse is the unified result of a search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// Limit truncates the response to at most n results.
func (r *SearchResponse) Limit(n int) *SearchResponse {
	if r == nil {
		return &SearchResponse{}
	}
	if n >= 0 && len(r.Results) > n {
		r.Results = r.Results[:n]
	}
	return r
}

// SearchClient is implemented by every web search backend.
type SearchClient interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// SearchConfig selects and configures a search backend.
type SearchConfig struct {
	Provider   string
	BraveKeys  *KeyRotator
	TavilyKeys *KeyRotator
	// BaseURL overrides the backend endpoint; used by tests.
	BaseURL string
}

// NewSearchClient builds the configured backend. Brave and Tavily need keys;
// DuckDuckGo does not.
func NewSearchClient(cfg SearchConfig, logger *logging.Logger) (SearchClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case SearchBrave:
		if cfg.BraveKeys == nil || !cfg.BraveKeys.HasKeys() {
			return nil, fmt.Errorf("brave search requires BRAVE_API_KEYS")
		}
		return NewBraveClient(cfg.BraveKeys, cfg.BaseURL, logger), nil
	case SearchTavily:
		if cfg.TavilyKeys == nil || !cfg.TavilyKeys.HasKeys() {
			return nil, fmt.Errorf("tavily search requires TAVILY_API_KEYS")
		}
		return NewTavilyClient(cfg.TavilyKeys, cfg.BaseURL, logger), nil
	case SearchDuckDuckGo, "":
		return NewDuckDuckGoClient(cfg.BaseURL, logger), nil
	}
	return nil, ErrInvalidSearchProvider
}
