package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

const TavilyAPIURL = "https://api.tavily.com/search"

// TavilyRequest is the Tavily search request body
type TavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth,omitempty"`
}

// TavilyResponse represents the Tavily search response
type TavilyResponse struct {
	Query   string         `json:"query"`
	Results []TavilyResult `json:"results"`
}

// TavilyResult represents a single search result
type TavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// TavilyClient is the Tavily search API client
type TavilyClient struct {
	*BaseSearchClient
	endpoint string
}

var _ SearchClient = (*TavilyClient)(nil)

// NewTavilyClient creates a new Tavily client
func NewTavilyClient(keys *KeyRotator, endpoint string, logger *logging.Logger) *TavilyClient {
	if endpoint == "" {
		endpoint = TavilyAPIURL
	}
	return &TavilyClient{
		BaseSearchClient: NewBaseSearchClient(keys, "Tavily", logger),
		endpoint:         endpoint,
	}
}

// Search performs a web search using Tavily
func (c *TavilyClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	resp, err := SearchWithRetry(ctx, query, c.BaseSearchClient, c.doSearch)
	if err != nil {
		return nil, err
	}
	return resp.ToSearchResponse().Limit(constants.DefaultMaxSearchHits), nil
}

func (c *TavilyClient) doSearch(ctx context.Context, query string) (*TavilyResponse, error) {
	jsonData, err := json.Marshal(TavilyRequest{
		Query:       query,
		MaxResults:  constants.DefaultMaxSearchHits,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.GetCurrentKey())

	var tavilyResp TavilyResponse
	if err := c.fetchJSON(req, &tavilyResp); err != nil {
		return nil, err
	}
	return &tavilyResp, nil
}

// ToSearchResponse converts TavilyResponse to unified SearchResponse
func (r *TavilyResponse) ToSearchResponse() *SearchResponse {
	results := make([]SearchResult, len(r.Results))
	for i, res := range r.Results {
		results[i] = SearchResult{Title: res.Title, URL: res.URL, Content: res.Content}
	}
	return &SearchResponse{Results: results}
}
