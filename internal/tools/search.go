package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
)

// WebSearchName is the tool id exposed to models
const WebSearchName = "web_search"

// WebSearchTool queries a search backend and returns up to MaxHits ordered hits.
type WebSearchTool struct {
	client  api.SearchClient
	maxHits int
}

// NewWebSearchTool wraps client; maxHits <= 0 means constants.DefaultMaxSearchHits.
func NewWebSearchTool(client api.SearchClient, maxHits int) *WebSearchTool {
	if maxHits <= 0 || maxHits > constants.DefaultMaxSearchHits {
		maxHits = constants.DefaultMaxSearchHits
	}
	return &WebSearchTool{client: client, maxHits: maxHits}
}

// Spec implements Tool.
func (t *WebSearchTool) Spec() api.ToolSpec {
	return api.ToolSpec{
		Name:        WebSearchName,
		Description: "Search the web for current documentation, error messages, or release notes. Returns up to 5 results with title, snippet, and url.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query, e.g. 'nginx 502 bad gateway upstream prematurely closed'",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Run implements Tool.
func (t *WebSearchTool) Run(ctx context.Context, args map[string]any) (Result, error) {
	query, _, err := stringArg(args, "query")
	if err != nil {
		return Result{}, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, invalidArgs("query is required")
	}

	resp, err := t.client.Search(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("search failed: %w", err)
	}
	resp = resp.Limit(t.maxHits)

	hits := resp.Results
	if hits == nil {
		hits = []api.SearchResult{}
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode results: %w", err)
	}
	return Result{Text: string(data)}, nil
}
