package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

const BraveAPIURL = "https://api.search.brave.com/res/v1/web/search"

type braveResponse struct {
	Web struct {
		Results []braveHit `json:"results"`
	} `json:"web"`
}

type braveHit struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	Age           string   `json:"age,omitempty"`
	ExtraSnippets []string `json:"extra_snippets,omitempty"`
}

// snippet joins the description with any extra snippets, plus the page age
// when Brave reports one. Release notes and changelogs date quickly.
func (h braveHit) snippet() string {
	parts := append([]string{h.Description}, h.ExtraSnippets...)
	text := strings.TrimSpace(strings.Join(parts, " "))
	if h.Age != "" {
		text = fmt.Sprintf("(%s) %s", h.Age, text)
	}
	return text
}

// BraveClient searches with the Brave Search API. Keys go in the
// X-Subscription-Token header and rotate on 401/403/429.
type BraveClient struct {
	*BaseSearchClient
	endpoint string
}

var _ SearchClient = (*BraveClient)(nil)

// NewBraveClient creates a Brave client; an empty endpoint means BraveAPIURL.
func NewBraveClient(keys *KeyRotator, endpoint string, logger *logging.Logger) *BraveClient {
	if endpoint == "" {
		endpoint = BraveAPIURL
	}
	return &BraveClient{
		BaseSearchClient: NewBaseSearchClient(keys, "Brave", logger),
		endpoint:         endpoint,
	}
}

// Search implements SearchClient.
func (c *BraveClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	hits, err := SearchWithRetry(ctx, query, c.BaseSearchClient, c.query)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{Title: h.Title, URL: h.URL, Content: h.snippet()})
	}
	return (&SearchResponse{Results: results}).Limit(constants.DefaultMaxSearchHits), nil
}

func (c *BraveClient) query(ctx context.Context, query string) ([]braveHit, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid Brave endpoint: %w", err)
	}
	params := reqURL.Query()
	params.Set("q", query)
	params.Set("count", strconv.Itoa(constants.DefaultMaxSearchHits))
	params.Set("text_decorations", "false")
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", c.GetCurrentKey())

	var resp braveResponse
	if err := c.fetchJSON(req, &resp); err != nil {
		return nil, err
	}
	return resp.Web.Results, nil
}
