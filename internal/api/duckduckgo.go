package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

const DuckDuckGoAPIURL = "https://api.duckduckgo.com/"

// DuckDuckGoResponse is the subset of the Instant Answer API we read.
type DuckDuckGoResponse struct {
	Heading       string            `json:"Heading"`
	AbstractText  string            `json:"AbstractText"`
	AbstractURL   string            `json:"AbstractURL"`
	RelatedTopics []DuckDuckGoTopic `json:"RelatedTopics"`
}

// DuckDuckGoTopic is a related topic; grouped topics nest further topics.
type DuckDuckGoTopic struct {
	Text     string            `json:"Text"`
	FirstURL string            `json:"FirstURL"`
	Name     string            `json:"Name,omitempty"`
	Topics   []DuckDuckGoTopic `json:"Topics,omitempty"`
}

// DuckDuckGoClient queries the keyless DuckDuckGo Instant Answer API.
type DuckDuckGoClient struct {
	*BaseSearchClient
	endpoint string
}

var _ SearchClient = (*DuckDuckGoClient)(nil)

// NewDuckDuckGoClient creates a DuckDuckGo client
func NewDuckDuckGoClient(endpoint string, logger *logging.Logger) *DuckDuckGoClient {
	if endpoint == "" {
		endpoint = DuckDuckGoAPIURL
	}
	return &DuckDuckGoClient{
		BaseSearchClient: NewBaseSearchClient(nil, "DuckDuckGo", logger),
		endpoint:         endpoint,
	}
}

// Search performs a web search using DuckDuckGo
func (c *DuckDuckGoClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	resp, err := c.doSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	return resp.ToSearchResponse().Limit(constants.DefaultMaxSearchHits), nil
}

func (c *DuckDuckGoClient) doSearch(ctx context.Context, query string) (*DuckDuckGoResponse, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var ddgResp DuckDuckGoResponse
	if err := c.fetchJSON(req, &ddgResp); err != nil {
		return nil, err
	}
	return &ddgResp, nil
}

// ToSearchResponse flattens the abstract and related topics into results.
func (r *DuckDuckGoResponse) ToSearchResponse() *SearchResponse {
	var results []SearchResult
	if r.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   r.Heading,
			URL:     r.AbstractURL,
			Content: r.AbstractText,
		})
	}
	var walk func(topics []DuckDuckGoTopic)
	walk = func(topics []DuckDuckGoTopic) {
		for _, t := range topics {
			if len(t.Topics) > 0 {
				walk(t.Topics)
				continue
			}
			if t.Text == "" {
				continue
			}
			title := t.Text
			if i := strings.Index(title, " - "); i > 0 {
				title = title[:i]
			}
			results = append(results, SearchResult{Title: title, URL: t.FirstURL, Content: t.Text})
		}
	}
	walk(r.RelatedTopics)
	return &SearchResponse{Results: results}
}
