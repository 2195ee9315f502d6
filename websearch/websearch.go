// Package websearch queries the DuckDuckGo Instant Answer API. The client
// satisfies smart.Searcher and can also expose itself as an in-process
// tool for providers.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openplugin/openplugin-go/provider"
	"github.com/openplugin/openplugin-go/schema"
	"github.com/openplugin/openplugin-go/smart"
)

const (
	defaultBaseURL    = "https://api.duckduckgo.com"
	defaultUserAgent  = "Mozilla/5.0 (compatible; openplugin/1.0)"
	defaultMaxResults = 5
)

// Client queries DuckDuckGo.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a search client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DuckDuckGo API response structure
type ddgResponse struct {
	Abstract      string      `json:"Abstract"`
	AbstractURL   string      `json:"AbstractURL"`
	AbstractText  string      `json:"AbstractText"`
	Heading       string      `json:"Heading"`
	RelatedTopics []ddgTopic  `json:"RelatedTopics"`
	Results       []ddgResult `json:"Results"`
}

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
	Result   string `json:"Result"`
	// Nested topics
	Topics []ddgTopic `json:"Topics"`
}

type ddgResult struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
	Result   string `json:"Result"`
}

// Search implements smart.Searcher.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]smart.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	apiURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching search results: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var ddgResp ddgResponse
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return collectResults(&ddgResp, maxResults), nil
}

// collectResults flattens the instant-answer payload. The abstract leads
// when present, then direct results, then related topics (which may nest
// one level).
func collectResults(resp *ddgResponse, maxResults int) []smart.SearchResult {
	var results []smart.SearchResult

	if resp.Abstract != "" && resp.AbstractURL != "" {
		results = append(results, smart.SearchResult{
			Title:   resp.Heading,
			URL:     resp.AbstractURL,
			Snippet: resp.Abstract,
		})
	}

	for _, r := range resp.Results {
		if len(results) >= maxResults {
			return results
		}
		if r.FirstURL != "" {
			results = append(results, smart.SearchResult{
				Title:   extractLinkText(r.Result),
				URL:     r.FirstURL,
				Snippet: r.Text,
			})
		}
	}

	for _, topic := range resp.RelatedTopics {
		if len(results) >= maxResults {
			return results
		}
		if len(topic.Topics) > 0 {
			for _, sub := range topic.Topics {
				if len(results) >= maxResults {
					return results
				}
				if sub.FirstURL != "" {
					results = append(results, smart.SearchResult{
						Title:   extractLinkText(sub.Result),
						URL:     sub.FirstURL,
						Snippet: sub.Text,
					})
				}
			}
		} else if topic.FirstURL != "" {
			results = append(results, smart.SearchResult{
				Title:   extractLinkText(topic.Result),
				URL:     topic.FirstURL,
				Snippet: topic.Text,
			})
		}
	}

	return results
}

// extractLinkText pulls the anchor text out of the HTML fragment
// DuckDuckGo returns in Result fields.
func extractLinkText(result string) string {
	if result == "" {
		return ""
	}

	start := 0
	for i := 0; i < len(result); i++ {
		if result[i] == '>' {
			start = i + 1
			break
		}
	}

	end := len(result)
	for i := start; i < len(result)-3; i++ {
		if result[i:i+4] == "</a>" {
			end = i
			break
		}
	}

	if start > 0 && end > start {
		return result[start:end]
	}
	return result
}

type searchArgs struct {
	Query      string `json:"query" jsonschema:"required,description=Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return (default: 5)"`
}

type searchOutput struct {
	Results []smart.SearchResult `json:"results"`
}

// Tool exposes the client as an in-process tool for providers.
func (c *Client) Tool() (provider.LocalTool, error) {
	def, err := schema.Def[searchArgs]("web_search",
		"Search the web using DuckDuckGo. Returns search results with titles, URLs, and snippets.")
	if err != nil {
		return provider.LocalTool{}, err
	}

	return provider.LocalTool{
		Def: def,
		Run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args searchArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			results, err := c.Search(ctx, args.Query, args.MaxResults)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(searchOutput{Results: results})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	}, nil
}
