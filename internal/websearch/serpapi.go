// Package websearch provides the web-search tool used by LLM nodes when
// document context is insufficient.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const defaultBaseURL = "https://serpapi.com/search"

// Result is one organic web search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Rank    int    `json:"rank"`
}

// Client queries SerpAPI's Google engine.
type Client struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

// New creates a client. If apiKey is empty it falls back to SERPAPI_API_KEY;
// a client with no key answers every search with an empty result set, which
// keeps web-search-enabled workflows usable without the credential.
func New(apiKey string) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("SERPAPI_API_KEY")
	}
	baseURL := os.Getenv("SERPAPI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title    string `json:"title"`
		Snippet  string `json:"snippet"`
		Link     string `json:"link"`
		Position int    `json:"position"`
	} `json:"organic_results"`
}

// Search returns up to limit organic results for the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c.apiKey == "" {
		log.Printf("websearch: no API key configured, skipping search")
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("num", strconv.Itoa(limit))
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		const max = 1024
		if len(body) > max {
			body = body[:max]
		}
		return nil, fmt.Errorf("websearch: unexpected status %s: %s", resp.Status, string(body))
	}

	var out serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	results := make([]Result, 0, limit)
	for _, r := range out.OrganicResults {
		if len(results) >= limit {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			Snippet: r.Snippet,
			Source:  r.Link,
			Rank:    r.Position,
		})
	}
	log.Printf("websearch: %d results for %q", len(results), query)
	return results, nil
}
