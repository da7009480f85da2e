package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searchTimeout     = 30 * time.Second
	defaultMaxResults = 5
	maxResults        = 20
	userAgent         = "iad/1.0 (decision assistant)"
)

// SearchResult is the common format for search results across backends.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher queries a web search backend.
type Searcher struct {
	Provider string // "tavily", "exa", or "jina"
	APIKey   string
	Client   *http.Client

	// Endpoint overrides the backend URL (tests, proxies).
	Endpoint string
}

// NewSearcher creates a Searcher.
// Provider priority: explicit > tavily (if key set) > jina (free fallback).
func NewSearcher(provider, apiKey string) *Searcher {
	if provider == "" {
		if apiKey != "" {
			provider = "tavily"
		} else {
			provider = "jina"
		}
	}
	return &Searcher{
		Provider: provider,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: searchTimeout},
	}
}

// Search returns up to n results for query.
func (s *Searcher) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if n <= 0 {
		n = defaultMaxResults
	}
	if n > maxResults {
		n = maxResults
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	switch s.Provider {
	case "tavily":
		return s.searchTavily(ctx, query, n)
	case "exa":
		return s.searchExa(ctx, query, n)
	default:
		return s.searchJina(ctx, query, n)
	}
}

func (s *Searcher) endpoint(def string) string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return def
}

func (s *Searcher) do(req *http.Request, backend string, out any) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return fmt.Errorf("%s search request failed: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s search error (HTTP %d): %s", backend, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s search: failed to parse response: %w", backend, err)
	}
	return nil
}

// searchTavily queries the Tavily search API.
func (s *Searcher) searchTavily(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if s.APIKey == "" {
		return nil, errors.New("Tavily API key not configured: set web.search_api_key or TAVILY_API_KEY, or switch to jina")
	}
	body, _ := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  n,
		"search_depth": "basic",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("https://api.tavily.com/search"), strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	var result struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := s.do(req, "Tavily", &result); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

// searchJina queries the Jina Search API (free, no key required).
func (s *Searcher) searchJina(ctx context.Context, query string, n int) ([]SearchResult, error) {
	searchURL := strings.TrimRight(s.endpoint("https://s.jina.ai"), "/") + "/" + url.PathEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	var result struct {
		Data []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Content     string `json:"content"`
		} `json:"data"`
	}
	if err := s.do(req, "Jina", &result); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, n)
	for i, item := range result.Data {
		if i >= n {
			break
		}
		snippet := item.Description
		if snippet == "" {
			snippet = Clip(item.Content, 300)
		}
		out = append(out, SearchResult{Title: item.Title, URL: item.URL, Snippet: snippet})
	}
	return out, nil
}

// searchExa queries the Exa AI search API.
func (s *Searcher) searchExa(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if s.APIKey == "" {
		return nil, errors.New("Exa API key not configured: set web.search_api_key or EXA_API_KEY")
	}
	body, _ := json.Marshal(map[string]any{
		"query":      query,
		"numResults": n,
		"type":       "auto",
		"contents": map[string]any{
			"text": map[string]any{"maxCharacters": 300},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("https://api.exa.ai/search"), strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.APIKey)

	var result struct {
		Results []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
			Text  string `json:"text"`
		} `json:"results"`
	}
	if err := s.do(req, "Exa", &result); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(result.Results))
	for _, r := range result.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Text})
	}
	return out, nil
}

// FormatSearchResults renders results as a numbered list.
func FormatSearchResults(query string, results []SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	if len(results) == 0 {
		sb.WriteString("No results found.")
		return sb.String()
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
