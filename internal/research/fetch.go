package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	fetchTimeout     = 30 * time.Second
	fetchMaxBodySize = 5 * 1024 * 1024 // 5MB
	fetchMaxLines    = 2000
	fetchCacheTTL    = 15 * time.Minute
)

type fetchCacheEntry struct {
	content   string
	fetchedAt time.Time
}

// Fetcher downloads web pages as markdown, with a short-lived cache.
type Fetcher struct {
	Client *http.Client

	mu    sync.Mutex
	cache map[string]fetchCacheEntry
	now   func() time.Time
}

// NewFetcher creates a Fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: fetchTimeout},
		cache:  make(map[string]fetchCacheEntry),
		now:    time.Now,
	}
}

func (f *Fetcher) cacheGet(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[key]
	if !ok || f.now().Sub(e.fetchedAt) > fetchCacheTTL {
		if ok {
			delete(f.cache, key)
		}
		return "", false
	}
	return e.content, true
}

func (f *Fetcher) cacheSet(key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Evict expired entries when cache grows large.
	if len(f.cache) > 100 {
		now := f.now()
		for k, e := range f.cache {
			if now.Sub(e.fetchedAt) > fetchCacheTTL {
				delete(f.cache, k)
			}
		}
	}
	f.cache[key] = fetchCacheEntry{content: content, fetchedAt: f.now()}
}

// Fetch downloads rawURL and returns its content as markdown.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("only http and https URLs are supported, got %q", rawURL)
	}
	fetchURL := u.String()

	if cached, ok := f.cacheGet(fetchURL); ok {
		return cached, nil
	}

	client := *f.Client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("too many redirects")
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain,text/markdown,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d %s for %s", resp.StatusCode, http.StatusText(resp.StatusCode), fetchURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var content string
	switch {
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		md, err := htmltomarkdown.ConvertString(string(body))
		if err != nil {
			content = string(body)
		} else {
			content = md
		}
	case strings.Contains(contentType, "text/markdown"),
		strings.Contains(contentType, "text/plain"):
		content = string(body)
	default:
		if len(body) == 0 || !isLikelyText(body) {
			return "", fmt.Errorf("unsupported content type: %s", contentType)
		}
		content = string(body)
	}

	content = truncateLines(strings.TrimSpace(content), fetchMaxLines)
	f.cacheSet(fetchURL, content)
	return content, nil
}

// truncateLines keeps only the first maxLines lines.
func truncateLines(s string, maxLines int) string {
	idx := 0
	for i := 0; i < maxLines; i++ {
		next := strings.IndexByte(s[idx:], '\n')
		if next == -1 {
			return s
		}
		idx += next + 1
	}
	return s[:idx] + fmt.Sprintf("\n[Content truncated to first %d lines]", maxLines)
}

// isLikelyText checks if content is likely text (not binary).
func isLikelyText(data []byte) bool {
	check := data
	if len(check) > 512 {
		check = check[:512]
	}
	for _, b := range check {
		if b == 0 {
			return false
		}
	}
	return true
}
