package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/iad/internal/config"
	"github.com/apexion-ai/iad/internal/provider"
)

// echoProvider summarizes by echoing the first line after "Source: ".
type echoProvider struct {
	mu    sync.Mutex
	calls int
	fail  string // sources containing this text fail
}

func (p *echoProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	msg := req.Messages[0].Text
	if p.fail != "" && strings.Contains(msg, p.fail) {
		return nil, errors.New("model unavailable")
	}
	title := ""
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(line, "Source: ") {
			title = strings.TrimPrefix(line, "Source: ")
			break
		}
	}
	ch := make(chan provider.Event, 2)
	ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: "summary of " + title}
	ch <- provider.Event{Type: provider.EventDone, Usage: &provider.Usage{InputTokens: 100, OutputTokens: 20}}
	close(ch)
	return ch, nil
}

func (p *echoProvider) Name() string         { return "echo" }
func (p *echoProvider) DefaultModel() string { return "echo" }

func TestSummarizeAll_OrderAndUsage(t *testing.T) {
	p := &echoProvider{fail: "broken"}
	s := &Summarizer{Provider: p, Log: zerolog.Nop()}

	sources := []Source{
		{Title: "alpha", Text: "a"},
		{Title: "broken", Text: "b"},
		{Title: "gamma", Text: "c"},
	}
	out, usage := s.SummarizeAll(context.Background(), sources, "move abroad")
	require.Len(t, out, 3)
	assert.Equal(t, "summary of alpha", out[0].Text)
	assert.Error(t, out[1].Err)
	assert.Equal(t, "summary of gamma", out[2].Text)
	assert.Equal(t, provider.Usage{InputTokens: 200, OutputTokens: 40}, usage)
	assert.Equal(t, 3, p.calls)
}

func TestFindingsContext(t *testing.T) {
	f := Findings{Summaries: []Summary{
		{Source: Source{Title: "Document cv.pdf"}, Text: "Ten years of Go."},
		{Source: Source{Title: "Page", URL: "https://x.example"}, Text: "Salaries up."},
		{Source: Source{Title: "Bad"}, Err: errors.New("x")},
	}}
	assert.Equal(t, "Document cv.pdf:\nTen years of Go.\n\nPage (https://x.example):\nSalaries up.", f.Context())
}

func newTestResearcher(p provider.Provider) *Researcher {
	cfg := config.DefaultConfig()
	return New(cfg, p, provider.EstimateTokens, zerolog.Nop())
}

func TestResearcher_Document(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "offer.txt")
	require.NoError(t, os.WriteFile(path, []byte("Base salary 9000, remote two days."), 0o644))

	p := &echoProvider{}
	f, err := newTestResearcher(p).Document(context.Background(), path, "accept offer?")
	require.NoError(t, err)
	require.Len(t, f.Summaries, 1)
	assert.Equal(t, "summary of Document offer.txt", f.Summaries[0].Text)
	assert.Equal(t, 120, f.Usage.Total())

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("   "), 0o644))
	f, err = newTestResearcher(p).Document(context.Background(), empty, "")
	require.NoError(t, err)
	assert.Empty(t, f.Summaries)
	assert.Equal(t, 1, p.calls)
}

func TestResearcher_WebFallsBackToSnippet(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("full page"))
	}))
	defer page.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"title":"ok","url":"` + page.URL + `/ok","description":"s1"},
			{"title":"gone","url":"` + page.URL + `/gone","description":"s2"}]}`))
	}))
	defer search.Close()

	p := &echoProvider{}
	r := newTestResearcher(p)
	r.Searcher = NewSearcher("jina", "")
	r.Searcher.Endpoint = search.URL

	f, err := r.Web(context.Background(), "city bikes", "commute")
	require.NoError(t, err)
	require.Len(t, f.Summaries, 2)
	assert.Equal(t, "full page", f.Summaries[0].Source.Text)
	assert.Equal(t, "s2", f.Summaries[1].Source.Text)
	assert.Equal(t, 240, f.Usage.Total())
	assert.Contains(t, f.Context(), "summary of ok")
}
