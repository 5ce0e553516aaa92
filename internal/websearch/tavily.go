// Package websearch collects public signals about a company from a web search API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/creditlens/pkg/models"
)

const (
	defaultBaseURL  = "https://api.tavily.com/search"
	perQueryResults = 5
	maxSnippetLen   = 1000
)

// Searcher returns external signals about a subject. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, subjectID string) ([]models.ExternalSignal, error)
}

type group struct {
	name     string
	category models.SignalCategory
	limit    int
	domains  []string
	queries  []string
}

// groups builds the news, legal and presence query sets for a CNPJ.
func groups(cnpj string, maxResults int) []group {
	quoted := `"` + cnpj + `"`
	return []group{
		{
			name:     "news",
			category: models.SignalNews,
			limit:    maxResults / 2,
			queries: []string{
				"CNPJ " + quoted + " notícias",
				"CNPJ " + quoted + " empresa",
			},
		},
		{
			name:     "legal",
			category: models.SignalLitigation,
			limit:    maxResults / 4,
			domains:  []string{"jusbrasil.com.br", "g1.globo.com", "folha.uol.com.br", "estadao.com.br"},
			queries: []string{
				"CNPJ " + quoted + " processo judicial",
				quoted + " execução fiscal",
				quoted + " falência recuperação judicial",
			},
		},
		{
			name:     "presence",
			category: models.SignalOther,
			limit:    maxResults / 4,
			queries: []string{
				quoted + " site oficial",
				quoted + " reclame aqui",
			},
		},
	}
}

// Client queries the Tavily search API.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	http       *http.Client
	logger     *slog.Logger
}

func NewClient(apiKey, baseURL string, maxResults int, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Search runs every query group concurrently. Individual query failures are
// logged and skipped; an error is returned only when every query failed.
func (c *Client) Search(ctx context.Context, subjectID string) ([]models.ExternalSignal, error) {
	gs := groups(subjectID, c.maxResults)
	perGroup := make([][]models.ExternalSignal, len(gs))

	var (
		mu       sync.Mutex
		failures int
		total    int
		lastErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range gs {
		for _, q := range grp.queries {
			total++
			g.Go(func() error {
				results, err := c.query(gctx, q, grp.domains)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures++
					lastErr = err
					c.logger.Warn("search query failed",
						slog.String("group", grp.name),
						slog.String("error", err.Error()))
					return nil
				}
				for _, r := range results {
					perGroup[i] = append(perGroup[i], r.signal(grp.category))
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if total > 0 && failures == total {
		return nil, fmt.Errorf("all %d search queries failed: %w", total, lastErr)
	}

	seen := map[string]bool{}
	out := []models.ExternalSignal{}
	for i, grp := range gs {
		n := 0
		for _, s := range perGroup[i] {
			if n >= grp.limit || len(out) >= c.maxResults {
				break
			}
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			out = append(out, s)
			n++
		}
	}
	return out, nil
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []result `json:"results"`
}

type result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (r result) signal(cat models.SignalCategory) models.ExternalSignal {
	snippet := strings.TrimSpace(r.Content)
	if runes := []rune(snippet); len(runes) > maxSnippetLen {
		snippet = string(runes[:maxSnippetLen])
	}
	rel := r.Score
	if rel < 0 {
		rel = 0
	}
	if rel > 1 {
		rel = 1
	}
	return models.ExternalSignal{
		Title:     strings.TrimSpace(r.Title),
		URL:       r.URL,
		Snippet:   snippet,
		Relevance: rel,
		Category:  cat,
	}
}

var errStatus = errors.New("search API error")

func (c *Client) query(ctx context.Context, q string, domains []string) ([]result, error) {
	body, err := json.Marshal(searchRequest{
		Query:          q,
		SearchDepth:    "basic",
		MaxResults:     perQueryResults,
		IncludeDomains: domains,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w (status %d): %s", errStatus, resp.StatusCode, string(raw))
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return sr.Results, nil
}
