package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maraichr/creditlens/internal/config"
)

const (
	defaultOpenRouterModel = "openai/text-embedding-3-small"
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1/embeddings"
	defaultDimensions      = 1024

	openRouterMaxAttempts = 3
	openRouterRetryDelay  = time.Second
)

// batchPolicy bounds one embeddings request. Retrieval questions are short
// and few, so they go in one request; statement chunks are long, so document
// requests are cut by total characters as well as count.
type batchPolicy struct {
	maxItems    int
	maxChars    int
	concurrency int
}

var batchPolicies = map[string]batchPolicy{
	InputQuery:    {maxItems: 64, maxChars: 32_000, concurrency: 1},
	InputDocument: {maxItems: 32, maxChars: 48_000, concurrency: 4},
}

// OpenRouterClient embeds through OpenRouter's OpenAI-compatible endpoint.
type OpenRouterClient struct {
	apiKey     string
	model      string
	endpoint   string
	dimensions int
	http       *http.Client
}

// NewOpenRouterClient creates a client; the embeddings endpoint is derived
// from OPENROUTER_BASE_URL unless OPENROUTER_BASE_URL_EMBEDDINGS names it.
func NewOpenRouterClient(cfg config.OpenRouterConfig) (*OpenRouterClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is required")
	}
	c := &OpenRouterClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   embeddingsEndpoint(cfg),
		dimensions: cfg.Dimensions,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
	if c.model == "" {
		c.model = defaultOpenRouterModel
	}
	if c.dimensions <= 0 {
		c.dimensions = defaultDimensions
	}
	return c, nil
}

func embeddingsEndpoint(cfg config.OpenRouterConfig) string {
	if cfg.BaseURLEmbeddings != "" {
		return cfg.BaseURLEmbeddings
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	switch {
	case base == "":
		return defaultOpenRouterURL
	case strings.HasSuffix(base, "/embeddings"):
		return base
	case strings.HasSuffix(base, "/api/v1"):
		return base + "/embeddings"
	case base == "https://openrouter.ai":
		return defaultOpenRouterURL
	}
	return base
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// statusError is a non-200 reply. Rate limits and server errors are retried.
type statusError struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openrouter embeddings: status %d: %s", e.status, e.body)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// EmbedBatch embeds texts as queries or documents. Input order is preserved.
func (c *OpenRouterClient) EmbedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	policy, ok := batchPolicies[inputType]
	if !ok {
		policy = batchPolicies[InputDocument]
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = PrepareInput(c.model, inputType, t)
	}
	spans := splitBatches(inputs, policy)

	out := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(policy.concurrency)
	for _, sp := range spans {
		eg.Go(func() error {
			vecs, err := c.embedWithRetry(egCtx, inputs[sp[0]:sp[1]])
			if err != nil {
				return fmt.Errorf("%s batch %d-%d: %w", inputType, sp[0], sp[1], err)
			}
			copy(out[sp[0]:sp[1]], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// splitBatches cuts inputs into [start, end) spans within the policy. A text
// longer than maxChars gets a span of its own.
func splitBatches(inputs []string, p batchPolicy) [][2]int {
	var spans [][2]int
	start, chars := 0, 0
	for i, s := range inputs {
		n := len(s)
		if i > start && (i-start >= p.maxItems || chars+n > p.maxChars) {
			spans = append(spans, [2]int{start, i})
			start, chars = i, 0
		}
		chars += n
	}
	return append(spans, [2]int{start, len(inputs)})
}

func (c *OpenRouterClient) embedWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	req := embedRequest{Model: c.model, Input: inputs}
	if strings.HasPrefix(c.model, "openai/text-embedding-3") {
		req.Dimensions = c.dimensions
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := range openRouterMaxAttempts {
		vecs, err := c.post(ctx, body, len(inputs))
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var se *statusError
		if !errors.As(err, &se) || !se.retryable() {
			return nil, err
		}
		wait := se.retryAfter
		if wait == 0 {
			wait = openRouterRetryDelay * time.Duration(1<<attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", openRouterMaxAttempts, lastErr)
}

func (c *OpenRouterClient) post(ctx context.Context, body []byte, n int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
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

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		se := &statusError{status: resp.StatusCode, body: snippet(raw)}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			se.retryAfter = time.Duration(s) * time.Second
		}
		return nil, se
	}

	var result embedResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w: %s", err, snippet(raw))
	}
	if result.Error != nil {
		return nil, fmt.Errorf("openrouter embeddings: %s", result.Error.Message)
	}
	if len(result.Data) != n {
		return nil, fmt.Errorf("openrouter returned %d embeddings for %d inputs", len(result.Data), n)
	}

	vecs := make([][]float32, n)
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("openrouter returned embedding index %d for %d inputs", d.Index, n)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// ModelID returns the model identifier.
func (c *OpenRouterClient) ModelID() string { return c.model }
