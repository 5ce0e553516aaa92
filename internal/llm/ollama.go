package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaClient completes chats against a local Ollama server.
type OllamaClient struct {
	cli      *api.Client
	model    string
	defaults settings
}

// NewOllamaClient reads OLLAMA_HOST from the environment.
func NewOllamaClient(model string, opts ...Option) (*OllamaClient, error) {
	cli, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &OllamaClient{
		cli:      cli,
		model:    model,
		defaults: applyOptions(settings{temperature: defaultTemperature, maxTokens: defaultMaxTokens}, opts),
	}, nil
}

func (c *OllamaClient) Complete(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	s := applyOptions(c.defaults, opts)

	msgs := s.withSystem(messages)
	apiMsgs := make([]api.Message, len(msgs))
	for i, m := range msgs {
		apiMsgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:     c.model,
		Messages:  apiMsgs,
		Stream:    &stream,
		KeepAlive: &api.Duration{Duration: 10 * time.Minute},
		Options: map[string]any{
			"temperature": s.temperature,
			"num_predict": s.maxTokens,
		},
	}
	if s.jsonOutput {
		req.Format = []byte(`"json"`)
	}

	var sb strings.Builder
	err := c.cli.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *OllamaClient) Model() string { return c.model }
