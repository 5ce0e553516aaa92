package llm

import (
	"context"
	"strings"
)

// Completer is implemented by every language model backend.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts ...Option) (string, error)
	Model() string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GroundedInstruction restricts the model to the supplied context.
const GroundedInstruction = "Answer strictly from the context provided in the user message. " +
	"Do not use prior knowledge. If the context does not contain the answer, say it was not found."

type settings struct {
	temperature float64
	maxTokens   int
	system      []string
	jsonOutput  bool
}

// Option adjusts a single completion request.
type Option func(*settings)

func WithTemperature(temp float64) Option {
	return func(s *settings) { s.temperature = temp }
}

func WithMaxTokens(tokens int) Option {
	return func(s *settings) { s.maxTokens = tokens }
}

func WithSystemPrompt(prompt string) Option {
	return func(s *settings) { s.system = append(s.system, prompt) }
}

// Grounded prepends GroundedInstruction to the system prompt.
func Grounded() Option {
	return func(s *settings) { s.system = append([]string{GroundedInstruction}, s.system...) }
}

// JSON asks the backend for a JSON object response where supported.
func JSON() Option {
	return func(s *settings) { s.jsonOutput = true }
}

func applyOptions(defaults settings, opts []Option) settings {
	s := defaults
	for _, o := range opts {
		o(&s)
	}
	return s
}

// systemPrompt joins every system fragment; empty when none.
func (s settings) systemPrompt() string {
	return strings.Join(s.system, "\n\n")
}

// withSystem returns messages with the system prompt as the first message.
func (s settings) withSystem(messages []Message) []Message {
	sys := s.systemPrompt()
	if sys == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: sys})
	return append(out, messages...)
}
