package ai

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/pkg/anthropic"
	"github.com/sells-group/wrestlebot/pkg/ollama"
)

// Request is one generation request sent to a backend.
type Request struct {
	Prompt      string
	System      string
	JSON        bool
	Temperature float64
	MaxTokens   int64
	// Operation names the gateway operation for logs and cost tracking.
	Operation string
}

// Backend is an inference service the gateway can call.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
	// Health is a cheap check used to decide availability.
	Health(ctx context.Context) error
}

// OllamaBackend runs requests against a local Ollama server.
type OllamaBackend struct {
	client ollama.Client
}

// NewOllamaBackend wraps an Ollama client.
func NewOllamaBackend(c ollama.Client) *OllamaBackend {
	return &OllamaBackend{client: c}
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return "ollama" }

// Generate implements Backend.
func (b *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	return b.client.Generate(ctx, ollama.GenerateRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		JSON:        req.JSON,
		Temperature: req.Temperature,
	})
}

// Health implements Backend.
func (b *OllamaBackend) Health(ctx context.Context) error {
	return b.client.Health(ctx)
}

const defaultMaxTokens = 1000

// AnthropicBackend runs requests against the hosted Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend wraps an Anthropic client. An empty model selects
// anthropic.DefaultModel.
func NewAnthropicBackend(c anthropic.Client, model string) *AnthropicBackend {
	if model == "" {
		model = anthropic.DefaultModel
	}
	return &AnthropicBackend{client: c, model: model}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Generate implements Backend.
func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nRespond with valid JSON only."
	}
	temp := req.Temperature
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(b.model, req.Operation)
	text := resp.Text()
	if text == "" {
		return "", eris.New("ai: empty response from anthropic")
	}
	return text, nil
}

// Health implements Backend. The hosted API has no cheap health check; the circuit
// breaker alone tracks its availability.
func (b *AnthropicBackend) Health(context.Context) error {
	return nil
}
