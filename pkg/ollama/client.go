// Package ollama provides a client for a local Ollama inference server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wrestlebot/internal/resilience"
)

// Defaults for a stock local install.
const (
	DefaultBaseURL        = "http://localhost:11434"
	DefaultModel          = "llama3.2"
	DefaultConnectTimeout = 5 * time.Second
	DefaultTimeout        = 60 * time.Second
	DefaultHealthTimeout  = 3 * time.Second
)

// Client defines the Ollama operations used by the AI gateway.
type Client interface {
	// Generate runs one non-streaming completion and returns the response text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Health reports whether the server is reachable and the configured model
	// is installed.
	Health(ctx context.Context) error
	// Model returns the configured model name.
	Model() string
}

// GenerateRequest is one completion request.
type GenerateRequest struct {
	Prompt      string
	System      string
	JSON        bool
	Temperature float64
}

type generateBody struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	System  string          `json:"system,omitempty"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Option configures the Ollama client.
type Option func(*httpClient)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *httpClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client used for generation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithHealthTimeout bounds the health check.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.healthTimeout = d
		}
	}
}

type httpClient struct {
	baseURL       string
	model         string
	http          *http.Client
	healthTimeout time.Duration
}

// NewClient creates a client for the server at baseURL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &httpClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         DefaultModel,
		healthTimeout: DefaultHealthTimeout,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: DefaultConnectTimeout}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Model() string {
	return c.model
}

func (c *httpClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	body := generateBody{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Options: generateOptions{Temperature: req.Temperature},
	}
	if req.JSON {
		body.Format = "json"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", eris.Wrap(err, "ollama: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "ollama: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "ollama: generate")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ollama: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return "", resilience.HTTPError("ollama", resp.StatusCode, data)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", eris.Wrap(err, "ollama: unmarshal response")
	}
	return strings.TrimSpace(out.Response), nil
}

func (c *httpClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return eris.Wrap(err, "ollama: create health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "ollama: health")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "ollama: read tags")
	}
	if resp.StatusCode != http.StatusOK {
		return resilience.HTTPError("ollama", resp.StatusCode, data)
	}

	var tags tagsResponse
	if err := json.Unmarshal(data, &tags); err != nil {
		return eris.Wrap(err, "ollama: unmarshal tags")
	}
	for _, m := range tags.Models {
		if strings.HasPrefix(m.Name, c.model) {
			return nil
		}
	}
	return eris.Errorf("ollama: model %q is not installed", c.model)
}
