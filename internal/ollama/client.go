package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	aierrors "aienv/internal/errors"
)

const (
	DefaultEndpoint        = "http://127.0.0.1:11434"
	DefaultModel           = "phi:2.7b"
	DefaultGenerateTimeout = 60 * time.Second
	DefaultListTimeout     = 5 * time.Second

	// NoResponse is returned when the server answers without a response field.
	NoResponse = "No response received"
	// ErrorPrefix starts every string Query returns on failure.
	ErrorPrefix = "Error: "

	remediation = "Make sure Ollama server is running (aienv launch ollama, or option 6 in the menu)"
)

// Model is one entry of GET /api/tags.
type Model struct {
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// Client talks to a local Ollama server.
type Client struct {
	endpoint        string
	model           string
	generateTimeout time.Duration
	listTimeout     time.Duration
	http            *http.Client
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

func WithTimeouts(generate, list time.Duration) Option {
	return func(c *Client) {
		if generate > 0 {
			c.generateTimeout = generate
		}
		if list > 0 {
			c.listTimeout = list
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for endpoint, e.g. http://127.0.0.1:11434.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:        strings.TrimRight(endpoint, "/"),
		model:           DefaultModel,
		generateTimeout: DefaultGenerateTimeout,
		listTimeout:     DefaultListTimeout,
		http:            &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Model() string {
	return c.model
}

// Generate sends a non-streaming completion request. An empty model uses
// the client default.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result generateResponse
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.Response == nil {
		return NoResponse, nil
	}
	return *result.Response, nil
}

// Query is Generate for interactive callers: it never fails, transport and
// HTTP errors come back as a string starting with ErrorPrefix.
func (c *Client) Query(ctx context.Context, model, prompt string) string {
	response, err := c.Generate(ctx, model, prompt)
	if err != nil {
		return fmt.Sprintf("%s%v\n%s", ErrorPrefix, err, remediation)
	}
	return response
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result tagsResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Ping reports whether the server answers the model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return aierrors.NewTransportError(
			"Ollama server not accessible",
			fmt.Sprintf("%s %s failed", req.Method, req.URL),
			remediation,
			fmt.Errorf("ollama request failed: %w", err),
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return aierrors.NewTransportError(
			"Ollama server not responding correctly",
			fmt.Sprintf("%s %s returned status %d", req.Method, req.URL, resp.StatusCode),
			remediation,
			fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return aierrors.NewTransportError(
			"Ollama server returned an unreadable response",
			err.Error(),
			remediation,
			fmt.Errorf("failed to decode response: %w", err),
		)
	}
	return nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}
