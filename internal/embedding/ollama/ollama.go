package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultModel is a small sentence encoder served by Ollama.
const DefaultModel = "all-minilm"

// DefaultDimension is the output size of all-minilm.
const DefaultDimension = 384

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Model embeds text through a local Ollama server.
type Model struct {
	client    *api.Client
	model     string
	dimension int
}

// New creates an Ollama model client. BaseURL defaults to http://localhost:11434.
func New(cfg Config) (*Model, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	client := api.NewClient(parsed, &http.Client{Timeout: cfg.Timeout})
	return &Model{client: client, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// Name returns the Ollama model tag.
func (m *Model) Name() string { return m.model }

// Dimension returns the configured vector size.
func (m *Model) Dimension() int { return m.dimension }

// Embed uses Ollama's batch endpoint so one request covers the whole batch.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := m.client.Embed(ctx, &api.EmbedRequest{
		Model: m.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings from ollama: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}
