// Package openrouter builds the support agents' chat models and the query
// embedder against an OpenAI-compatible gateway.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	ErrMissingAPIKey = errors.New("openrouter: api key is required")
	ErrMissingModel  = errors.New("openrouter: model is required")
)

// ModelConfig is the resolved model setup of one agent. agent/llm derives it
// from the environment and the per-agent overrides.
type ModelConfig struct {
	// Agent labels errors; it is not sent upstream.
	Agent       string
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	SiteURL     string
	SiteName    string
}

// noReasoning lists models whose reasoning output is excluded from answers.
var noReasoning = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

func (c ModelConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w (agent %q)", ErrMissingModel, c.Agent)
	}
	return nil
}

// headers are the gateway attribution headers sent with every call.
func (c ModelConfig) headers() map[string]string {
	h := make(map[string]string, 2)
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		h["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		h["X-Title"] = v
	}
	return h
}

func (c ModelConfig) httpClient() *http.Client {
	return &http.Client{
		Timeout:   c.Timeout,
		Transport: headerTransport{base: http.DefaultTransport, headers: c.headers()},
	}
}

func (c ModelConfig) chatModelConfig() *openaimodel.ChatModelConfig {
	modelName := strings.TrimSpace(c.Model)
	temperature := c.Temperature

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		Temperature: &temperature,
		HTTPClient:  c.httpClient(),
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		conf.MaxTokens = &maxTokens
	}
	if noReasoning[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{
				"exclude": true,
				"effort":  "none",
			},
		}
	}
	return conf
}

// NewChatModel builds the tool-calling chat model one agent reasons with.
func NewChatModel(ctx context.Context, cfg ModelConfig) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := openaimodel.NewChatModel(ctx, cfg.chatModelConfig())
	if err != nil {
		return nil, fmt.Errorf("openrouter: create %s chat model: %w", cfg.Agent, err)
	}
	return m, nil
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Embedder turns query text into vectors through the embeddings endpoint.
type Embedder struct {
	client *openaisdk.Client
	model  string
}

// NewEmbedder reuses the agent's gateway credentials and attribution headers.
// An empty embedding model falls back to text-embedding-3-small.
func NewEmbedder(cfg ModelConfig, embeddingModel string) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(cfg.httpClient()),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openaisdk.NewClient(opts...)

	embeddingModel = strings.TrimSpace(embeddingModel)
	if embeddingModel == "" {
		embeddingModel = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}
	return &Embedder{client: &client, model: embeddingModel}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		Model: openaisdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter: create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openrouter: empty embedding response")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
