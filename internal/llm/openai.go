// Package llm adapts chat-completion APIs to the risk.Provider interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ProviderName is what assessments served by this provider report as model.
const ProviderName = "openai"

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyResponse is returned when the API answers without any content.
var ErrEmptyResponse = errors.New("llm: empty completion")

// Config configures an OpenAI-compatible client.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API root, e.g. "http://localhost:11434/v1".
	BaseURL string
	// HTTPClient defaults to a client without an overall timeout; callers
	// bound each call through its context.
	HTTPClient *http.Client
}

// OpenAIProvider asks a chat model for a single JSON answer.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. The API key is handed to the SDK and
// is not otherwise retained.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	clientConfig.HTTPClient = httpClient

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Name implements risk.Provider.
func (p *OpenAIProvider) Name() string { return ProviderName }

// Model returns the configured chat model.
func (p *OpenAIProvider) Model() string { return p.model }

// Complete sends one system and one user message and returns the first
// choice's content. JSON mode is requested so compatible servers constrain
// the output; the caller still parses defensively.
func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   400,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
