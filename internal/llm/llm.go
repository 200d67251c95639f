// Package llm wraps the OpenAI-compatible text-generation backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	debug bool
}

// New creates a new generator client. baseURL may point at any
// OpenAI-compatible endpoint (Together, Ollama, and so on).
func New(baseURL, apiKey, modelName string, debug bool) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generation API key is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		debug: debug,
	}, nil
}

// Ping verifies the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Generate sends a prompt to the generator and returns the raw response
// text. Failures come back as *TransportError; callers must not retry here.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generator returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("generator returned an empty response")
	}

	if c.debug {
		slog.Debug("generator response", "length", len(raw), "raw", raw)
	}
	return raw, nil
}
