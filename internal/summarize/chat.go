// Package summarize turns transcripts into meeting reports and answers
// questions about them with an OpenAI-compatible chat model.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ChatClient sends one system+user exchange to a language model.
type ChatClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Sampling parameters used for every completion.
const (
	temperature = 0.3
	topP        = 0.9
	maxTokens   = 1024
)

// OpenAIChat is a ChatClient for any OpenAI-compatible endpoint.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

// NewOpenAIChat creates a chat client. An empty baseURL uses the OpenAI API.
func NewOpenAIChat(baseURL, apiKey, model string, timeout time.Duration) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIChat{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the configured model name.
func (c *OpenAIChat) Model() string { return c.model }

// Complete implements ChatClient.
func (c *OpenAIChat) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
