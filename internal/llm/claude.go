package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(apiKey string, model string, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	return &ClaudeClient{client: anthropic.NewClient(apiKey, opts...), model: model}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	t := float32(temperature)
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      SystemInstruction,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens:   maxTokens,
		Temperature: &t,
	})
	if err != nil {
		return "", fmt.Errorf("claude completion with %s: %w", c.model, err)
	}

	var b strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			b.WriteString(*part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no response content")
	}
	return strings.TrimSpace(b.String()), nil
}
