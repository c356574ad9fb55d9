package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey string, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	gm := client.GenerativeModel(model)
	gm.SystemInstruction = genai.NewUserContent(genai.Text(SystemInstruction))
	gm.SetTemperature(temperature)
	gm.SetMaxOutputTokens(maxTokens)
	return &GeminiClient{client: client, model: gm}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no response candidates or content")
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
