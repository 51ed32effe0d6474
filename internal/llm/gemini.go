package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator backs the Generator interface with Google's Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	opts   Options
}

// NewGeminiGenerator builds a client from opts.
func NewGeminiGenerator(ctx context.Context, opts Options) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, opts: opts}, nil
}

// Invoke sends prompt and returns the generated text.
func (g *GeminiGenerator) Invoke(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if g.opts.Temperature > 0 {
		t := g.opts.Temperature
		cfg.Temperature = &t
	}
	if g.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.opts.MaxTokens)
	}
	result, err := g.client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return text, nil
}
