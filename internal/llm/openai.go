package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator talks to any OpenAI-compatible chat-completion endpoint
// (OpenAI, DeepSeek, local gateways) via the base URL in Options.
type OpenAIGenerator struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIGenerator builds a client from opts.
func NewOpenAIGenerator(opts Options) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), opts: opts}, nil
}

// Invoke sends prompt as a single user message and returns the completion.
func (g *OpenAIGenerator) Invoke(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.opts.Temperature,
	}
	if g.opts.MaxTokens > 0 {
		req.MaxTokens = g.opts.MaxTokens
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
