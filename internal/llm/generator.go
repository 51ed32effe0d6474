// Package llm wraps the generative-model collaborators behind a minimal
// Generator interface. Provider options pass through uninterpreted by the
// rest of the engine.
package llm

import "context"

// Generator produces free-form text for a prompt.
type Generator interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Options configures a concrete provider. The core never inspects these.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// Response carries the result of an asynchronous invocation.
type Response struct {
	Text string
	Err  error
}

// InvokeAsync runs Invoke on its own goroutine with semantics identical to
// the synchronous call.
func InvokeAsync(ctx context.Context, g Generator, prompt string) <-chan Response {
	ch := make(chan Response, 1)
	go func() {
		text, err := g.Invoke(ctx, prompt)
		ch <- Response{Text: text, Err: err}
	}()
	return ch
}
