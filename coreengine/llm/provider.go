// Package llm provides the language-model client the assistant capabilities
// are built on.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
	// Images holds file paths attached to the message, for vision models.
	Images []string
}

// Options are per-call generation settings.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
}

// Option mutates Options.
type Option func(*Options)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = t }
}

// WithMaxTokens bounds the response length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithSystem sets a system prompt.
func WithSystem(prompt string) Option {
	return func(o *Options) { o.System = prompt }
}

// Provider is the contract for any LLM backend.
type Provider interface {
	// Chat sends a conversation and returns the assistant reply.
	Chat(ctx context.Context, history []Message, opts ...Option) (string, error)
	// Generate sends a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}
