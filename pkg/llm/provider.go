// Package llm defines the interface and factory for connecting to a Large Language Model.
package llm

import (
	"context"

	"qtrace/internal/config"
)

// Provider establishes the common contract for LLM integrations.
type Provider interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewProvider builds the provider described by cfg. Any OpenAI-compatible
// endpoint works, including a local Ollama server's /v1 API.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
}
