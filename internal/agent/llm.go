package agent

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMOptions select the chat model backing the agent and Q&A flows.
type LLMOptions struct {
	Provider string // "openai" or "ollama"
	BaseURL  string
	APIKey   string
	Model    string
}

// NewLLM builds the chat model client for the configured provider.
func NewLLM(opts LLMOptions) (llms.Model, error) {
	switch opts.Provider {
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(opts.BaseURL),
			ollama.WithModel(opts.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("agent: ollama client: %w", err)
		}
		return llm, nil
	case "openai":
		clientOpts := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(opts.Model),
		}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
		}
		llm, err := openai.New(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("agent: openai client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("agent: unknown llm provider %q", opts.Provider)
	}
}
