package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/ansuz/internal/apperr"
)

const researchSystemPrompt = `You are a research assistant with live web access.
Answer the question concisely and include source URLs for claims.`

// ResearchOptions configure the external web-research collaborator,
// an OpenAI-compatible endpoint with search-backed models (Perplexity).
type ResearchOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Research runs web-backed questions through the external search model.
type Research struct {
	llm llms.Model
}

// NewResearch builds the research client. Without an API key the
// feature is off and the constructor returns nil so callers can skip
// registering the tool.
func NewResearch(opts ResearchOptions) (*Research, error) {
	if opts.APIKey == "" {
		return nil, nil
	}
	llm, err := openai.New(
		openai.WithToken(opts.APIKey),
		openai.WithBaseURL(opts.BaseURL),
		openai.WithModel(opts.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("research: client: %w", err)
	}
	return &Research{llm: llm}, nil
}

// Run asks the search model one question.
func (r *Research) Run(ctx context.Context, question string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("research: no api key: %w", apperr.ErrNotConfigured)
	}
	resp, err := r.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, researchSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	})
	if err != nil {
		return "", fmt.Errorf("research: model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("research: model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
