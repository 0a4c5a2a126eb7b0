// Package embed maps chunk texts to fixed-dimension vectors via an
// external embedding model.
package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/ansuz/internal/apperr"
)

// Embedder produces fixed-dimension vectors. Every vector returned by one
// Embedder has length Dimension(); a shorter or longer vector from the
// backing model is a configuration fault, not a per-item failure.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// Options configures the model-backed embedder.
type Options struct {
	Provider  string // "openai" (and compatible endpoints) or "ollama"
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

// langchain adapts a langchaingo embedder to the Embedder interface,
// enforcing the configured dimension on every returned vector.
type langchain struct {
	impl  *embeddings.EmbedderImpl
	model string
	dim   int
}

// New creates an Embedder for the configured provider.
func New(opts Options) (Embedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch opts.Provider {
	case "ollama":
		client, err = ollama.New(
			ollama.WithServerURL(opts.BaseURL),
			ollama.WithModel(opts.Model),
		)
	default:
		var llmOpts []openai.Option
		llmOpts = append(llmOpts, openai.WithToken(opts.APIKey), openai.WithModel(opts.Model), openai.WithEmbeddingModel(opts.Model))
		if opts.BaseURL != "" {
			llmOpts = append(llmOpts, openai.WithBaseURL(opts.BaseURL))
		}
		client, err = openai.New(llmOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("embed: init %s client: %w", opts.Provider, err)
	}

	impl, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embed: create embedder: %w", err)
	}
	return &langchain{impl: impl, model: opts.Model, dim: opts.Dimension}, nil
}

func (l *langchain) Name() string   { return l.model }
func (l *langchain) Dimension() int { return l.dim }

func (l *langchain) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := l.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if err := l.checkDim(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (l *langchain) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := l.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := l.checkDim(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (l *langchain) checkDim(v []float32) error {
	if len(v) != l.dim {
		return fmt.Errorf("embed: model %s returned %d dims, configured %d: %w",
			l.model, len(v), l.dim, apperr.ErrDimensionMismatch)
	}
	return nil
}
