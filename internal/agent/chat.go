package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/query"
)

// chatRetrieveK is how many chunks ground a single-pass answer.
const chatRetrieveK = 8

const chatSystemPrompt = `You answer questions using only the provided note excerpts.
Cite excerpts by their bracketed number, like [2]. If the excerpts do not
contain the answer, say so plainly instead of guessing.`

// Chat is the single-pass grounded Q&A flow: retrieve, prompt once,
// answer with citations.
type Chat struct {
	engine *query.Engine
	llm    llms.Model
}

func NewChat(engine *query.Engine, llm llms.Model) *Chat {
	return &Chat{engine: engine, llm: llm}
}

// Citation points an answer back at a retrieved note.
type Citation struct {
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	SourceTitle  string `json:"source_title,omitempty"`
	SourceAuthor string `json:"source_author,omitempty"`
}

// ChatResult is the grounded answer plus the notes it drew from.
type ChatResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Answer retrieves the top chunks for the question, builds a numbered
// excerpt prompt, and makes exactly one model call.
func (c *Chat) Answer(ctx context.Context, question string) (*ChatResult, error) {
	hits, err := c.engine.Semantic(ctx, question, chatRetrieveK)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &ChatResult{
			Answer:    "The notes contain nothing relevant to that question.",
			Citations: []Citation{},
		}, nil
	}

	prompt := buildChatPrompt(question, hits)
	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, chatSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("chat: model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat: model returned no choices")
	}

	return &ChatResult{
		Answer:    resp.Choices[0].Content,
		Citations: citationsFrom(hits),
	}, nil
}

func buildChatPrompt(question string, hits []index.SemanticHit) string {
	var b strings.Builder
	b.WriteString("Note excerpts:\n\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] Note: %s", i+1, h.Title)
		if h.SourceTitle != "" {
			fmt.Fprintf(&b, " / From: %s", h.SourceTitle)
			if h.SourceAuthor != "" {
				fmt.Fprintf(&b, " (%s)", h.SourceAuthor)
			}
		}
		if h.HeadingContext != "" {
			fmt.Fprintf(&b, " / Section: %s", h.HeadingContext)
		}
		b.WriteString("\n")
		b.WriteString(h.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// citationsFrom collapses chunk hits to one citation per note, in
// retrieval order.
func citationsFrom(hits []index.SemanticHit) []Citation {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Slug]; dup {
			continue
		}
		seen[h.Slug] = struct{}{}
		out = append(out, Citation{
			Slug:         h.Slug,
			Title:        h.Title,
			SourceTitle:  h.SourceTitle,
			SourceAuthor: h.SourceAuthor,
		})
	}
	return out
}
