// Package agent implements the language-model flows over a vault: the
// single-pass grounded Q&A, the external web-research collaborator, and
// the bounded tool-calling loop that composes the query engine.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// DefaultMaxSteps bounds tool invocations per agent run.
const DefaultMaxSteps = 15

// previewLimit caps stored step results; the model still sees the full
// tool output through the conversation.
const previewLimit = 400

const agentSystemPrompt = `You are a research agent over a personal knowledge vault.
Use the tools to explore the notes before answering. Prefer the vault
over the web. When you have enough material, reply with your final
answer instead of calling another tool.`

// Step records one tool invocation in the run trace.
type Step struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Result    string          `json:"result_preview"`
	Error     string          `json:"error,omitempty"`
}

// Result is the outcome of an agent run.
type Result struct {
	Answer    string `json:"answer"`
	Steps     []Step `json:"steps"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

// Agent runs the bounded tool-calling loop.
type Agent struct {
	llm      llms.Model
	registry *Registry
	maxSteps int
	logger   *slog.Logger
}

func New(llm llms.Model, registry *Registry, maxSteps int, logger *slog.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Agent{llm: llm, registry: registry, maxSteps: maxSteps, logger: logger}
}

// Run executes the loop for one task. Each iteration hands the model
// the conversation so far plus the tool registry; the model either
// requests tool calls or emits the final answer. Tool errors go back to
// the model as tool results, not up to the caller. When the step budget
// runs out the model gets one last tool-free call to wrap up, and the
// full trace is returned either way. A cancelled ctx stops both tool
// and model calls at the next boundary.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, agentSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, task),
	}
	tools := a.registry.LLMTools()
	steps := make([]Step, 0, a.maxSteps)

	for len(steps) < a.maxSteps {
		if err := ctx.Err(); err != nil {
			return &Result{Answer: partialAnswer(steps), Steps: steps, Exhausted: true}, err
		}

		resp, err := a.llm.GenerateContent(ctx, messages, llms.WithTools(tools))
		if err != nil {
			if ctx.Err() != nil {
				return &Result{Answer: partialAnswer(steps), Steps: steps, Exhausted: true}, ctx.Err()
			}
			return nil, fmt.Errorf("agent: model call: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("agent: model returned no choices")
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			return &Result{Answer: choice.Content, Steps: steps}, nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, tc := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, tc)
		}
		messages = append(messages, assistant)

		for _, tc := range choice.ToolCalls {
			if len(steps) >= a.maxSteps {
				break
			}
			if err := ctx.Err(); err != nil {
				return &Result{Answer: partialAnswer(steps), Steps: steps, Exhausted: true}, err
			}
			name, args := tc.FunctionCall.Name, tc.FunctionCall.Arguments

			result, runErr := a.registry.Dispatch(ctx, name, args)
			step := Step{Tool: name, Arguments: json.RawMessage(args), Result: preview(result)}
			feedback := result
			if runErr != nil {
				step.Error = runErr.Error()
				feedback = fmt.Sprintf(`{"error": %q}`, runErr.Error())
				a.logger.Warn("tool call failed", slog.String("tool", name), slog.Any("error", runErr))
			} else {
				a.logger.Debug("tool call", slog.String("tool", name))
			}
			steps = append(steps, step)

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    feedback,
				}},
			})
		}
	}

	// Budget spent: one tool-free call to turn the gathered material
	// into an answer.
	answer := a.wrapUp(ctx, messages)
	if answer == "" {
		answer = partialAnswer(steps)
	}
	return &Result{Answer: answer, Steps: steps, Exhausted: true}, nil
}

func (a *Agent) wrapUp(ctx context.Context, messages []llms.MessageContent) string {
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
		"You have used all your tool calls. Give your best answer from what you have gathered."))
	resp, err := a.llm.GenerateContent(ctx, messages)
	if err != nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Content
}

// partialAnswer is the fallback when the run ends without a model
// answer; it is never empty.
func partialAnswer(steps []Step) string {
	var b strings.Builder
	b.WriteString("The run ended before a final answer was produced.")
	if len(steps) > 0 {
		b.WriteString(" Tools consulted:")
		for i, s := range steps {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(" ")
			b.WriteString(s.Tool)
		}
		b.WriteString(".")
	}
	return b.String()
}

func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit] + "…"
}
