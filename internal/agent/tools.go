package agent

import (
	"context"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tmc/langchaingo/llms"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/query"
)

// Tool is one entry in the fixed registry the model can call. Arguments
// arrive as decoded JSON and are validated before Run executes.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Validate    func(args map[string]any) error
	Run         func(ctx context.Context, args map[string]any) (string, error)
}

// Registry is the closed set of tools available to an agent run.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// RegistryDeps wires the registry to one vault's query engine. Chat and
// Research are optional; their tools are omitted when nil.
type RegistryDeps struct {
	Engine   *query.Engine
	DB       *index.DB
	Chat     *Chat
	Research *Research
}

func NewRegistry(deps RegistryDeps) *Registry {
	r := &Registry{byName: make(map[string]Tool)}

	r.add(Tool{
		Name:        "semantic_search",
		Description: "Search the notes by meaning. Returns the most similar note chunks for a query.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Natural-language search query."},
			"limit": map[string]any{"type": "integer", "description": "Maximum results, 1-50.", "minimum": 1, "maximum": 50},
		}, "query"),
		Validate: func(args map[string]any) error {
			return validation.Errors{
				"query": validation.Validate(strArg(args, "query"), validation.Required, validation.Length(1, 2000)),
				"limit": validation.Validate(numArg(args, "limit"), validation.Min(0.0), validation.Max(50.0)),
			}.Filter()
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			hits, err := deps.Engine.Semantic(ctx, strArg(args, "query"), intArg(args, "limit"))
			if err != nil {
				return "", err
			}
			return marshalResult(hits)
		},
	})

	r.add(Tool{
		Name:        "backlinks",
		Description: "List every note that links to the given note slug, with the link text used.",
		Parameters: objectSchema(map[string]any{
			"slug": map[string]any{"type": "string", "description": "Slug of the target note."},
		}, "slug"),
		Validate: func(args map[string]any) error {
			return validation.Errors{
				"slug": validation.Validate(strArg(args, "slug"), validation.Required),
			}.Filter()
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			backs, err := deps.Engine.Backlinks(ctx, strArg(args, "slug"))
			if err != nil {
				return "", err
			}
			return marshalResult(backs)
		},
	})

	r.add(Tool{
		Name:        "connections",
		Description: "Walk the note graph from a slug and return every note within N hops with its distance.",
		Parameters: objectSchema(map[string]any{
			"slug": map[string]any{"type": "string", "description": "Slug of the starting note."},
			"hops": map[string]any{"type": "integer", "description": "Maximum hop distance, 1-6.", "minimum": 1, "maximum": 6},
		}, "slug"),
		Validate: func(args map[string]any) error {
			return validation.Errors{
				"slug": validation.Validate(strArg(args, "slug"), validation.Required),
				"hops": validation.Validate(numArg(args, "hops"), validation.Min(0.0), validation.Max(6.0)),
			}.Filter()
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			conns, err := deps.Engine.Connections(ctx, strArg(args, "slug"), intArg(args, "hops"))
			if err != nil {
				return "", err
			}
			return marshalResult(conns)
		},
	})

	r.add(Tool{
		Name:        "hidden_connections",
		Description: "Find notes semantically related to a query that have no direct link to the seed note. Good for surfacing material worth linking.",
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Topic to search for."},
			"seed":  map[string]any{"type": "string", "description": "Slug whose existing links should be excluded."},
			"limit": map[string]any{"type": "integer", "description": "Maximum results, 1-50.", "minimum": 1, "maximum": 50},
		}, "query", "seed"),
		Validate: func(args map[string]any) error {
			return validation.Errors{
				"query": validation.Validate(strArg(args, "query"), validation.Required, validation.Length(1, 2000)),
				"seed":  validation.Validate(strArg(args, "seed"), validation.Required),
				"limit": validation.Validate(numArg(args, "limit"), validation.Min(0.0), validation.Max(50.0)),
			}.Filter()
		},
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			hits, err := deps.Engine.Hidden(ctx, strArg(args, "query"), strArg(args, "seed"), intArg(args, "limit"))
			if err != nil {
				return "", err
			}
			return marshalResult(hits)
		},
	})

	r.add(Tool{
		Name:        "list_notes",
		Description: "List every note in the vault with its slug, title, and source metadata.",
		Parameters:  objectSchema(map[string]any{}),
		Validate:    func(map[string]any) error { return nil },
		Run: func(ctx context.Context, args map[string]any) (string, error) {
			notes, err := deps.DB.ListNotes()
			if err != nil {
				return "", err
			}
			return marshalResult(notes)
		},
	})

	if deps.Chat != nil {
		r.add(Tool{
			Name:        "ask_notes",
			Description: "Answer a question from the notes in one shot, with citations. Use for direct factual questions.",
			Parameters: objectSchema(map[string]any{
				"question": map[string]any{"type": "string", "description": "Question to answer from the notes."},
			}, "question"),
			Validate: func(args map[string]any) error {
				return validation.Errors{
					"question": validation.Validate(strArg(args, "question"), validation.Required, validation.Length(1, 4000)),
				}.Filter()
			},
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				res, err := deps.Chat.Answer(ctx, strArg(args, "question"))
				if err != nil {
					return "", err
				}
				return marshalResult(res)
			},
		})
	}

	if deps.Research != nil {
		r.add(Tool{
			Name:        "web_research",
			Description: "Research a question on the live web. Use only when the notes cannot answer it.",
			Parameters: objectSchema(map[string]any{
				"question": map[string]any{"type": "string", "description": "Question to research online."},
			}, "question"),
			Validate: func(args map[string]any) error {
				return validation.Errors{
					"question": validation.Validate(strArg(args, "question"), validation.Required, validation.Length(1, 4000)),
				}.Filter()
			},
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return deps.Research.Run(ctx, strArg(args, "question"))
			},
		})
	}

	return r
}

func (r *Registry) add(t Tool) {
	r.tools = append(r.tools, t)
	r.byName[t.Name] = t
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Name
	}
	return out
}

// LLMTools renders the registry as function declarations for the model.
func (r *Registry) LLMTools() []llms.Tool {
	out := make([]llms.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// Dispatch validates and executes one tool call. Unknown tools, invalid
// arguments, and execution errors all come back as err so the loop can
// report them to the model instead of crashing the request.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) (string, error) {
	t, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	if err := t.Validate(args); err != nil {
		return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return t.Run(ctx, args)
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// numArg returns the raw JSON number (decoded as float64), zero when
// absent, so optional numeric parameters validate cleanly.
func numArg(args map[string]any, key string) float64 {
	n, _ := args[key].(float64)
	return n
}

func intArg(args map[string]any, key string) int {
	return int(numArg(args, key))
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
