package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/vault"
)

// AgentSettings bound one agent run. A zero Timeout leaves the request
// context in charge.
type AgentSettings struct {
	MaxSteps int
	Timeout  time.Duration
}

// Service resolves vault-scoped requests against the hub and builds the
// model-backed flows per vault. All operations are read-only except
// Reingest.
type Service struct {
	hub      *vault.Hub
	llm      llms.Model
	research *agent.Research
	agentCfg AgentSettings
	logger   *slog.Logger
}

func NewService(hub *vault.Hub, llm llms.Model, research *agent.Research, agentCfg AgentSettings, logger *slog.Logger) *Service {
	return &Service{hub: hub, llm: llm, research: research, agentCfg: agentCfg, logger: logger}
}

func (s *Service) vault(id string) (*vault.Vault, error) {
	return s.hub.Get(id)
}

func (s *Service) Semantic(ctx context.Context, vaultID, q string, limit int) ([]index.SemanticHit, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.Engine().Semantic(ctx, q, limit)
}

func (s *Service) Backlinks(ctx context.Context, vaultID, slug string) ([]index.Backlink, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.Engine().Backlinks(ctx, slug)
}

func (s *Service) Connections(ctx context.Context, vaultID, slug string, hops int) ([]query.Connection, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.Engine().Connections(ctx, slug, hops)
}

func (s *Service) Hidden(ctx context.Context, vaultID, q, seed string, limit int) ([]index.SemanticHit, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.Engine().Hidden(ctx, q, seed, limit)
}

func (s *Service) Graph(ctx context.Context, vaultID string) ([]index.GraphNode, []index.GraphEdge, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, nil, err
	}
	return v.DB().Graph()
}

func (s *Service) Notes(ctx context.Context, vaultID string) ([]index.NoteRow, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return v.DB().ListNotes()
}

// VaultInfo summarizes one configured vault.
type VaultInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Root string `json:"root"`
}

// Vaults lists the configured vaults in order.
func (s *Service) Vaults() []VaultInfo {
	all := s.hub.All()
	out := make([]VaultInfo, len(all))
	for i, v := range all {
		out[i] = VaultInfo{ID: v.ID, Name: v.Name, Root: v.Root}
	}
	return out
}

func (s *Service) Health(vaultID string) (vault.Health, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return vault.Health{}, err
	}
	return v.Health(), nil
}

func (s *Service) Reingest(ctx context.Context, vaultID string) (*index.IngestStats, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return s.hub.Reingest(ctx, v)
}

func (s *Service) Chat(ctx context.Context, vaultID, message string) (*agent.ChatResult, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	return agent.NewChat(v.Engine(), s.llm).Answer(ctx, message)
}

func (s *Service) Agent(ctx context.Context, vaultID, task string) (*agent.Result, error) {
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	if s.agentCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.agentCfg.Timeout)
		defer cancel()
	}
	chat := agent.NewChat(v.Engine(), s.llm)
	registry := agent.NewRegistry(agent.RegistryDeps{
		Engine:   v.Engine(),
		DB:       v.DB(),
		Chat:     chat,
		Research: s.research,
	})
	res, err := agent.New(s.llm, registry, s.agentCfg.MaxSteps, s.logger).Run(ctx, task)
	if err != nil && res != nil &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		// A run cut short still carries its partial answer and trace.
		s.logger.Warn("agent run cut short", slog.String("error", err.Error()))
		return res, nil
	}
	return res, err
}

// ResearchResult pairs a web answer with the vault notes closest to the
// same question.
type ResearchResult struct {
	Answer string              `json:"answer"`
	Notes  []index.SemanticHit `json:"notes"`
}

func (s *Service) Research(ctx context.Context, vaultID, question string) (*ResearchResult, error) {
	answer, err := s.research.Run(ctx, question)
	if err != nil {
		return nil, err
	}
	v, err := s.vault(vaultID)
	if err != nil {
		return nil, err
	}
	notes, err := v.Engine().Semantic(ctx, question, 0)
	if err != nil {
		return nil, err
	}
	return &ResearchResult{Answer: answer, Notes: notes}, nil
}
