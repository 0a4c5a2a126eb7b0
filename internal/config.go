package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Auth      AuthConfig        `yaml:"auth"`
	Vaults    []VaultEntry      `yaml:"vaults"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	LLM       LLMConfig         `yaml:"llm"`
	Research  ResearchConfig    `yaml:"research"`
	Agent     AgentConfig       `yaml:"agent"`
	Ingest    IngestConfig      `yaml:"ingest"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if len(c.Vaults) == 0 {
		return fmt.Errorf("vaults: at least one vault is required")
	}
	seen := make(map[string]struct{}, len(c.Vaults))
	for i := range c.Vaults {
		if err := c.Vaults[i].Validate(); err != nil {
			return fmt.Errorf("vaults[%d]: %w", i, err)
		}
		if _, dup := seen[c.Vaults[i].ID]; dup {
			return fmt.Errorf("vaults: duplicate id %q", c.Vaults[i].ID)
		}
		seen[c.Vaults[i].ID] = struct{}{}
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Research.Validate(); err != nil {
		return err
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	return c.Ingest.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// VaultEntry locates one vault: its note files and its database.
type VaultEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Validate validates one vault entry.
func (c *VaultEntry) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.SQLitePath, validation.Required),
	)
}

// EmbeddingConfig selects the embedding model. Dimension must match the
// model; stores built with a different model or dimension refuse to
// open without a rebuild.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderOllama)),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimension, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("embedding: openai provider needs api_key or a base_url")
	}
	return nil
}

// LLMConfig selects the chat model behind the Q&A and agent flows.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderOllama)),
		validation.Field(&c.Model, validation.Required),
	); err != nil {
		return err
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("llm: openai provider needs api_key or a base_url")
	}
	return nil
}

// ResearchConfig configures the optional web-research collaborator.
// An empty api_key turns the feature off.
type ResearchConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Validate validates the research configuration.
func (c *ResearchConfig) Validate() error {
	if c.APIKey == "" {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
	)
}

// Enabled reports whether web research is configured.
func (c *ResearchConfig) Enabled() bool {
	return c.APIKey != ""
}

// AgentConfig bounds the tool-calling loop. TimeoutSeconds caps the
// wall clock of one agent run; zero disables the cap.
type AgentConfig struct {
	MaxSteps       int `yaml:"max_steps"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Validate validates the agent configuration.
func (c *AgentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSteps, validation.Required, validation.Min(1), validation.Max(50)),
		validation.Field(&c.TimeoutSeconds, validation.Min(0)),
	)
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	MaxChunkChars int  `yaml:"max_chunk_chars"`
	FullRebuild   bool `yaml:"full_rebuild"`
	Watch         bool `yaml:"watch"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxChunkChars, validation.Min(64)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Vaults: []VaultEntry{{
			ID:         "main",
			Name:       "Main",
			Path:       "./vault",
			SQLitePath: "./ansuz.db",
		}},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOllama,
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
			Dimension: 768,
			BatchSize: 32,
		},
		LLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "llama3.1",
		},
		Research: ResearchConfig{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar",
		},
		Agent: AgentConfig{
			MaxSteps:       15,
			TimeoutSeconds: 120,
		},
		Ingest: IngestConfig{
			MaxChunkChars: 512,
			Watch:         true,
		},
	}
}
