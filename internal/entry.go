// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/vault"
)

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func buildHub(ctx context.Context, cfg *Config, logger *slog.Logger, events vault.EventFunc) (*vault.Hub, error) {
	embedder, err := embed.New(embed.Options{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	vaults := make([]vault.Config, len(cfg.Vaults))
	for i, v := range cfg.Vaults {
		if err := os.MkdirAll(v.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir %s: %w", v.Path, err)
		}
		vaults[i] = vault.Config{
			ID:     v.ID,
			Name:   v.Name,
			Root:   v.Path,
			DBPath: v.SQLitePath,
		}
	}

	return vault.New(ctx, vaults, vault.Options{
		Embedder: embedder,
		Ingest: index.IngestOptions{
			MaxChars:    cfg.Ingest.MaxChunkChars,
			BatchSize:   cfg.Embedding.BatchSize,
			FullRebuild: cfg.Ingest.FullRebuild,
		},
		FullRebuild: cfg.Ingest.FullRebuild,
		Logger:      logger,
		Events:      events,
	})
}

// Run starts the HTTP server with the given options: initial ingestion,
// file watchers, SSE stream, and the API.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("vaults", len(cfg.Vaults)),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.String("llm_model", cfg.LLM.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker first so ingestion events stream from the start.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	hub, err := buildHub(ctx, cfg, logger, broker.PublishIngestEvent)
	if err != nil {
		return err
	}
	defer hub.Close()

	// Initial reconcile. Non-fatal so the server still starts when the
	// embedding backend is temporarily down.
	if err := hub.ReingestAll(ctx); err != nil {
		logger.Warn("initial ingest failed", slog.String("error", err.Error()))
	}

	llm, err := agent.NewLLM(agent.LLMOptions{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return err
	}
	research, err := agent.NewResearch(agent.ResearchOptions{
		APIKey:  cfg.Research.APIKey,
		BaseURL: cfg.Research.BaseURL,
		Model:   cfg.Research.Model,
	})
	if err != nil {
		return err
	}

	svc := api.NewService(hub, llm, research, api.AgentSettings{
		MaxSteps: cfg.Agent.MaxSteps,
		Timeout:  time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
	}, logger)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// File watchers, one per vault.
	if cfg.Ingest.Watch {
		for _, v := range hub.All() {
			g.Go(func() error {
				return hub.Watch(gCtx, v)
			})
		}
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunIngest performs a one-shot ingestion of every configured vault and
// exits.
func RunIngest(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)

	hub, err := buildHub(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer hub.Close()

	vaults := hub.All()
	if app.vaultID != "" {
		v, err := hub.Get(app.vaultID)
		if err != nil {
			return err
		}
		vaults = []*vault.Vault{v}
	}

	for _, v := range vaults {
		stats, err := hub.Reingest(ctx, v)
		if err != nil {
			return fmt.Errorf("ingest vault %s: %w", v.ID, err)
		}
		logger.Info("vault ingested",
			slog.String("vault", v.ID),
			slog.Int("indexed", stats.Indexed),
			slog.Int("skipped", stats.Skipped),
			slog.Int("removed", stats.Removed),
			slog.Int("failed", stats.Failed))
	}
	return nil
}

// RunMCP serves the query tools over MCP stdio. Logs go to stderr so
// stdout stays clean for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	hub, err := buildHub(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer hub.Close()

	if err := hub.ReingestAll(ctx); err != nil {
		logger.Warn("initial ingest failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(hub).ServeStdio()
}
