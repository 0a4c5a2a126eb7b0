// Package vault manages the registry of configured vaults, each with
// its own store, vector index, and query engine. Vaults are fully
// independent: they never share rows, and ingesting one does not block
// queries against another.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/storage"
)

// Config locates one vault on disk.
type Config struct {
	ID     string
	Name   string
	Root   string
	DBPath string
}

// EventFunc receives ingestion lifecycle events for live streams.
// kind is one of "ingest.started", "note.indexed", "ingest.completed".
type EventFunc func(vaultID, kind, detail string)

// Options configure the hub as a whole.
type Options struct {
	Embedder    embed.Embedder
	Ingest      index.IngestOptions
	FullRebuild bool
	Logger      *slog.Logger
	Events      EventFunc
}

// Hub is the vault registry. The first configured vault is the default
// for requests that leave the vault id empty.
type Hub struct {
	logger *slog.Logger
	emb    embed.Embedder
	ingest index.IngestOptions
	events EventFunc

	vaults map[string]*Vault
	order  []string
}

// Vault couples one store with its query engine. The vector index is
// rebuilt after each ingestion run and swapped in under the write lock,
// so queries always see a complete graph/embedding pairing.
type Vault struct {
	ID   string
	Name string
	Root string

	store  storage.Provider
	db     *index.DB
	engine *query.Engine

	mu      sync.RWMutex
	vectors *index.VectorIndex

	ingestMu sync.Mutex
}

// New opens every configured vault. A vault whose store was built with
// a different embedding model fails fast unless opts.FullRebuild is set.
func New(ctx context.Context, cfgs []Config, opts Options) (*Hub, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("vault: no vaults configured")
	}
	if opts.Events == nil {
		opts.Events = func(string, string, string) {}
	}

	h := &Hub{
		logger: opts.Logger,
		emb:    opts.Embedder,
		ingest: opts.Ingest,
		events: opts.Events,
		vaults: make(map[string]*Vault, len(cfgs)),
	}

	for _, cfg := range cfgs {
		if _, dup := h.vaults[cfg.ID]; dup {
			return nil, fmt.Errorf("vault: duplicate vault id %q", cfg.ID)
		}
		store, err := storage.NewFS(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", cfg.ID, err)
		}
		db, err := index.Open(cfg.DBPath, opts.Embedder.Name(), opts.Embedder.Dimension(), opts.FullRebuild)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", cfg.ID, err)
		}

		v := &Vault{
			ID:    cfg.ID,
			Name:  cfg.Name,
			Root:  cfg.Root,
			store: store,
			db:    db,
		}
		v.engine = query.New(db, opts.Embedder, v.vectorIndex)

		if err := v.loadVectors(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("vault %s: %w", cfg.ID, err)
		}

		h.vaults[cfg.ID] = v
		h.order = append(h.order, cfg.ID)
	}
	return h, nil
}

// Get resolves a vault id, defaulting to the first configured vault
// when id is empty.
func (h *Hub) Get(id string) (*Vault, error) {
	if id == "" {
		id = h.order[0]
	}
	v, ok := h.vaults[id]
	if !ok {
		return nil, fmt.Errorf("vault %q: %w", id, apperr.ErrVaultUnknown)
	}
	return v, nil
}

// All returns the vaults in configuration order.
func (h *Hub) All() []*Vault {
	out := make([]*Vault, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.vaults[id])
	}
	return out
}

// ReingestAll reconciles every vault, stopping at the first fatal error.
func (h *Hub) ReingestAll(ctx context.Context) error {
	for _, v := range h.All() {
		if _, err := h.Reingest(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Reingest reconciles one vault with its files and swaps in a freshly
// built vector index. Runs for the same vault are serialized; queries
// keep reading the previous index until the swap.
func (h *Hub) Reingest(ctx context.Context, v *Vault) (*index.IngestStats, error) {
	v.ingestMu.Lock()
	defer v.ingestMu.Unlock()

	h.events(v.ID, "ingest.started", "")
	stats, err := index.Ingest(ctx, v.db, v.store, h.emb, h.ingest, h.logger,
		func(slug string) { h.events(v.ID, "note.indexed", slug) })
	if err != nil {
		return nil, err
	}
	if err := v.loadVectors(ctx); err != nil {
		return nil, err
	}
	h.events(v.ID, "ingest.completed", fmt.Sprintf("indexed=%d skipped=%d removed=%d", stats.Indexed, stats.Skipped, stats.Removed))
	return stats, nil
}

// Watch runs the file watcher for one vault until ctx is cancelled,
// funneling change bursts into incremental reingestion.
func (h *Hub) Watch(ctx context.Context, v *Vault) error {
	return index.Watch(ctx, v.Root, h.logger, func(ctx context.Context) {
		if _, err := h.Reingest(ctx, v); err != nil {
			h.logger.Error("watch reingest failed",
				slog.String("vault", v.ID), slog.Any("error", err))
		}
	})
}

// Close closes every vault store.
func (h *Hub) Close() error {
	var first error
	for _, v := range h.vaults {
		if err := v.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (v *Vault) loadVectors(ctx context.Context) error {
	rows, err := v.db.EmbeddedChunks()
	if err != nil {
		return err
	}
	vi, err := index.BuildVectorIndex(ctx, rows)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.vectors = vi
	v.mu.Unlock()
	return nil
}

func (v *Vault) vectorIndex() *index.VectorIndex {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vectors
}

// Engine returns the vault's query engine.
func (v *Vault) Engine() *query.Engine { return v.engine }

// DB exposes the store for read endpoints (notes, graph, stats).
func (v *Vault) DB() *index.DB { return v.db }

// Store exposes the vault's file provider for raw note reads.
func (v *Vault) Store() storage.Provider { return v.store }

// Health reports whether the vault is queryable.
type Health struct {
	OK          bool   `json:"ok"`
	StoreExists bool   `json:"store_exists"`
	Notes       int    `json:"notes"`
	Indexed     int    `json:"indexed_chunks"`
	Error       string `json:"error,omitempty"`
}

func (v *Vault) Health() Health {
	stats, err := v.db.Stats()
	if err != nil {
		return Health{OK: false, StoreExists: false, Error: err.Error()}
	}
	return Health{
		OK:          true,
		StoreExists: true,
		Notes:       stats.Notes,
		Indexed:     v.vectorIndex().Size(),
	}
}
