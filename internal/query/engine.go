// Package query implements the four read operations over one vault's
// store: backlinks, bounded graph traversal, semantic search, and the
// fusion of the two (semantically similar but unlinked notes).
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/index"
)

// Traversal and result-size bounds. Unknown slugs yield empty results,
// never errors.
const (
	MinHops = 1
	MaxHops = 6

	DefaultLimit = 8
	MaxLimit     = 100
)

// hiddenPool sizes the semantic candidate set before the neighbor
// anti-join: wide enough that filtering rarely starves the result.
func hiddenPool(k int) int { return 4*k + 16 }

// Engine answers read queries against a stable store snapshot. The
// vector index is fetched per call so ingestion can swap in a rebuilt
// index underneath without touching the engine.
type Engine struct {
	db      *index.DB
	emb     embed.Embedder
	vectors func() *index.VectorIndex
}

func New(db *index.DB, emb embed.Embedder, vectors func() *index.VectorIndex) *Engine {
	return &Engine{db: db, emb: emb, vectors: vectors}
}

// Backlinks returns all incoming reference edges for a note, one entry
// per link occurrence.
func (e *Engine) Backlinks(ctx context.Context, slug string) ([]index.Backlink, error) {
	return e.db.Backlinks(slug)
}

// Connection is one note reachable from a traversal seed.
type Connection struct {
	Slug  string `json:"slug"`
	Title string `json:"title,omitempty"`
	Hops  int    `json:"hops"`
}

// Connections walks outgoing reference edges breadth-first from seed
// and returns every slug within the hop ceiling at its minimum
// distance. The seed itself appears only when a cycle leads back to
// it, at its minimum positive hop. Results order by distance then slug.
func (e *Engine) Connections(ctx context.Context, seed string, hops int) ([]Connection, error) {
	if hops < MinHops {
		hops = MinHops
	}
	if hops > MaxHops {
		hops = MaxHops
	}

	adj, err := e.db.Adjacency()
	if err != nil {
		return nil, err
	}

	visited := make(map[string]int)
	frontier := []string{seed}
	seedHop := 0
	for depth := 1; depth <= hops && len(frontier) > 0; depth++ {
		var next []string
		for _, slug := range frontier {
			for _, other := range adj[slug] {
				if other == seed {
					if seedHop == 0 {
						seedHop = depth
					}
					continue
				}
				if _, ok := visited[other]; ok {
					continue
				}
				visited[other] = depth
				next = append(next, other)
			}
		}
		frontier = next
	}
	if seedHop > 0 {
		visited[seed] = seedHop
	}

	slugs := make([]string, 0, len(visited))
	for slug := range visited {
		slugs = append(slugs, slug)
	}
	titles, err := e.db.Titles(slugs)
	if err != nil {
		return nil, err
	}

	out := make([]Connection, 0, len(visited))
	for slug, depth := range visited {
		out = append(out, Connection{Slug: slug, Title: titles[slug], Hops: depth})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hops != out[j].Hops {
			return out[i].Hops < out[j].Hops
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

// Semantic embeds the query text and returns up to k nearest chunks by
// cosine similarity, ordered by similarity with deterministic ties.
func (e *Engine) Semantic(ctx context.Context, query string, k int) ([]index.SemanticHit, error) {
	k = clampLimit(k)
	vec, err := e.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}
	return e.vectors().Search(ctx, vec, k)
}

// Hidden returns up to k notes semantically near the query but with no
// direct edge touching seed, the seed itself excluded. Chunk hits
// collapse to one entry per note, keeping the best-ranked chunk.
func (e *Engine) Hidden(ctx context.Context, query, seed string, k int) ([]index.SemanticHit, error) {
	k = clampLimit(k)

	vec, err := e.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: embed: %w", err)
	}
	pool, err := e.vectors().Search(ctx, vec, hiddenPool(k))
	if err != nil {
		return nil, err
	}

	neighbors, err := e.db.Neighbors(seed)
	if err != nil {
		return nil, err
	}

	out := make([]index.SemanticHit, 0, k)
	seen := make(map[string]struct{})
	for _, hit := range pool {
		if hit.Slug == seed {
			continue
		}
		if _, linked := neighbors[hit.Slug]; linked {
			continue
		}
		if _, dup := seen[hit.Slug]; dup {
			continue
		}
		seen[hit.Slug] = struct{}{}
		out = append(out, hit)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func clampLimit(k int) int {
	if k <= 0 {
		return DefaultLimit
	}
	if k > MaxLimit {
		return MaxLimit
	}
	return k
}
