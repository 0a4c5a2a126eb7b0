package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/embed"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// IngestOptions tune one ingestion run.
type IngestOptions struct {
	MaxChars  int
	BatchSize int
	// FullRebuild skips the checksum comparison and re-embeds every
	// note. Clearing stale rows is handled at Open time.
	FullRebuild bool
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Removed  int           `json:"removed"`
	Failed   int           `json:"failed"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Progress is invoked as notes are indexed, feeding live event streams.
// It must not block.
type Progress func(slug string)

// Ingest reconciles the store with the vault contents: new and changed
// notes are parsed, chunked, embedded, and written; notes whose files
// vanished are removed; unchanged notes are skipped by checksum. Two
// files normalizing to the same slug abort the whole run.
func Ingest(ctx context.Context, db *DB, store storage.Provider, emb embed.Embedder,
	opts IngestOptions, logger *slog.Logger, progress Progress) (*IngestStats, error) {

	start := time.Now()
	if opts.MaxChars <= 0 {
		opts.MaxChars = chunker.DefaultMaxChars
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = embed.DefaultBatchSize
	}
	if progress == nil {
		progress = func(string) {}
	}

	metas, err := store.List("")
	if err != nil {
		return nil, fmt.Errorf("index: list vault: %w", err)
	}

	bySlug := make(map[string]string, len(metas))
	for _, m := range metas {
		slug := parser.Slug(m.Path)
		if prev, ok := bySlug[slug]; ok {
			return nil, fmt.Errorf("index: %s and %s both normalize to %q: %w",
				prev, m.Path, slug, apperr.ErrSlugCollision)
		}
		bySlug[slug] = m.Path
	}

	known, err := db.AllChecksums()
	if err != nil {
		return nil, err
	}

	stats := &IngestStats{}

	for slug := range known {
		if _, ok := bySlug[slug]; ok {
			continue
		}
		if err := db.DeleteNote(slug); err != nil {
			return nil, err
		}
		logger.Info("note removed", slog.String("slug", slug))
		stats.Removed++
	}

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slug := parser.Slug(m.Path)
		if !opts.FullRebuild && known[slug] == m.Checksum {
			stats.Skipped++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("skipping unreadable note", slog.String("path", m.Path), slog.Any("error", err))
			stats.Failed++
			continue
		}

		res := parser.Parse(m.Path, data)
		chunks := chunker.Split(res.Body, opts.MaxChars)

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = chunker.EmbeddingText(c, res.Title)
		}
		vectors, err := embed.Batch(ctx, emb, texts, opts.BatchSize, logger)
		if err != nil {
			return nil, fmt.Errorf("index: embed %s: %w", slug, err)
		}

		row := NoteRow{
			Slug:         slug,
			FilePath:     m.Path,
			Title:        res.Title,
			SourceType:   res.SourceType,
			SourceTitle:  res.SourceTitle,
			SourceAuthor: res.SourceAuthor,
			SourceURL:    res.SourceURL,
			Tags:         res.Tags,
			Checksum:     m.Checksum,
			UpdatedAt:    m.UpdatedAt,
		}
		if err := db.ReplaceNote(row, res.Links, chunks, vectors); err != nil {
			logger.Warn("skipping unwritable note", slog.String("slug", slug), slog.Any("error", err))
			stats.Failed++
			continue
		}
		stats.Indexed++
		stats.Chunks += len(chunks)
		progress(slug)
	}

	stats.Duration = time.Since(start)
	logger.Info("ingest complete",
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("removed", stats.Removed),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}
