package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// NoteRow is the stored form of a note without its body.
type NoteRow struct {
	Slug         string            `json:"slug"`
	FilePath     string            `json:"file_path"`
	Title        string            `json:"title"`
	SourceType   models.SourceType `json:"source_type"`
	SourceTitle  string            `json:"source_title,omitempty"`
	SourceAuthor string            `json:"source_author,omitempty"`
	SourceURL    string            `json:"source_url,omitempty"`
	Tags         []string          `json:"tags"`
	Checksum     string            `json:"-"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Backlink is one incoming reference to a note.
type Backlink struct {
	SourceSlug string `json:"source_slug"`
	LinkText   string `json:"link_text"`
}

// GraphNode and GraphEdge describe the full reference graph. Targets
// that have no note of their own still appear as nodes.
type GraphNode struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Resolved bool   `json:"resolved"`
}

type GraphEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	LinkText string `json:"link_text"`
}

// ReplaceNote atomically swaps all stored rows for one note: the note
// itself, its outgoing links, its chunks, and whatever embeddings were
// produced. A nil vector leaves that chunk without an embeddings row.
func (db *DB) ReplaceNote(note NoteRow, links []models.Link, chunks []models.Chunk, vectors [][]float32) error {
	if len(vectors) != 0 && len(vectors) != len(chunks) {
		return fmt.Errorf("index: %d chunks but %d vectors for %s", len(chunks), len(vectors), note.Slug)
	}
	for i, vec := range vectors {
		if vec != nil && len(vec) != db.dim {
			return fmt.Errorf("index: chunk %d of %s has %d dims, store expects %d: %w",
				i, note.Slug, len(vec), db.dim, apperr.ErrDimensionMismatch)
		}
	}

	tags, err := json.Marshal(note.Tags)
	if err != nil {
		return fmt.Errorf("index: marshal tags: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notes WHERE slug = ?`, note.Slug); err != nil {
		return fmt.Errorf("index: clear note %s: %w", note.Slug, err)
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source_slug = ?`, note.Slug); err != nil {
		return fmt.Errorf("index: clear links %s: %w", note.Slug, err)
	}

	res, err := tx.Exec(`INSERT INTO notes
		(slug, file_path, title, source_type, source_title, source_author, source_url, tags, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.Slug, note.FilePath, note.Title, string(note.SourceType),
		note.SourceTitle, note.SourceAuthor, note.SourceURL,
		string(tags), note.Checksum, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: insert note %s: %w", note.Slug, err)
	}
	noteID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("index: note id: %w", err)
	}

	for _, l := range links {
		if _, err := tx.Exec(`INSERT INTO links (source_slug, target_slug, link_text) VALUES (?, ?, ?)`,
			note.Slug, l.TargetSlug, l.LinkText); err != nil {
			return fmt.Errorf("index: insert link %s -> %s: %w", note.Slug, l.TargetSlug, err)
		}
	}

	for i, c := range chunks {
		res, err := tx.Exec(`INSERT INTO chunks (note_id, ordinal, content, heading_context) VALUES (?, ?, ?, ?)`,
			noteID, c.Ordinal, c.Content, c.HeadingContext)
		if err != nil {
			return fmt.Errorf("index: insert chunk %s#%d: %w", note.Slug, c.Ordinal, err)
		}
		if len(vectors) == 0 || vectors[i] == nil {
			continue
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("index: chunk id: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO embeddings (chunk_id, embedding) VALUES (?, ?)`,
			chunkID, vectorToBlob(vectors[i])); err != nil {
			return fmt.Errorf("index: insert embedding %s#%d: %w", note.Slug, c.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit %s: %w", note.Slug, err)
	}
	return nil
}

// DeleteNote removes a note, its outgoing links, and (via cascade) its
// chunks and embeddings. Incoming links from other notes are left in
// place, so the slug may linger as a dangling graph target.
func (db *DB) DeleteNote(slug string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notes WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("index: delete note %s: %w", slug, err)
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE source_slug = ?`, slug); err != nil {
		return fmt.Errorf("index: delete links %s: %w", slug, err)
	}
	return tx.Commit()
}

// GetNote returns one note row by slug, or apperr.ErrNotFound.
func (db *DB) GetNote(slug string) (*NoteRow, error) {
	row := db.conn.QueryRow(`SELECT slug, file_path, title, source_type, source_title, source_author, source_url, tags, checksum, updated_at
		FROM notes WHERE slug = ?`, slug)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("index: note %s: %w", slug, apperr.ErrNotFound)
		}
		return nil, err
	}
	return n, nil
}

// ListNotes returns all notes ordered by title then slug.
func (db *DB) ListNotes() ([]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT slug, file_path, title, source_type, source_title, source_author, source_url, tags, checksum, updated_at
		FROM notes ORDER BY title, slug`)
	if err != nil {
		return nil, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*NoteRow, error) {
	var n NoteRow
	var srcType, tags string
	if err := s.Scan(&n.Slug, &n.FilePath, &n.Title, &srcType, &n.SourceTitle,
		&n.SourceAuthor, &n.SourceURL, &tags, &n.Checksum, &n.UpdatedAt); err != nil {
		return nil, fmt.Errorf("index: scan note: %w", err)
	}
	n.SourceType = models.ParseSourceType(srcType)
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		n.Tags = nil
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return &n, nil
}

// AllChecksums maps every stored slug to its content checksum, which
// drives incremental ingestion.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT slug, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var slug, sum string
		if err := rows.Scan(&slug, &sum); err != nil {
			return nil, fmt.Errorf("index: scan checksum: %w", err)
		}
		out[slug] = sum
	}
	return out, rows.Err()
}

// Backlinks returns incoming references, one entry per link occurrence,
// ordered by source slug then link text.
func (db *DB) Backlinks(target string) ([]Backlink, error) {
	rows, err := db.conn.Query(`SELECT source_slug, link_text FROM links
		WHERE target_slug = ? ORDER BY source_slug, link_text`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks %s: %w", target, err)
	}
	defer rows.Close()

	out := []Backlink{}
	for rows.Next() {
		var b Backlink
		if err := rows.Scan(&b.SourceSlug, &b.LinkText); err != nil {
			return nil, fmt.Errorf("index: scan backlink: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Neighbors returns the set of slugs directly connected to seed in
// either direction.
func (db *DB) Neighbors(seed string) (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT target_slug FROM links WHERE source_slug = ?
		UNION SELECT source_slug FROM links WHERE target_slug = ?`, seed, seed)
	if err != nil {
		return nil, fmt.Errorf("index: neighbors %s: %w", seed, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("index: scan neighbor: %w", err)
		}
		out[slug] = struct{}{}
	}
	return out, rows.Err()
}

// Adjacency returns the outgoing adjacency map over all link rows,
// deduplicated per edge, for traversal queries.
func (db *DB) Adjacency() (map[string][]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT source_slug, target_slug FROM links`)
	if err != nil {
		return nil, fmt.Errorf("index: adjacency: %w", err)
	}
	defer rows.Close()

	adj := make(map[string]map[string]struct{})
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("index: scan edge: %w", err)
		}
		if adj[src] == nil {
			adj[src] = make(map[string]struct{})
		}
		adj[src][dst] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(adj))
	for slug, set := range adj {
		for other := range set {
			out[slug] = append(out[slug], other)
		}
	}
	return out, nil
}

// Graph returns every node and edge in the vault. Link targets without
// a matching note appear as unresolved nodes.
func (db *DB) Graph() ([]GraphNode, []GraphEdge, error) {
	nodeRows, err := db.conn.Query(`SELECT slug, title FROM notes ORDER BY slug`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()

	var nodes []GraphNode
	seen := make(map[string]struct{})
	for nodeRows.Next() {
		var n GraphNode
		if err := nodeRows.Scan(&n.Slug, &n.Title); err != nil {
			return nil, nil, fmt.Errorf("index: scan graph node: %w", err)
		}
		n.Resolved = true
		seen[n.Slug] = struct{}{}
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	edgeRows, err := db.conn.Query(`SELECT source_slug, target_slug, link_text FROM links ORDER BY source_slug, target_slug`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []GraphEdge
	for edgeRows.Next() {
		var e GraphEdge
		if err := edgeRows.Scan(&e.Source, &e.Target, &e.LinkText); err != nil {
			return nil, nil, fmt.Errorf("index: scan graph edge: %w", err)
		}
		edges = append(edges, e)
		if _, ok := seen[e.Target]; !ok {
			seen[e.Target] = struct{}{}
			nodes = append(nodes, GraphNode{Slug: e.Target, Title: e.Target})
		}
	}
	return nodes, edges, edgeRows.Err()
}

// Titles resolves slugs to note titles. Slugs without a note are left
// out of the map.
func (db *DB) Titles(slugs []string) (map[string]string, error) {
	out := make(map[string]string, len(slugs))
	stmt, err := db.conn.Prepare(`SELECT title FROM notes WHERE slug = ?`)
	if err != nil {
		return nil, fmt.Errorf("index: titles: %w", err)
	}
	defer stmt.Close()

	for _, slug := range slugs {
		var title string
		if err := stmt.QueryRow(slug).Scan(&title); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("index: title %s: %w", slug, err)
		}
		out[slug] = title
	}
	return out, nil
}

// Stats summarizes the stored corpus.
type Stats struct {
	Notes    int `json:"notes"`
	Links    int `json:"links"`
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
}

func (db *DB) Stats() (*Stats, error) {
	var s Stats
	row := db.conn.QueryRow(`SELECT
		(SELECT COUNT(*) FROM notes),
		(SELECT COUNT(*) FROM links),
		(SELECT COUNT(*) FROM chunks),
		(SELECT COUNT(*) FROM embeddings)`)
	if err := row.Scan(&s.Notes, &s.Links, &s.Chunks, &s.Embedded); err != nil {
		return nil, fmt.Errorf("index: stats: %w", err)
	}
	return &s, nil
}
