// Package index provides the SQLite-backed store for a single vault:
// notes, links, chunks, and embeddings, plus an in-memory similarity
// index over the embeddings.
package index

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	note_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	slug          TEXT NOT NULL UNIQUE,
	file_path     TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	source_type   TEXT NOT NULL DEFAULT '',
	source_title  TEXT NOT NULL DEFAULT '',
	source_author TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	checksum      TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Multigraph: duplicate edges and self-loops are data, so no UNIQUE here.
CREATE TABLE IF NOT EXISTS links (
	source_slug TEXT NOT NULL,
	target_slug TEXT NOT NULL,
	link_text   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_slug);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_slug);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id         INTEGER NOT NULL,
	ordinal         INTEGER NOT NULL,
	content         TEXT NOT NULL,
	heading_context TEXT NOT NULL DEFAULT '',
	UNIQUE(note_id, ordinal),
	FOREIGN KEY (note_id) REFERENCES notes(note_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_note ON chunks(note_id);

-- A chunk may have no embedding row when generation failed; such chunks
-- stay addressable but are absent from semantic results.
CREATE TABLE IF NOT EXISTS embeddings (
	chunk_id  INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL,
	FOREIGN KEY (chunk_id) REFERENCES chunks(chunk_id) ON DELETE CASCADE
);
`

// Meta keys.
const (
	metaModelName = "model_name"
	metaDimension = "embedding_dim"
)

// DB wraps a sql.DB with store-specific operations for one vault.
type DB struct {
	conn  *sql.DB
	model string
	dim   int
}

// Open opens (or creates) the vault database and applies the schema.
// The stored embedding model and dimension must match the configured
// ones; a mismatch is a configuration fault requiring either a rebuild
// or a config fix, never silently mixed vectors. With rebuild set, all
// derived rows are dropped and the meta rewritten instead.
func Open(dsn, model string, dim int, rebuild bool) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}

	db := &DB{conn: conn, model: model, dim: dim}

	if rebuild {
		if err := db.DropDerived(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if err := db.verifyMeta(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// verifyMeta checks the stored model/dimension pair against the configured
// one, writing it on first use.
func (db *DB) verifyMeta() error {
	storedModel, _ := db.getMeta(metaModelName)
	storedDim, _ := db.getMeta(metaDimension)

	if storedModel == "" && storedDim == "" {
		return db.writeMeta()
	}
	if storedModel != db.model || storedDim != strconv.Itoa(db.dim) {
		return fmt.Errorf("index: store built with model %s (dim %s), configured %s (dim %d), re-ingest with rebuild: %w",
			storedModel, storedDim, db.model, db.dim, apperr.ErrDimensionMismatch)
	}
	return nil
}

func (db *DB) writeMeta() error {
	for k, v := range map[string]string{
		metaModelName: db.model,
		metaDimension: strconv.Itoa(db.dim),
	} {
		if _, err := db.conn.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("index: write meta: %w", err)
		}
	}
	return nil
}

func (db *DB) getMeta(key string) (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", nil // absent is fine
	}
	return v, nil
}

// DropDerived deletes every derived row for a full rebuild and rewrites
// the meta for the configured model.
func (db *DB) DropDerived() error {
	for _, table := range []string{"embeddings", "chunks", "links", "notes", "meta"} {
		if _, err := db.conn.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: drop %s: %w", table, err)
		}
	}
	return db.writeMeta()
}

// Dimension returns the configured embedding dimension.
func (db *DB) Dimension() int { return db.dim }

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
