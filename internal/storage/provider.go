// Package storage defines the vault file-system abstraction. Vaults are
// read-only input: ingestion walks them, nothing writes back.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for vault file access.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
}
