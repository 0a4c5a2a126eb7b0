// Package testutil provides shared test helpers for setting up vaults,
// databases, and deterministic embedders.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/storage"
)

// FakeDim is the dimension of FakeEmbedder vectors.
const FakeDim = 8

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name(), "fake-embed", FakeDim, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes a markdown file into the vault, creating parent
// directories as needed.
func WriteNote(t *testing.T, vaultDir, relPath, content string) {
	t.Helper()
	full := filepath.Join(vaultDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// FakeEmbedder produces deterministic unit-length vectors derived from
// the text content, so identical texts are maximally similar and tests
// never touch a real model.
type FakeEmbedder struct{}

func (FakeEmbedder) Name() string   { return "fake-embed" }
func (FakeEmbedder) Dimension() int { return FakeDim }

func (f FakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = FakeVector(text)
	}
	return out, nil
}

func (f FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return FakeVector(text), nil
}

// FakeVector hashes text into a normalized FakeDim-dimensional vector.
func FakeVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, FakeDim)
	var norm float64
	for i := range v {
		bits := binary.LittleEndian.Uint32(sum[4*i:])
		v[i] = float32(bits%1000)/1000 + 0.001
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
