package vault_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/vault"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHub(t *testing.T, events vault.EventFunc) (*vault.Hub, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteNote(t, root, "alpha.md", "Alpha links to [[Beta]].")
	testutil.WriteNote(t, root, "beta.md", "Beta stands alone.")

	hub, err := vault.New(context.Background(), []vault.Config{{
		ID:     "main",
		Name:   "Main",
		Root:   root,
		DBPath: filepath.Join(t.TempDir(), "main.db"),
	}}, vault.Options{
		Embedder: testutil.FakeEmbedder{},
		Logger:   discard(),
		Events:   events,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hub.Close() })
	return hub, root
}

func TestGetDefaultsToFirstVault(t *testing.T) {
	hub, _ := testHub(t, nil)

	byID, err := hub.Get("main")
	if err != nil {
		t.Fatal(err)
	}
	byDefault, err := hub.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if byID != byDefault {
		t.Fatal("empty id should resolve to the first configured vault")
	}

	if _, err := hub.Get("nope"); !errors.Is(err, apperr.ErrVaultUnknown) {
		t.Fatalf("expected unknown vault error, got %v", err)
	}
}

func TestReingestMakesVaultQueryable(t *testing.T) {
	var mu sync.Mutex
	var kinds []string
	hub, _ := testHub(t, func(vaultID, kind, detail string) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	})

	v, err := hub.Get("")
	if err != nil {
		t.Fatal(err)
	}
	stats, err := hub.Reingest(context.Background(), v)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	backs, err := v.Engine().Backlinks(context.Background(), "beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(backs) != 1 || backs[0].SourceSlug != "alpha" {
		t.Fatalf("backlinks = %v", backs)
	}

	hits, err := v.Engine().Semantic(context.Background(), "Beta stands alone.", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("semantic hits = %v", hits)
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds[0] != "ingest.started" || kinds[len(kinds)-1] != "ingest.completed" {
		t.Fatalf("event kinds = %v", kinds)
	}
	found := false
	for _, k := range kinds {
		if k == "note.indexed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no note.indexed events: %v", kinds)
	}
}

func TestReingestSwapsVectorIndex(t *testing.T) {
	hub, root := testHub(t, nil)
	v, err := hub.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Reingest(context.Background(), v); err != nil {
		t.Fatal(err)
	}

	testutil.WriteNote(t, root, "gamma.md", "A brand new gamma note.")
	if _, err := hub.Reingest(context.Background(), v); err != nil {
		t.Fatal(err)
	}

	hits, err := v.Engine().Semantic(context.Background(), "A brand new gamma note.", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Slug != "gamma" {
		t.Fatalf("hits = %v", hits)
	}
}

func TestHealthReflectsStore(t *testing.T) {
	hub, _ := testHub(t, nil)
	v, err := hub.Get("")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hub.Reingest(context.Background(), v); err != nil {
		t.Fatal(err)
	}

	h := v.Health()
	if !h.OK || !h.StoreExists || h.Notes != 2 || h.Indexed == 0 {
		t.Fatalf("health = %+v", h)
	}
}

func TestVaultsAreIndependent(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	testutil.WriteNote(t, rootA, "only-a.md", "exists only in a")
	testutil.WriteNote(t, rootB, "only-b.md", "exists only in b")

	hub, err := vault.New(context.Background(), []vault.Config{
		{ID: "a", Name: "A", Root: rootA, DBPath: filepath.Join(t.TempDir(), "a.db")},
		{ID: "b", Name: "B", Root: rootB, DBPath: filepath.Join(t.TempDir(), "b.db")},
	}, vault.Options{Embedder: testutil.FakeEmbedder{}, Logger: discard()})
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	if err := hub.ReingestAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	va, _ := hub.Get("a")
	vb, _ := hub.Get("b")
	if _, err := va.DB().GetNote("only-b"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatal("vault a sees vault b's note")
	}
	if _, err := vb.DB().GetNote("only-a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatal("vault b sees vault a's note")
	}
}
