package index_test

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
)

func noteRow(slug, title string) index.NoteRow {
	return index.NoteRow{
		Slug:       slug,
		FilePath:   slug + ".md",
		Title:      title,
		SourceType: models.SourcePermanent,
		Tags:       []string{},
		Checksum:   "sum-" + slug,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestReplaceNoteRoundTrip(t *testing.T) {
	db := testutil.TestDB(t)

	row := noteRow("alpha", "Alpha")
	row.SourceType = models.SourceBook
	row.SourceTitle = "Thinking in Systems"
	row.SourceAuthor = "Donella Meadows"
	row.Tags = []string{"systems"}
	links := []models.Link{
		{SourceSlug: "alpha", TargetSlug: "beta", LinkText: "Beta"},
		{SourceSlug: "alpha", TargetSlug: "beta", LinkText: "see beta"},
	}
	chunks := []models.Chunk{
		{Ordinal: 0, Content: "first"},
		{Ordinal: 1, Content: "second", HeadingContext: "Stocks"},
	}
	vectors := [][]float32{testutil.FakeVector("first"), nil}

	if err := db.ReplaceNote(row, links, chunks, vectors); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetNote("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Alpha" || got.SourceType != models.SourceBook || got.SourceAuthor != "Donella Meadows" {
		t.Fatalf("unexpected note: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "systems" {
		t.Fatalf("tags = %v", got.Tags)
	}

	backs, err := db.Backlinks("beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(backs) != 2 {
		t.Fatalf("expected duplicate edges preserved, got %d backlinks", len(backs))
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 1 || stats.Chunks != 2 || stats.Embedded != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestReplaceNoteOverwrites(t *testing.T) {
	db := testutil.TestDB(t)

	if err := db.ReplaceNote(noteRow("alpha", "Alpha"),
		[]models.Link{{SourceSlug: "alpha", TargetSlug: "old"}},
		[]models.Chunk{{Ordinal: 0, Content: "v1"}},
		[][]float32{testutil.FakeVector("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceNote(noteRow("alpha", "Alpha v2"),
		[]models.Link{{SourceSlug: "alpha", TargetSlug: "new"}},
		[]models.Chunk{{Ordinal: 0, Content: "v2"}},
		[][]float32{testutil.FakeVector("v2")}); err != nil {
		t.Fatal(err)
	}

	if backs, _ := db.Backlinks("old"); len(backs) != 0 {
		t.Fatalf("stale link survived: %v", backs)
	}
	if backs, _ := db.Backlinks("new"); len(backs) != 1 {
		t.Fatalf("new link missing")
	}
	got, err := db.GetNote("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Alpha v2" {
		t.Fatalf("title = %q", got.Title)
	}
	stats, _ := db.Stats()
	if stats.Notes != 1 || stats.Chunks != 1 || stats.Embedded != 1 {
		t.Fatalf("stats after overwrite = %+v", stats)
	}
}

func TestDeleteNoteKeepsIncomingLinks(t *testing.T) {
	db := testutil.TestDB(t)

	mustReplace(t, db, "alpha", "beta")
	mustReplace(t, db, "beta")

	if err := db.DeleteNote("beta"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetNote("beta"); err == nil {
		t.Fatal("expected beta gone")
	}
	backs, err := db.Backlinks("beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(backs) != 1 || backs[0].SourceSlug != "alpha" {
		t.Fatalf("incoming links should survive deletion, got %v", backs)
	}
}

func TestNeighborsUnion(t *testing.T) {
	db := testutil.TestDB(t)

	mustReplace(t, db, "alpha", "beta")
	mustReplace(t, db, "beta")
	mustReplace(t, db, "gamma", "alpha")

	n, err := db.Neighbors("alpha")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"beta", "gamma"} {
		if _, ok := n[want]; !ok {
			t.Errorf("missing neighbor %s", want)
		}
	}
	if len(n) != 2 {
		t.Fatalf("neighbors = %v", n)
	}
}

func TestAdjacencyDirected(t *testing.T) {
	db := testutil.TestDB(t)

	mustReplace(t, db, "alpha", "beta", "beta") // duplicate edge
	mustReplace(t, db, "beta", "gamma")

	adj, err := db.Adjacency()
	if err != nil {
		t.Fatal(err)
	}
	if len(adj["alpha"]) != 1 || adj["alpha"][0] != "beta" {
		t.Fatalf("duplicate edges should collapse, alpha adj = %v", adj["alpha"])
	}
	if len(adj["beta"]) != 1 || adj["beta"][0] != "gamma" {
		t.Fatalf("beta adj = %v", adj["beta"])
	}
	if _, ok := adj["gamma"]; ok {
		t.Fatalf("gamma has no outgoing edges, adj = %v", adj["gamma"])
	}
}

func TestGraphIncludesUnresolvedTargets(t *testing.T) {
	db := testutil.TestDB(t)

	mustReplace(t, db, "alpha", "ghost")

	nodes, edges, err := db.Graph()
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %v", edges)
	}
	var ghost *index.GraphNode
	for i := range nodes {
		if nodes[i].Slug == "ghost" {
			ghost = &nodes[i]
		}
	}
	if ghost == nil {
		t.Fatal("dangling target missing from nodes")
	}
	if ghost.Resolved {
		t.Fatal("ghost should be unresolved")
	}
}

func TestOpenRejectsModelMismatch(t *testing.T) {
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name(), "model-a", 8, false)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := index.Open(dbFile.Name(), "model-b", 16, false); !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	// Rebuild drops everything and adopts the new model.
	db, err = index.Open(dbFile.Name(), "model-b", 16, true)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Notes != 0 {
		t.Fatalf("rebuild should clear notes, got %+v", stats)
	}
}

func mustReplace(t *testing.T, db *index.DB, slug string, targets ...string) {
	t.Helper()
	links := make([]models.Link, 0, len(targets))
	for _, target := range targets {
		links = append(links, models.Link{SourceSlug: slug, TargetSlug: target, LinkText: target})
	}
	content := "body of " + slug
	if err := db.ReplaceNote(noteRow(slug, slug),
		links,
		[]models.Chunk{{Ordinal: 0, Content: content}},
		[][]float32{testutil.FakeVector(content)}); err != nil {
		t.Fatal(err)
	}
}

func TestUnembeddedChunkStaysAddressable(t *testing.T) {
	db := testutil.TestDB(t)

	links := []models.Link{{SourceSlug: "alpha", TargetSlug: "beta", LinkText: "Beta"}}
	chunks := []models.Chunk{
		{Ordinal: 0, Content: "embedded"},
		{Ordinal: 1, Content: "embedding failed"},
	}
	vectors := [][]float32{testutil.FakeVector("embedded"), nil}
	if err := db.ReplaceNote(noteRow("alpha", "Alpha"), links, chunks, vectors); err != nil {
		t.Fatal(err)
	}

	rows, err := db.EmbeddedChunks()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Ordinal != 0 {
		t.Fatalf("vector rows = %v", rows)
	}

	if _, err := db.GetNote("alpha"); err != nil {
		t.Fatalf("note should remain addressable: %v", err)
	}
	backs, err := db.Backlinks("beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(backs) != 1 {
		t.Fatalf("backlinks = %v", backs)
	}
}

func TestReplaceNoteRejectsWrongDimension(t *testing.T) {
	db := testutil.TestDB(t)

	chunks := []models.Chunk{{Ordinal: 0, Content: "short vector"}}
	err := db.ReplaceNote(noteRow("alpha", "Alpha"), nil, chunks, [][]float32{{1, 2, 3}})
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}

	rows, err := db.EmbeddedChunks()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("mismatched vector was persisted: %v", rows)
	}
}
