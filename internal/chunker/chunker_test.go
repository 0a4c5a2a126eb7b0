package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/models"
)

func TestSplit_Deterministic(t *testing.T) {
	body := "# A\n\npara one\n\npara two\n\n## B\n\npara three\n"
	a := Split(body, 0)
	b := Split(body, 0)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSplit_OrdinalsStrictlyIncreasing(t *testing.T) {
	chunks := Split(strings.Repeat("word ", 400), 100)
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, c.Ordinal)
		}
	}
}

func TestSplit_HeadingContext(t *testing.T) {
	body := "intro before any heading\n\n# Top\n\nunder top\n\n## Nested\n\nunder nested\n\n# Other\n\nunder other\n"
	chunks := Split(body, 40)

	byContent := func(s string) models.Chunk {
		t.Helper()
		for _, c := range chunks {
			if strings.Contains(c.Content, s) {
				return c
			}
		}
		t.Fatalf("no chunk contains %q", s)
		return models.Chunk{}
	}

	if got := byContent("intro before").HeadingContext; got != "" {
		t.Errorf("pre-heading context = %q, want empty", got)
	}
	if got := byContent("under top").HeadingContext; got != "Top" {
		t.Errorf("context = %q, want Top", got)
	}
	if got := byContent("under nested").HeadingContext; got != "Top > Nested" {
		t.Errorf("context = %q, want Top > Nested", got)
	}
	// A new H1 closes the previous stack.
	if got := byContent("under other").HeadingContext; got != "Other" {
		t.Errorf("context = %q, want Other", got)
	}
}

func TestSplit_PacksSmallParagraphs(t *testing.T) {
	body := "# H\n\naa\n\nbb\n\ncc\n"
	chunks := Split(body, 512)
	// The heading and its three small paragraphs pack into one chunk
	// rather than producing one chunk per block.
	if len(chunks) != 1 {
		t.Fatalf("len = %d, want 1: %+v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0].Content, "aa") || !strings.Contains(chunks[0].Content, "cc") {
		t.Errorf("paragraphs not packed: %q", chunks[0].Content)
	}
}

func TestSplit_NeverSplitsCodeFence(t *testing.T) {
	code := "```go\n" + strings.Repeat("fmt.Println(\"x\")\n", 60) + "```"
	body := "para\n\n" + code + "\n\nafter\n"
	chunks := Split(body, 100)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "```go") {
			found = true
			if !strings.HasSuffix(c.Content, "```") {
				t.Error("code fence was split across chunks")
			}
			if len(c.Content) <= 100 {
				t.Error("expected oversized code chunk to stay whole")
			}
		}
	}
	if !found {
		t.Fatal("code block missing from chunks")
	}
}

func TestSplit_OversizedParagraphWraps(t *testing.T) {
	body := strings.Repeat("alpha beta gamma ", 60)
	chunks := Split(body, 128)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Content) > 128 {
			t.Errorf("chunk exceeds max: %d chars", len(c.Content))
		}
	}
}

func TestSplit_LosslessReconstruction(t *testing.T) {
	body := "---ish intro\n\n# Title\n\nfirst paragraph\nwith a second line\n\n```py\nprint(1)\n\nprint(2)\n```\n\n## Sub\n\n- item one\n- item two\n"
	chunks := Split(body, 64)

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Content)
		joined.WriteString("\n\n")
	}
	if normalizeWS(joined.String()) != normalizeWS(body) {
		t.Errorf("reconstruction lost content:\n got %q\nwant %q",
			normalizeWS(joined.String()), normalizeWS(body))
	}
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestEmbeddingText(t *testing.T) {
	c := models.Chunk{Content: "the content", HeadingContext: "Top > Sub"}
	got := EmbeddingText(c, "My Note")
	want := "Title: My Note | Section: Top > Sub | the content"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = EmbeddingText(models.Chunk{Content: "only"}, "")
	if got != "only" {
		t.Errorf("got %q, want %q", got, "only")
	}
}

func TestSplit_EmptyBody(t *testing.T) {
	if chunks := Split("", 512); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %v", chunks)
	}
	if chunks := Split("\n\n\n", 512); len(chunks) != 0 {
		t.Errorf("expected no chunks for blank body, got %v", chunks)
	}
}

func TestSplit_WrapKeepsRunesIntact(t *testing.T) {
	// 300 three-byte runes with no spaces or newlines forces the hard
	// byte cut, and 100 % 3 != 0 would land it mid-rune.
	body := strings.Repeat("日", 300)
	for _, c := range Split(body, 100) {
		if !utf8.ValidString(c.Content) {
			t.Fatalf("chunk split a rune: %q", c.Content)
		}
	}
}
