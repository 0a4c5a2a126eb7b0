// Package parser extracts frontmatter, wikilinks, and metadata from
// markdown notes, producing the Note record and its outgoing edges.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	h1Re       = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Result holds the output of parsing a markdown file.
type Result struct {
	Frontmatter  map[string]any
	Body         string
	Title        string
	Tags         []string
	SourceType   models.SourceType
	SourceTitle  string
	SourceAuthor string
	SourceURL    string
	Links        []models.Link
}

// Slug derives the canonical note identity from a vault-relative path:
// extension stripped, each path segment lowercased with spaces and
// underscores folded to dashes. Pure and deterministic, so re-ingesting
// identical input yields identical slugs.
func Slug(relPath string) string {
	p := strings.ReplaceAll(relPath, "\\", "/")
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = normalizeSegment(s)
	}
	return strings.Join(segs, "/")
}

func normalizeSegment(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, "_", "-")
}

// Parse extracts frontmatter, body, metadata, and wikilink edges from raw
// markdown bytes. relPath is the note's vault-relative path; it determines
// the slug and the title fallback.
func Parse(relPath string, data []byte) *Result {
	fm, body := splitFrontmatter(data)
	slug := Slug(relPath)

	res := &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body, relPath),
		Tags:        extractTags(fm),
		Links:       extractLinks(slug, body),
	}

	res.SourceType = models.ParseSourceType(fmString(fm, "source_type"))
	res.SourceTitle = fmString(fm, "source_title")
	res.SourceAuthor = fmString(fm, "source_author")
	res.SourceURL = fmString(fm, "source_url")

	return res
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the markdown body. Missing or malformed frontmatter is not an error:
// the entire content becomes body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractLinks returns wikilink edges in document order. Edges are not
// deduplicated and the target need not exist. Supported forms:
// [[Target]], [[Target|Display]], [[Target#Section]], [[Target#Section|Display]].
func extractLinks(sourceSlug, body string) []models.Link {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	var out []models.Link
	for _, m := range matches {
		inner := m[1]

		target := inner
		display := ""
		if i := strings.Index(inner, "|"); i >= 0 {
			target = inner[:i]
			display = strings.TrimSpace(inner[i+1:])
		}
		// Section anchors address a heading inside the target note; the
		// edge points at the note itself.
		if i := strings.Index(target, "#"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		text := display
		if text == "" {
			text = target
		}
		out = append(out, models.Link{
			SourceSlug: sourceSlug,
			TargetSlug: Slug(target),
			LinkText:   text,
		})
	}
	return out
}

// extractTags collects the frontmatter "tags" list, case-normalized.
// A scalar tags value is treated as a single tag.
func extractTags(fm map[string]any) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["tags"]
	if !ok {
		return nil
	}

	var items []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = append(items, v)
	}

	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, t := range items {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, "#")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise the file stem.
func deriveTitle(fm map[string]any, body, relPath string) string {
	if t := fmString(fm, "title"); t != "" {
		return t
	}
	if m := h1Re.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := path.Base(strings.ReplaceAll(relPath, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func fmString(fm map[string]any, key string) string {
	if fm == nil {
		return ""
	}
	if v, ok := fm[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
