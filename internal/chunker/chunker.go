// Package chunker splits note bodies into bounded, context-tagged segments.
//
// Splitting happens along structural boundaries first (headings, blank
// lines, fenced code blocks); the resulting blocks are then greedily packed
// into chunks of up to DefaultMaxChars characters. Fenced code blocks are
// never split, even when they exceed the target size. The same input always
// yields the same sequence.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/models"
)

// DefaultMaxChars is the target chunk size in characters.
const DefaultMaxChars = 512

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockCode
)

type block struct {
	text    string
	kind    blockKind
	context string
}

// Split breaks body into ordered chunks of at most maxChars characters
// (code blocks excepted). Ordinals are assigned 0..n-1 in document order.
func Split(body string, maxChars int) []models.Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	blocks := splitBlocks(body)

	var chunks []models.Chunk
	var cur strings.Builder
	curContext := ""

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, models.Chunk{
			Content:        cur.String(),
			HeadingContext: curContext,
		})
		cur.Reset()
	}

	add := func(text, context string) {
		if cur.Len() > 0 && (curContext != context || cur.Len()+2+len(text) > maxChars) {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		} else {
			curContext = context
		}
		cur.WriteString(text)
	}

	for _, b := range blocks {
		switch {
		case b.kind == blockHeading:
			// Headings always start a fresh chunk.
			flush()
			add(b.text, b.context)

		case len(b.text) <= maxChars:
			add(b.text, b.context)

		case b.kind == blockCode:
			// Oversized fence stays whole.
			flush()
			add(b.text, b.context)
			flush()

		default:
			flush()
			for _, part := range wrap(b.text, maxChars) {
				add(part, b.context)
				flush()
			}
		}
	}
	flush()

	for i := range chunks {
		chunks[i].Ordinal = i
	}
	return chunks
}

// EmbeddingText composes the string sent to the embedding model:
// "Title: T | Section: S | content", omitting empty parts.
func EmbeddingText(c models.Chunk, noteTitle string) string {
	var parts []string
	if noteTitle != "" {
		parts = append(parts, "Title: "+noteTitle)
	}
	if c.HeadingContext != "" {
		parts = append(parts, "Section: "+c.HeadingContext)
	}
	parts = append(parts, c.Content)
	return strings.Join(parts, " | ")
}

// splitBlocks cuts body into heading, code, and paragraph blocks, tagging
// each with the heading path in effect where it starts. The heading path
// tracks the most recent heading at each level, joined with " > ".
func splitBlocks(body string) []block {
	lines := strings.Split(body, "\n")

	var blocks []block
	var headings []string // open heading per level, index = level-1

	context := func() string {
		var active []string
		for _, h := range headings {
			if h != "" {
				active = append(active, h)
			}
		}
		return strings.Join(active, " > ")
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if strings.HasPrefix(line, "```") {
			code := []string{line}
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				code = append(code, lines[i])
				i++
			}
			if i < len(lines) {
				code = append(code, lines[i])
				i++
			}
			blocks = append(blocks, block{text: strings.Join(code, "\n"), kind: blockCode, context: context()})
			continue
		}

		if level, title := headingLine(line); level > 0 {
			if level <= len(headings) {
				headings = headings[:level-1]
			}
			for len(headings) < level-1 {
				headings = append(headings, "")
			}
			headings = append(headings, title)
			blocks = append(blocks, block{text: strings.TrimRight(line, " \t"), kind: blockHeading, context: context()})
			i++
			continue
		}

		if strings.TrimSpace(line) == "" {
			i++
			continue
		}

		var para []string
		for i < len(lines) {
			l := lines[i]
			if strings.TrimSpace(l) == "" || strings.HasPrefix(l, "```") {
				break
			}
			if lvl, _ := headingLine(l); lvl > 0 {
				break
			}
			para = append(para, l)
			i++
		}
		blocks = append(blocks, block{text: strings.Join(para, "\n"), kind: blockParagraph, context: context()})
	}
	return blocks
}

// headingLine returns the ATX heading level and title, or (0, "").
func headingLine(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, ""
	}
	return level, strings.TrimSpace(rest)
}

// wrap hard-splits an oversized paragraph, preferring to break at a
// newline past the halfway point so list items stay together.
func wrap(text string, maxChars int) []string {
	var parts []string
	rest := text
	for len(rest) > maxChars {
		take := rest[:maxChars]
		cut := maxChars
		if nl := strings.LastIndex(take, "\n"); nl > maxChars/2 {
			cut = nl + 1
		} else if sp := strings.LastIndex(take, " "); sp > maxChars/2 {
			cut = sp + 1
		} else {
			// Hard byte cut: back up to a rune boundary.
			for cut > 1 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
		}
		part := strings.TrimSpace(rest[:cut])
		if part != "" {
			parts = append(parts, part)
		}
		rest = rest[cut:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		parts = append(parts, s)
	}
	return parts
}
