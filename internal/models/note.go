// Package models defines the domain types for Ansuz.
package models

import "time"

// SourceType classifies where a note's material came from.
type SourceType string

// Recognized source types. Anything else is treated as absent.
const (
	SourceBook      SourceType = "book"
	SourceCourse    SourceType = "course"
	SourceTalk      SourceType = "talk"
	SourceProject   SourceType = "project"
	SourcePermanent SourceType = "permanent"
	SourceAbsent    SourceType = ""
)

// ParseSourceType maps a raw frontmatter value onto the recognized set.
func ParseSourceType(raw string) SourceType {
	switch SourceType(raw) {
	case SourceBook, SourceCourse, SourceTalk, SourceProject, SourcePermanent:
		return SourceType(raw)
	}
	return SourceAbsent
}

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a directed reference edge between two notes. Target need not
// resolve to an existing note; dangling edges are kept as data. Links are
// not deduplicated, so the graph is a multigraph.
type Link struct {
	SourceSlug string `json:"source_slug"`
	TargetSlug string `json:"target_slug"`
	LinkText   string `json:"link_text"`
}

// Chunk is a bounded segment of a note's body, the unit of embedding and
// retrieval. Ordinals are strictly increasing in document order.
type Chunk struct {
	Ordinal        int    `json:"ordinal"`
	Content        string `json:"content"`
	HeadingContext string `json:"heading_context"`
}
