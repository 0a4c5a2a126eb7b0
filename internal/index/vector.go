package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/starford/ansuz/internal/models"
)

// vectorToBlob encodes a vector as little-endian float32 bytes for
// storage in the embeddings table.
func vectorToBlob(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func blobToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// VectorRow is one embedded chunk joined with its note, the unit the
// similarity index is built from.
type VectorRow struct {
	ChunkID        int64
	Slug           string
	Title          string
	SourceType     models.SourceType
	SourceTitle    string
	SourceAuthor   string
	Ordinal        int
	Content        string
	HeadingContext string
	Vector         []float32
}

// SemanticHit is one similarity result.
type SemanticHit struct {
	Slug           string            `json:"slug"`
	Title          string            `json:"title"`
	SourceType     models.SourceType `json:"source_type"`
	SourceTitle    string            `json:"source_title,omitempty"`
	SourceAuthor   string            `json:"source_author,omitempty"`
	Ordinal        int               `json:"ordinal"`
	Content        string            `json:"content"`
	HeadingContext string            `json:"heading_context,omitempty"`
	Similarity     float32           `json:"similarity"`
}

// EmbeddedChunks streams every embedded chunk with its note fields and
// decoded vector.
func (db *DB) EmbeddedChunks() ([]VectorRow, error) {
	rows, err := db.conn.Query(`SELECT c.chunk_id, n.slug, n.title, n.source_type, n.source_title, n.source_author,
			c.ordinal, c.content, c.heading_context, e.embedding
		FROM embeddings e
		JOIN chunks c ON c.chunk_id = e.chunk_id
		JOIN notes n ON n.note_id = c.note_id
		ORDER BY n.slug, c.ordinal`)
	if err != nil {
		return nil, fmt.Errorf("index: embedded chunks: %w", err)
	}
	defer rows.Close()

	var out []VectorRow
	for rows.Next() {
		var r VectorRow
		var srcType string
		var blob []byte
		if err := rows.Scan(&r.ChunkID, &r.Slug, &r.Title, &srcType, &r.SourceTitle,
			&r.SourceAuthor, &r.Ordinal, &r.Content, &r.HeadingContext, &blob); err != nil {
			return nil, fmt.Errorf("index: scan embedded chunk: %w", err)
		}
		r.SourceType = models.ParseSourceType(srcType)
		r.Vector = blobToVector(blob)
		out = append(out, r)
	}
	return out, rows.Err()
}

// VectorIndex is an in-memory similarity index over one vault's
// embedded chunks. It is immutable after build; reconciliation builds a
// fresh one and swaps it in.
type VectorIndex struct {
	col  *chromem.Collection
	rows map[string]VectorRow
}

// BuildVectorIndex loads the index from stored rows.
func BuildVectorIndex(ctx context.Context, rows []VectorRow) (*VectorIndex, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("chunks", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: create collection: %w", err)
	}

	byID := make(map[string]VectorRow, len(rows))
	docs := make([]chromem.Document, 0, len(rows))
	for _, r := range rows {
		id := strconv.FormatInt(r.ChunkID, 10)
		byID[id] = r
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   r.Content,
			Embedding: r.Vector,
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("index: add documents: %w", err)
		}
	}
	return &VectorIndex{col: col, rows: byID}, nil
}

// Size returns the number of indexed chunks.
func (vi *VectorIndex) Size() int {
	if vi == nil {
		return 0
	}
	return len(vi.rows)
}

// Search returns up to k chunks nearest to the query vector by cosine
// similarity. Ties break on slug then ordinal so repeated queries give
// identical orderings.
func (vi *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]SemanticHit, error) {
	if vi == nil || len(vi.rows) == 0 || k <= 0 {
		return []SemanticHit{}, nil
	}
	if k > len(vi.rows) {
		k = len(vi.rows)
	}

	results, err := vi.col.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: query,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}

	hits := make([]SemanticHit, 0, len(results))
	for _, res := range results {
		r, ok := vi.rows[res.ID]
		if !ok {
			continue
		}
		hits = append(hits, SemanticHit{
			Slug:           r.Slug,
			Title:          r.Title,
			SourceType:     r.SourceType,
			SourceTitle:    r.SourceTitle,
			SourceAuthor:   r.SourceAuthor,
			Ordinal:        r.Ordinal,
			Content:        r.Content,
			HeadingContext: r.HeadingContext,
			Similarity:     res.Similarity,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].Slug != hits[j].Slug {
			return hits[i].Slug < hits[j].Slug
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	return hits, nil
}
