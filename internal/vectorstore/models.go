package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// Document is a chunk ready for storage: text, position and hierarchy tag,
// plus its embedding.
type Document struct {
	// ID is deterministic for a given source and index.
	ID string

	Content string

	// Source is the owning document path relative to the corpus root.
	Source string

	// Index is the chunk's position within its source document.
	Index int

	Metadata hierarchy.Metadata

	Vector []float32
}

// SearchResult is a stored chunk returned by a similarity search.
type SearchResult struct {
	ID       string             `json:"id"`
	Content  string             `json:"content"`
	Source   string             `json:"source"`
	Index    int                `json:"chunk_index"`
	Metadata hierarchy.Metadata `json:"metadata"`

	// Score is the similarity score (higher = more similar).
	Score float32 `json:"score"`
}

// payload flattens the stored attributes of d.
func (d Document) payload() map[string]string {
	kv := d.Metadata.Map()
	kv[hierarchy.KeySource] = d.Source
	kv[hierarchy.KeyChunkIndex] = strconv.Itoa(d.Index)
	return kv
}

// resultFromPayload rebuilds a SearchResult from stored attributes.
func resultFromPayload(id, content string, score float32, kv map[string]string) (SearchResult, error) {
	m, err := hierarchy.MetadataFromMap(kv)
	if err != nil {
		return SearchResult{}, fmt.Errorf("stored chunk %s: %w", id, err)
	}
	return SearchResult{
		ID:       id,
		Content:  content,
		Source:   kv[hierarchy.KeySource],
		Index:    hierarchy.ChunkIndexFromMap(kv),
		Metadata: m,
		Score:    score,
	}, nil
}
