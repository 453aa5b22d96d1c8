// Package testutil holds test doubles shared across package tests.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Texts sharing
// words get similar vectors; no model is needed.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder with dim dimensions.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// EmbedDocuments embeds each text.
func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Embed(t)
	}
	return out, nil
}

// EmbedQuery embeds a single query.
func (e *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.Embed(text), nil
}

// Dimension returns the vector size.
func (e *HashEmbedder) Dimension() int { return e.Dim }

// Close is a no-op.
func (e *HashEmbedder) Close() error { return nil }

// Embed returns the unit vector for text. Dimension 0 carries a constant
// bias so no vector is ever zero.
func (e *HashEmbedder) Embed(text string) []float32 {
	v := make([]float32, e.Dim)
	v[0] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%uint32(e.Dim-1))]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
