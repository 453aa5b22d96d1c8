//go:build cgo

package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastEmbedProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("downloads a model")
	}
	p, err := NewFastEmbedProvider(FastEmbedConfig{Model: DefaultModel, CacheDir: t.TempDir()})
	if err != nil {
		t.Skipf("ONNX runtime not available: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	vectors, err := p.EmbedDocuments(context.Background(), []string{"vacation policy", "expense report"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], p.Dimension())

	q, err := p.EmbedQuery(context.Background(), "how many vacation days")
	require.NoError(t, err)
	assert.Len(t, q, 384)
}

func TestFastEmbedProvider_UnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "nope"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
