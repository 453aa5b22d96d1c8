package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProviderConfig
		wantDim int
		wantErr error
	}{
		{
			name:    "tei with known model",
			cfg:     ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"},
			wantDim: 768,
		},
		{
			name:    "tei with explicit dimension",
			cfg:     ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "custom", Dimension: 256},
			wantDim: 256,
		},
		{
			name:    "openai small",
			cfg:     ProviderConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "sk-test"},
			wantDim: 1536,
		},
		{
			name:    "openai large",
			cfg:     ProviderConfig{Provider: "openai", Model: "text-embedding-3-large", APIKey: "sk-test"},
			wantDim: 3072,
		},
		{
			name:    "tei without base URL",
			cfg:     ProviderConfig{Provider: "tei"},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "unknown provider",
			cfg:     ProviderConfig{Provider: "word2vec"},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, zap.NewNop())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Close() })
			assert.Equal(t, tt.wantDim, p.Dimension())
		})
	}
}

func TestProviderConfig_ApplyDefaults(t *testing.T) {
	var cfg ProviderConfig
	cfg.ApplyDefaults()
	assert.Equal(t, "fastembed", cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 64, cfg.BatchSize)
}

func TestDimensionFor(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"BAAI/bge-small-en-v1.5", 384},
		{"BAAI/bge-small-zh-v1.5", 512},
		{"thenlper/gte-large", 1024},
		{"nomic-ai/nomic-embed-text-v1.5-base", 768},
		{"unknown", 384},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, dimensionFor(ProviderConfig{Model: tt.model}))
		})
	}
}
