package embeddings

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DefaultModel is the default local embedding model.
const DefaultModel = "BAAI/bge-small-en-v1.5"

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed" (default), "tei" or "openai".
	Provider string `koanf:"provider"`

	Model string `koanf:"model"`

	// BaseURL is the TEI or OpenAI-compatible endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey is sent to OpenAI-compatible endpoints.
	APIKey string `koanf:"api_key"`

	// CacheDir is the FastEmbed model cache directory.
	CacheDir string `koanf:"cache_dir"`

	// Dimension overrides dimension detection for remote models.
	Dimension int `koanf:"dimension"`

	// BatchSize is the number of chunks embedded per request during ingestion.
	BatchSize int `koanf:"batch_size"`
}

// ApplyDefaults fills zero values.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	metrics := NewMetrics(logger)

	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		svc, err := NewTEIService(TEIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model}, metrics)
		if err != nil {
			return nil, err
		}
		return &fixedDimension{Embedder: svc, dimension: dimensionFor(cfg)}, nil
	case "openai":
		svc, err := NewOpenAIService(OpenAIConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey}, metrics)
		if err != nil {
			return nil, err
		}
		return &fixedDimension{Embedder: svc, dimension: dimensionFor(cfg)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: fastembed, tei, openai)", ErrInvalidConfig, cfg.Provider)
	}
}

// fixedDimension adapts a remote Embedder to Provider.
type fixedDimension struct {
	Embedder
	dimension int
}

func (f *fixedDimension) Dimension() int { return f.dimension }

func (f *fixedDimension) Close() error { return nil }

// dimensionFor returns the configured dimension or guesses it from the model name.
func dimensionFor(cfg ProviderConfig) int {
	if cfg.Dimension > 0 {
		return cfg.Dimension
	}
	if dim, ok := knownDimensions[cfg.Model]; ok {
		return dim
	}
	model := strings.ToLower(cfg.Model)
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "text-embedding"):
		return 1536
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// knownDimensions lists the dimensions of the FastEmbed model family.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}
