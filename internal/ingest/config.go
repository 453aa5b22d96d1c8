package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/hierctx/internal/chunker"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// DefaultExtensions are the document types ingested when none are configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// Config configures the ingestion pipeline.
type Config struct {
	Chunk chunker.Config `koanf:"chunk"`

	// Extensions lists the file extensions to ingest, lower case with dot.
	Extensions []string `koanf:"extensions"`

	// GeneralDirs names the top-level directories holding general documents.
	GeneralDirs []string `koanf:"general_dirs"`

	// BatchSize is the number of chunks embedded per request.
	BatchSize int `koanf:"batch_size"`

	Redaction RedactionConfig `koanf:"redaction"`

	Watch WatchConfig `koanf:"watch"`
}

// RedactionConfig configures secret redaction before chunking.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Allowlist is an optional gitleaks-style TOML file with
	// [allowlist] paths and regexes to exclude from redaction.
	Allowlist string `koanf:"allowlist"`
}

// WatchConfig configures the corpus watcher.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`

	// Debounce is the quiet period after the last change before a
	// partition is reindexed.
	Debounce time.Duration `koanf:"debounce"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	c.Chunk.ApplyDefaults()
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if len(c.GeneralDirs) == 0 {
		c.GeneralDirs = []string{hierarchy.DefaultGeneralDir}
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 2 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Chunk.Validate(); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("ingest batch_size must be positive, got %d", c.BatchSize)
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("ingest extension %q must start with a dot", ext)
		}
	}
	for _, d := range c.GeneralDirs {
		if d == "" || strings.ContainsAny(d, `/\`) {
			return fmt.Errorf("general directory %q must be a single path segment", d)
		}
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}
