// Package config loads hierctx configuration from a YAML file and
// HIERCTX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/hierctx/internal/embeddings"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/llm"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

// Config is the complete hierctx configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Retrieval     retrieval.Config    `koanf:"retrieval"`
	Ingest        ingest.Config       `koanf:"ingest"`
	VectorStore   vectorstore.Config  `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// APIKey, when set, is required in the X-API-Key header on /api/v1.
	APIKey Secret `koanf:"api_key"`

	CORSOrigins     []string `koanf:"cors_origins"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// ProviderConfig returns the embeddings provider configuration.
func (e EmbeddingsConfig) ProviderConfig() embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		Provider:  e.Provider,
		Model:     e.Model,
		BaseURL:   e.BaseURL,
		APIKey:    e.APIKey.Value(),
		CacheDir:  e.CacheDir,
		Dimension: e.Dimension,
	}
}

// LLMConfig configures the chat model used by chat endpoints.
type LLMConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	RateLimit   float64  `koanf:"rate_limit"`
	Burst       int      `koanf:"burst"`
	Timeout     Duration `koanf:"timeout"`
}

// Enabled reports whether chat is configured. A model server without
// authentication is enabled through base_url alone.
func (l LLMConfig) Enabled() bool {
	return l.APIKey.IsSet() || l.BaseURL != ""
}

// ChatConfig returns the llm package configuration.
func (l LLMConfig) ChatConfig() llm.Config {
	return llm.Config{
		BaseURL:     l.BaseURL,
		Model:       l.Model,
		APIKey:      l.APIKey.Value(),
		Temperature: l.Temperature,
		MaxTokens:   l.MaxTokens,
		RateLimit:   l.RateLimit,
		Burst:       l.Burst,
		Timeout:     l.Timeout.Duration(),
	}
}

// LoggingConfig holds the logging settings read from file and environment.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// applyDefaults sets default values for missing fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(2 * time.Minute)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	cfg.Retrieval.ApplyDefaults()
	cfg.Ingest.ApplyDefaults()

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Provider == "chromem" && cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/hierctx/vectorstore"
	}
	if cfg.VectorStore.Provider == "qdrant" {
		cfg.VectorStore.Qdrant.ApplyDefaults()
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = embeddings.DefaultModel
	}
	if cfg.Embeddings.Provider == "tei" && cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 2
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 5
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "hierctx"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if err := c.Retrieval.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Ingest.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if err := c.VectorStore.Qdrant.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("vectorstore provider must be chromem or qdrant, got %q", c.VectorStore.Provider))
	}

	switch c.Embeddings.Provider {
	case "fastembed":
	case "tei":
		if c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings base_url is required for tei"))
		}
	case "openai":
		if !c.Embeddings.APIKey.IsSet() && c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings api_key or base_url is required for openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("embeddings provider must be fastembed, tei or openai, got %q", c.Embeddings.Provider))
	}

	if err := c.LLM.ChatConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format))
	}

	if c.Observability.EnableTelemetry {
		if c.Observability.ServiceName == "" {
			errs = append(errs, errors.New("service name required when telemetry is enabled"))
		}
		if c.Observability.Protocol != "grpc" && c.Observability.Protocol != "http" {
			errs = append(errs, fmt.Errorf("observability protocol must be grpc or http, got %q", c.Observability.Protocol))
		}
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability sample_rate must be in [0, 1], got %v", c.Observability.SampleRate))
	}

	return errors.Join(errs...)
}
