package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a backend.
type Config struct {
	// Provider is "chromem" (default, embedded) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// NewBackend creates the backend named by cfg.Provider.
func NewBackend(cfg Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemBackend(cfg.Chromem, logger)
	case "qdrant":
		return NewQdrantBackend(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
