package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/config"
	"github.com/fyrsmithlabs/hierctx/internal/embeddings"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/llm"
	"github.com/fyrsmithlabs/hierctx/internal/logging"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
	"github.com/fyrsmithlabs/hierctx/internal/telemetry"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

// logSink selects where console logs go.
type logSink int

const (
	logStdout logSink = iota
	// logStderr keeps stdout free for a protocol.
	logStderr
	// logNone keeps the terminal free for a full-screen UI.
	logNone
)

// app holds the wired dependencies of a command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	provider  embeddings.Provider
	store     *vectorstore.Store
	pipeline  *ingest.Pipeline
	service   *retrieval.Service
}

// loadConfig reads the dotenv file, then the config file and environment.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newApp initializes every dependency in order:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the embedding provider
//  4. Opens the vector store and restores committed partitions
//  5. Wires the ingest pipeline and the retrieval service
func newApp(ctx context.Context, sink logSink) (a *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.logger, err = newLogger(cfg, sink); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	z := a.logger.Underlying()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), telemetry.WithLogger(z))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if a.provider, err = embeddings.NewProvider(cfg.Embeddings.ProviderConfig(), z.Named("embeddings")); err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	vsCfg := cfg.VectorStore
	if dim := a.provider.Dimension(); dim > 0 {
		vsCfg.Qdrant.VectorSize = uint64(dim)
	}
	backend, err := vectorstore.NewBackend(vsCfg, z.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	a.store = vectorstore.NewStore(backend, z.Named("vectorstore"))
	if err := a.store.Restore(ctx); err != nil {
		return nil, err
	}

	redactor, err := ingest.NewRedactor(cfg.Ingest.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redactor: %w", err)
	}
	a.pipeline, err = ingest.NewPipeline(cfg.Ingest, a.store, a.provider,
		ingest.WithRedactor(redactor),
		ingest.WithLogger(z.Named("ingest")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest pipeline: %w", err)
	}

	opts := []retrieval.ServiceOption{
		retrieval.WithExtensions(cfg.Ingest.Extensions...),
		retrieval.WithGeneralDirs(cfg.Ingest.GeneralDirs...),
		retrieval.WithServiceLogger(z.Named("retrieval")),
	}
	if cfg.LLM.Enabled() {
		chat, err := llm.New(cfg.LLM.ChatConfig(), z.Named("llm"))
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		opts = append(opts, retrieval.WithCompleter(chat))
	}
	a.service, err = retrieval.NewService(cfg.Retrieval, a.store, a.provider, a.pipeline, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrieval service: %w", err)
	}

	a.logger.Info(ctx, "hierctx initialized",
		zap.String("vectorstore", vsCfg.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", a.provider.Dimension()),
		zap.Int("partitions", len(a.store.Partitions())),
		zap.Bool("chat", cfg.LLM.Enabled()),
	)
	return a, nil
}

func newLogger(cfg *config.Config, sink logSink) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging, cfg.Observability.EnableTelemetry)
	if err != nil {
		return nil, err
	}
	switch sink {
	case logStderr:
		logCfg.Output.Stderr = true
	case logNone:
		logCfg.Output.Stdout = false
		if !logCfg.Output.OTEL {
			return logging.Nop(), nil
		}
	}
	return logging.NewLogger(logCfg, global.GetLoggerProvider())
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn(ctx, "closing vector store failed", zap.Error(err))
		}
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn(ctx, "closing embedding provider failed", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
}
