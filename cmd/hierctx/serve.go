package main

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/hierctx/internal/http"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with the retrieval, chat, upload and reindex
endpoints, Prometheus metrics at /metrics and MCP over streamable HTTP at
/api/v1/mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rebuild)
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild every partition from the corpus before serving")
	return cmd
}

// runServe starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func runServe(ctx context.Context, rebuild bool) error {
	a, err := newApp(ctx, logStdout)
	if err != nil {
		return err
	}
	defer a.Close()

	if rebuild {
		report, err := a.service.Rebuild(ctx, "")
		if err != nil {
			return fmt.Errorf("initial rebuild failed: %w", err)
		}
		a.logger.Info(ctx, "initial rebuild completed",
			zap.Int("documents", report.Documents),
			zap.Int("chunks", report.Chunks),
		)
	}

	srv, err := httpserver.NewServer(a.service, a.logger, a.cfg.Server,
		httpserver.WithUploadLimit(a.cfg.Retrieval.MaxUploadBytes),
		httpserver.WithPartitions(a.store.Partitions),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	mcpServer, err := mcp.NewServer(&mcp.Config{
		Name:       "hierctx",
		Version:    version,
		Chat:       a.cfg.LLM.Enabled(),
		Partitions: a.store.Partitions,
	}, a.service, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.Mount("/mcp", mcpServer.Handler())

	// Register metrics endpoint
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	if a.cfg.Ingest.Watch.Enabled {
		w, err := ingest.NewWatcher(a.pipeline, a.cfg.Retrieval.CorpusRoot, a.logger.Underlying().Named("watcher"))
		if err != nil {
			return fmt.Errorf("failed to create corpus watcher: %w", err)
		}
		go func() {
			defer close(watchDone)
			if err := w.Run(watchCtx); err != nil {
				a.logger.Error(ctx, "corpus watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	a.logger.Info(ctx, "server configured",
		zap.String("addr", a.cfg.Server.Addr()),
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", a.cfg.Server.Addr())),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("mcp_endpoint", "/api/v1/mcp"),
		zap.Bool("api_key", a.cfg.Server.APIKey.IsSet()),
		zap.Bool("watch", a.cfg.Ingest.Watch.Enabled),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		stopWatch()
		<-watchDone
		return err
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	stopWatch()
	<-watchDone
	if err := <-errCh; err != nil {
		return err
	}
	a.logger.Info(context.Background(), "server shutdown complete")
	return nil
}
