// Package http serves the hierctx API over echo.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/config"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/logging"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

// APIKeyHeader carries the API key on /api/v1 requests.
const APIKeyHeader = "X-API-Key"

// Service is the retrieval surface the server exposes.
type Service interface {
	RetrieveK(ctx context.Context, scope hierarchy.Scope, question string, k int) (*retrieval.OrderedContext, error)
	Chat(ctx context.Context, req retrieval.ChatRequest) (*retrieval.ChatResponse, error)
	AddDocument(ctx context.Context, up retrieval.Upload) (*retrieval.UploadResult, error)
	ReindexCompany(ctx context.Context, company, corpusRoot string) (*ingest.Report, error)
	Rebuild(ctx context.Context, corpusRoot string) (*ingest.Report, error)
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	service Service
	logger  *logging.Logger
	config  config.ServerConfig

	api        *echo.Group
	maxUpload  int64
	partitions func() []hierarchy.Partition
}

// Option configures a Server.
type Option func(*Server)

// WithUploadLimit bounds the size of an uploaded document.
func WithUploadLimit(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// WithPartitions reports committed partitions on /health.
func WithPartitions(fn func() []hierarchy.Partition) Option {
	return func(s *Server) { s.partitions = fn }
}

// NewServer creates the server and registers its routes.
func NewServer(service Service, logger *logging.Logger, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		service:   service,
		logger:    logger,
		config:    cfg,
		maxUpload: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	e.Use(s.requestLogger())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, APIKeyHeader},
		}))
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	s.api = v1
	// Multipart framing on top of the document itself.
	v1.Use(middleware.BodyLimit(fmt.Sprintf("%dK", s.maxUpload/1024+64)))
	if s.config.APIKey.IsSet() {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:" + APIKeyHeader,
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey.Value())) == 1, nil
			},
			ErrorHandler: func(error, echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			},
		}))
	}

	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/chat", s.handleChat)
	v1.POST("/documents", s.handleUpload)
	v1.POST("/admin/reindex", s.handleReindex)
}

// requestLogger logs each request with the correlation fields of its
// context. Handlers add the scope to the context as they parse it.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// Mount serves h at /api/v1 plus prefix, behind the same API key check
// as the other API routes.
func (s *Server) Mount(prefix string, h http.Handler) {
	wrapped := echo.WrapHandler(h)
	s.api.Any(prefix, wrapped)
	s.api.Any(prefix+"/*", wrapped)
}

// Echo returns the underlying echo instance for extra routes such as /metrics.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		ReadTimeout:  s.config.ReadTimeout.Duration(),
		WriteTimeout: s.config.WriteTimeout.Duration(),
	}
	s.logger.Info(context.Background(), "starting http server",
		zap.String("addr", srv.Addr),
		zap.Bool("api_key", s.config.APIKey.IsSet()),
	)
	err := s.echo.StartServer(srv)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
