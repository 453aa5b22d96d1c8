package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/logging"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

// Service is the retrieval surface the tools call.
type Service interface {
	RetrieveK(ctx context.Context, scope hierarchy.Scope, question string, k int) (*retrieval.OrderedContext, error)
	Chat(ctx context.Context, req retrieval.ChatRequest) (*retrieval.ChatResponse, error)
	ReindexCompany(ctx context.Context, company, corpusRoot string) (*ingest.Report, error)
}

// Server is an MCP server over a retrieval Service.
type Server struct {
	mcp     *mcp.Server
	service Service
	metrics *Metrics
	logger  *logging.Logger

	chat       bool
	partitions func() []hierarchy.Partition
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "hierctx")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Chat registers the ask tool. Leave it off when no chat model is
	// configured.
	Chat bool

	// Partitions, when set, backs the list_partitions tool.
	Partitions func() []hierarchy.Partition
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "hierctx",
		Version: "dev",
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, service Service, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if service == nil {
		return nil, errors.New("retrieval service is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Name == "" {
		cfg.Name = "hierctx"
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service:    service,
		metrics:    NewMetrics(logger.Underlying()),
		logger:     logger.Named("mcp"),
		chat:       cfg.Chat,
		partitions: cfg.Partitions,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Handler serves MCP over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// Connect serves a single session on t. It is used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
