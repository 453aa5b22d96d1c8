package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/embeddings"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/logging"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

// ScopeFields names a position in the hierarchy.
type ScopeFields struct {
	Company    string `json:"company" form:"company"`
	Department string `json:"department,omitempty" form:"department"`
	Employee   string `json:"employee,omitempty" form:"employee"`
}

func (f ScopeFields) scope() hierarchy.Scope {
	return hierarchy.NormalizeScope(hierarchy.Scope{
		Company:    f.Company,
		Department: f.Department,
		Employee:   f.Employee,
	})
}

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	ScopeFields
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// RetrieveResponse is the assembled context.
type RetrieveResponse struct {
	Scope        hierarchy.Scope     `json:"scope"`
	HierarchyKey string              `json:"hierarchy_key"`
	Sections     []retrieval.Section `json:"sections"`
	Context      string              `json:"context"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	ScopeFields
	Question string           `json:"question"`
	History  []retrieval.Turn `json:"history,omitempty"`
}

// ChatResponse is the answer with the sections it was built from.
type ChatResponse struct {
	Answer   string              `json:"answer"`
	Sections []retrieval.Section `json:"sections"`
	History  []retrieval.Turn    `json:"history"`
}

// ReindexRequest is the body of POST /api/v1/admin/reindex. An empty
// company rebuilds everything.
type ReindexRequest struct {
	Company string `json:"company"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string   `json:"status"`
	Partitions []string `json:"partitions,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.partitions != nil {
		for _, p := range s.partitions() {
			resp.Partitions = append(resp.Partitions, p.String())
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.K < 0 || req.K > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "k must be between 1 and 100")
	}
	scope := req.scope()
	ctx := s.withScope(c, scope)

	oc, err := s.service.RetrieveK(ctx, scope, req.Question, req.K)
	if err != nil {
		return s.fail(ctx, "retrieve", err)
	}
	return c.JSON(http.StatusOK, RetrieveResponse{
		Scope:        oc.Scope,
		HierarchyKey: oc.Scope.HierarchyKey(),
		Sections:     sectionsOf(oc),
		Context:      oc.Text(),
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	scope := req.scope()
	ctx := s.withScope(c, scope)

	resp, err := s.service.Chat(ctx, retrieval.ChatRequest{
		Scope:    scope,
		Question: req.Question,
		History:  req.History,
	})
	if err != nil {
		return s.fail(ctx, "chat", err)
	}
	return c.JSON(http.StatusOK, ChatResponse{
		Answer:   resp.Answer,
		Sections: sectionsOf(resp.Context),
		History:  resp.History,
	})
}

func (s *Server) handleUpload(c echo.Context) error {
	var fields ScopeFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	scope := fields.scope()
	ctx := s.withScope(c, scope)

	level := scope.Level()
	if raw := strings.TrimSpace(c.FormValue("level")); raw != "" {
		l, err := hierarchy.ParseLevel(strings.ToLower(raw))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "level must be company, department or employee")
		}
		level = l
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > s.maxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", s.maxUpload))
	}
	f, err := fh.Open()
	if err != nil {
		return s.fail(ctx, "upload", fmt.Errorf("opening upload: %w", err))
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return s.fail(ctx, "upload", fmt.Errorf("reading upload: %w", err))
	}

	res, err := s.service.AddDocument(ctx, retrieval.Upload{
		Scope:    scope,
		Level:    level,
		Filename: fh.Filename,
		Content:  content,
	})
	if err != nil {
		return s.fail(ctx, "upload", err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleReindex(c echo.Context) error {
	var req ReindexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	company := strings.TrimSpace(req.Company)

	var (
		report *ingest.Report
		err    error
	)
	if company == "" {
		report, err = s.service.Rebuild(ctx, "")
	} else {
		ctx = s.withScope(c, hierarchy.Scope{Company: company})
		report, err = s.service.ReindexCompany(ctx, company, "")
	}
	if err != nil {
		return s.fail(ctx, "reindex", err)
	}
	s.logger.Info(ctx, "reindex completed",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Strings("partitions", report.Partitions),
	)
	return c.JSON(http.StatusOK, report)
}

// withScope records scope on the request context so every later log line
// carries it.
func (s *Server) withScope(c echo.Context, scope hierarchy.Scope) context.Context {
	ctx := logging.WithScope(c.Request().Context(), scope)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx
}

// fail maps an operation error to an HTTP error.
func (s *Server) fail(ctx context.Context, op string, err error) error {
	status := statusFor(err)
	switch {
	case errors.Is(err, vectorstore.ErrCrossTenantContamination):
		s.logger.Error(ctx, "partition isolation violated", zap.String("op", op), zap.Error(err))
		return echo.NewHTTPError(status, "internal error").SetInternal(err)
	case status >= http.StatusInternalServerError:
		s.logger.Error(ctx, "request failed", zap.String("op", op), zap.Error(err))
		if status == http.StatusInternalServerError {
			return echo.NewHTTPError(status, "internal error").SetInternal(err)
		}
	default:
		s.logger.Debug(ctx, "request rejected", zap.String("op", op), zap.Error(err))
	}
	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, hierarchy.ErrInvalidScope),
		errors.Is(err, hierarchy.ErrMalformedPath),
		errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, embeddings.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrChatUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, vectorstore.ErrBackendUnavailable),
		errors.Is(err, embeddings.ErrEmbeddingFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func sectionsOf(oc *retrieval.OrderedContext) []retrieval.Section {
	if oc.Empty() {
		return []retrieval.Section{}
	}
	return oc.Sections
}
