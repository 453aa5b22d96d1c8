package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/embeddings"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/ingest"
	"github.com/fyrsmithlabs/hierctx/internal/llm"
)

// ErrInvalidRequest is returned for requests that can never succeed as
// given, such as an empty question or an upload without a filename.
var ErrInvalidRequest = errors.New("invalid request")

// ErrChatUnavailable is returned by Chat when no language model is configured.
var ErrChatUnavailable = errors.New("chat is not configured")

// Indexer rebuilds partitions from the corpus.
type Indexer interface {
	Ingest(ctx context.Context, root, company string) (*ingest.Report, error)
}

// Config configures the service.
type Config struct {
	// CorpusRoot is the default corpus for reindexing and uploads.
	CorpusRoot string `koanf:"corpus_root"`

	// PerLevelK is the number of chunks retrieved from each level.
	PerLevelK int `koanf:"per_level_k"`

	// MaxUploadBytes bounds an uploaded document.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.CorpusRoot == "" {
		c.CorpusRoot = "knowledge_base"
	}
	if c.PerLevelK == 0 {
		c.PerLevelK = DefaultPerLevelK
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 10 << 20
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PerLevelK < 1 || c.PerLevelK > 100 {
		return fmt.Errorf("retrieval per_level_k must be between 1 and 100, got %d", c.PerLevelK)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("retrieval max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// Service is the inbound surface of the engine.
type Service struct {
	cfg        Config
	assembler  *Assembler
	embedder   embeddings.Embedder
	indexer    Indexer
	completer  llm.Completer
	extensions []string
	general    []string
	logger     *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCompleter enables Chat.
func WithCompleter(c llm.Completer) ServiceOption {
	return func(s *Service) { s.completer = c }
}

// WithExtensions sets the file extensions accepted by AddDocument.
func WithExtensions(exts ...string) ServiceOption {
	return func(s *Service) { s.extensions = exts }
}

// WithGeneralDirs names the corpus directories that hold general documents.
// Uploads never target them.
func WithGeneralDirs(dirs ...string) ServiceOption {
	return func(s *Service) { s.general = dirs }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service.
func NewService(cfg Config, searcher Searcher, embedder embeddings.Embedder, indexer Indexer, opts ...ServiceOption) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:        cfg,
		embedder:   embedder,
		indexer:    indexer,
		extensions: ingest.DefaultExtensions,
		general:    []string{hierarchy.DefaultGeneralDir},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.assembler = NewAssembler(searcher, s.logger)
	return s, nil
}

// Retrieve embeds question and assembles the scope's context for it.
func (s *Service) Retrieve(ctx context.Context, scope hierarchy.Scope, question string) (*OrderedContext, error) {
	return s.RetrieveK(ctx, scope, question, s.cfg.PerLevelK)
}

// RetrieveK is Retrieve with an explicit per-level result count.
func (s *Service) RetrieveK(ctx context.Context, scope hierarchy.Scope, question string, k int) (*OrderedContext, error) {
	ctx, span := tracer.Start(ctx, "Service.Retrieve")
	defer span.End()

	scope = hierarchy.NormalizeScope(scope)
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidRequest)
	}
	if k <= 0 {
		k = s.cfg.PerLevelK
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	oc, err := s.assembler.Assemble(ctx, scope, vector, k)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("context retrieved",
		zap.String("hierarchy_key", scope.HierarchyKey()),
		zap.Int("sections", len(oc.Sections)),
		zap.Int("chunks", oc.Len()),
	)
	span.SetAttributes(attribute.Int("chunks", oc.Len()))
	return oc, nil
}

// ReindexCompany rebuilds one company's partition from corpusRoot, or from
// the configured corpus when corpusRoot is empty.
func (s *Service) ReindexCompany(ctx context.Context, company, corpusRoot string) (*ingest.Report, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("%w: company is required", hierarchy.ErrInvalidScope)
	}
	return s.indexer.Ingest(ctx, s.root(corpusRoot), company)
}

// Rebuild rebuilds every company found in the corpus and the general partition.
func (s *Service) Rebuild(ctx context.Context, corpusRoot string) (*ingest.Report, error) {
	return s.indexer.Ingest(ctx, s.root(corpusRoot), "")
}

func (s *Service) root(corpusRoot string) string {
	if corpusRoot == "" {
		return s.cfg.CorpusRoot
	}
	return corpusRoot
}

// ChatRequest is one chat question with its history.
type ChatRequest struct {
	Scope    hierarchy.Scope `json:"scope"`
	Question string          `json:"question"`
	History  []Turn          `json:"history,omitempty"`
}

// ChatResponse is the model's answer plus the context it was given.
type ChatResponse struct {
	Answer  string          `json:"answer"`
	Context *OrderedContext `json:"context"`
	History []Turn          `json:"history"`
}

// Chat answers a question from the scope's context. When nothing matched,
// the model is not called and NoResultAnswer is returned.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if s.completer == nil {
		return nil, ErrChatUnavailable
	}
	oc, err := s.Retrieve(ctx, req.Scope, req.Question)
	if err != nil {
		return nil, err
	}

	answer := NoResultAnswer
	if !oc.Empty() {
		answer, err = s.completer.Complete(ctx, Messages(oc, req.History, req.Question))
		if err != nil {
			return nil, fmt.Errorf("completing chat: %w", err)
		}
	}

	history := make([]Turn, 0, len(req.History)+1)
	history = append(history, req.History...)
	history = append(history, Turn{Question: req.Question, Answer: answer})
	return &ChatResponse{Answer: answer, Context: oc, History: history}, nil
}

// Upload is a new document for the corpus.
type Upload struct {
	Scope hierarchy.Scope

	// Level is the intended level and must agree with the scope fields.
	Level hierarchy.Level

	Filename string
	Content  []byte
}

// UploadResult reports where an upload was written and the reindex it caused.
type UploadResult struct {
	// Path is relative to the corpus root.
	Path   string         `json:"path"`
	Report *ingest.Report `json:"report"`
}

// AddDocument writes an uploaded document into the corpus tree and
// reindexes its company.
func (s *Service) AddDocument(ctx context.Context, up Upload) (*UploadResult, error) {
	up.Scope = hierarchy.NormalizeScope(up.Scope)
	if err := s.validateUpload(up); err != nil {
		return nil, err
	}

	dirs := []string{up.Scope.Company}
	if up.Level >= hierarchy.LevelDepartment {
		dirs = append(dirs, up.Scope.Department)
	}
	if up.Level == hierarchy.LevelEmployee {
		dirs = append(dirs, up.Scope.Employee)
	}
	name := filepath.Base(filepath.Clean(up.Filename))
	rel := filepath.Join(append(dirs, name)...)
	path := filepath.Join(s.cfg.CorpusRoot, rel)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, up.Content, 0o640); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}
	s.logger.Info("document uploaded",
		zap.String("path", filepath.ToSlash(rel)),
		zap.String("company", up.Scope.Company),
		zap.Stringer("level", up.Level),
		zap.Int("bytes", len(up.Content)),
	)

	report, err := s.indexer.Ingest(ctx, s.cfg.CorpusRoot, up.Scope.Company)
	if err != nil {
		return nil, fmt.Errorf("reindexing %s: %w", up.Scope.Company, err)
	}
	return &UploadResult{Path: filepath.ToSlash(rel), Report: report}, nil
}

func (s *Service) validateUpload(up Upload) error {
	if err := up.Scope.Validate(); err != nil {
		return err
	}
	if slices.Contains(s.general, up.Scope.Company) {
		return fmt.Errorf("%w: %q names the general area, not a company", hierarchy.ErrInvalidScope, up.Scope.Company)
	}
	switch up.Level {
	case hierarchy.LevelCompany:
		if up.Scope.Department != "" || up.Scope.Employee != "" {
			return fmt.Errorf("%w: company level documents take no department or employee", ErrInvalidRequest)
		}
	case hierarchy.LevelDepartment:
		if up.Scope.Department == "" {
			return fmt.Errorf("%w: department level documents need a department", ErrInvalidRequest)
		}
		if up.Scope.Employee != "" {
			return fmt.Errorf("%w: department level documents take no employee", ErrInvalidRequest)
		}
	case hierarchy.LevelEmployee:
		if up.Scope.Department == "" || up.Scope.Employee == "" {
			return fmt.Errorf("%w: employee level documents need a department and an employee", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: level must be company, department or employee", ErrInvalidRequest)
	}

	name := filepath.Base(filepath.Clean(up.Filename))
	if up.Filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return fmt.Errorf("%w: hidden or lock file %q", ErrInvalidRequest, name)
	}
	if !slices.Contains(s.extensions, strings.ToLower(filepath.Ext(name))) {
		return fmt.Errorf("%w: unsupported file type %q (supported: %s)", ErrInvalidRequest, filepath.Ext(name), strings.Join(s.extensions, ", "))
	}
	if len(up.Content) == 0 {
		return fmt.Errorf("%w: document is empty", ErrInvalidRequest)
	}
	if int64(len(up.Content)) > s.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: document exceeds %d bytes", ErrInvalidRequest, s.cfg.MaxUploadBytes)
	}
	if !utf8.Valid(up.Content) {
		return fmt.Errorf("%w: document is not UTF-8 text", ErrInvalidRequest)
	}
	return nil
}
