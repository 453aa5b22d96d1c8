package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/embeddings"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

var tracer = otel.Tracer("hierctx.ingest")

// chunkNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/hierctx/chunk"))

// ChunkID returns the deterministic ID of chunk index of source.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"#"+strconv.Itoa(index))).String()
}

// Store is the partition store written by the pipeline.
type Store interface {
	Replace(ctx context.Context, p hierarchy.Partition, docs []vectorstore.Document) error
	Count(p hierarchy.Partition) (int, bool)
}

// Report summarizes one ingestion run.
type Report struct {
	// Documents is the number of documents chunked and written.
	Documents int `json:"documents"`

	// Chunks is the number of chunks written.
	Chunks int `json:"chunks"`

	// Skipped counts documents that could not be classified or read.
	Skipped int `json:"skipped"`

	// Unsupported counts files with an extension that is not ingested.
	Unsupported int `json:"unsupported"`

	// Redacted counts secrets replaced before chunking.
	Redacted int `json:"redacted"`

	// Partitions lists the partitions replaced, general first.
	Partitions []string `json:"partitions"`

	Duration time.Duration `json:"duration"`
}

// Pipeline reads a corpus and replaces partitions in a Store.
//
// Company-scoped runs for different companies proceed in parallel; runs for
// the same company are serialized. A full rebuild excludes every other run.
type Pipeline struct {
	cfg      Config
	store    Store
	embedder embeddings.Embedder
	redactor Redactor
	logger   *zap.Logger

	// rebuild is held shared by company runs and exclusively by full rebuilds.
	rebuild   sync.RWMutex
	companies sync.Map // company name -> *sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRedactor redacts secrets from every document before chunking.
func WithRedactor(r Redactor) Option {
	return func(p *Pipeline) { p.redactor = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg Config, store Store, embedder embeddings.Embedder, opts ...Option) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Ingest reads the corpus at root and replaces partitions with its content.
//
// With a company, only that company's partition is rebuilt from the
// company's directory. With an empty company every company found in the
// corpus and the general partition are rebuilt; a company directory left
// without documents empties that company's partition. Companies present in
// the store but without a directory in the corpus are left as they are.
//
// Embedding honors ctx; a partition replacement that has started always
// completes or fails as a whole.
func (p *Pipeline) Ingest(ctx context.Context, root, company string) (report *Report, err error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("company", company))

	start := time.Now()
	report = &Report{}
	mode := "company"
	if company == "" {
		mode = "rebuild"
	}
	defer func() {
		report.Duration = time.Since(start)
		IngestDuration.WithLabelValues(mode).Observe(report.Duration.Seconds())
		if err != nil {
			IngestRuns.WithLabelValues(mode, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		IngestRuns.WithLabelValues(mode, "success").Inc()
		span.SetStatus(codes.Ok, "ingested")
	}()

	root, err = filepath.Abs(root)
	if err != nil {
		return report, fmt.Errorf("resolving corpus root: %w", err)
	}
	if info, statErr := os.Stat(root); statErr != nil {
		return report, fmt.Errorf("corpus root: %w", statErr)
	} else if !info.IsDir() {
		return report, fmt.Errorf("corpus root %s is not a directory", root)
	}

	dir := root
	if company != "" {
		if dir, err = p.companyDir(root, company); err != nil {
			return report, err
		}
		p.rebuild.RLock()
		defer p.rebuild.RUnlock()
		mu := p.companyLock(company)
		mu.Lock()
		defer mu.Unlock()
	} else {
		p.rebuild.Lock()
		defer p.rebuild.Unlock()
	}

	classifier := hierarchy.NewClassifier(root, p.cfg.GeneralDirs...)
	walked := &walkResult{byPartition: map[hierarchy.Partition][]source{}}
	if _, statErr := os.Stat(dir); statErr == nil {
		if walked, err = p.walk(ctx, classifier, dir); err != nil {
			return report, fmt.Errorf("walking %s: %w", dir, err)
		}
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return report, fmt.Errorf("company directory: %w", statErr)
	}
	report.Skipped = walked.skipped
	report.Unsupported = walked.unsupported

	own := []hierarchy.Partition{hierarchy.CompanyPartition(company)}
	if company == "" {
		if own, err = companyPartitions(classifier, root); err != nil {
			return report, err
		}
		own = append(own, hierarchy.GeneralPartition)
	}

	targets := p.targets(walked, own)
	for _, part := range targets {
		if err := p.ingestPartition(ctx, part, walked.byPartition[part], report); err != nil {
			return report, err
		}
	}

	p.logger.Info("ingestion complete",
		zap.String("root", root),
		zap.String("company", company),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped),
		zap.Int("unsupported", report.Unsupported),
		zap.Int("redacted", report.Redacted),
		zap.Strings("partitions", report.Partitions),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// targets lists the partitions a run replaces: every partition with
// documents, plus the run's own partitions that already exist in the store
// and now have no documents, so removed content disappears.
func (p *Pipeline) targets(walked *walkResult, own []hierarchy.Partition) []hierarchy.Partition {
	set := map[hierarchy.Partition]struct{}{}
	for part := range walked.byPartition {
		set[part] = struct{}{}
	}
	for _, part := range own {
		if _, ok := p.store.Count(part); ok {
			set[part] = struct{}{}
		}
	}

	out := make([]hierarchy.Partition, 0, len(set))
	for part := range set {
		out = append(out, part)
	}
	slices.SortFunc(out, func(a, b hierarchy.Partition) int {
		return strings.Compare(a.Company(), b.Company())
	})
	return out
}

// ingestPartition chunks, embeds and writes the documents of one partition.
func (p *Pipeline) ingestPartition(ctx context.Context, part hierarchy.Partition, sources []source, report *Report) error {
	var (
		docs      []vectorstore.Document
		documents int
	)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks, redacted, err := p.chunkSource(src)
		if err != nil {
			p.logger.Warn("skipping unreadable document", zap.String("path", src.class.Path), zap.Error(err))
			report.Skipped++
			continue
		}
		report.Redacted += redacted
		if len(chunks) == 0 {
			continue
		}
		documents++
		docs = append(docs, chunks...)
	}

	if err := p.embed(ctx, docs); err != nil {
		return fmt.Errorf("embedding %s: %w", part, err)
	}
	if err := vectorstore.VerifyPartition(part, docs); err != nil {
		return fmt.Errorf("verifying %s: %w", part, err)
	}
	if err := p.store.Replace(ctx, part, docs); err != nil {
		return fmt.Errorf("replacing %s: %w", part, err)
	}

	IngestChunks.WithLabelValues(part.String()).Add(float64(len(docs)))
	report.Documents += documents
	report.Chunks += len(docs)
	report.Partitions = append(report.Partitions, part.String())
	return nil
}

// chunkSource reads, redacts and chunks one document. Whitespace-only
// windows are dropped; the remaining chunks keep their window index.
func (p *Pipeline) chunkSource(src source) ([]vectorstore.Document, int, error) {
	text, err := readText(src.abs)
	if err != nil {
		return nil, 0, err
	}
	redacted := 0
	if p.redactor != nil {
		text, redacted = p.redactor.Redact(src.class.Path, text)
	}

	windows, err := p.cfg.Chunk.Split(text)
	if err != nil {
		return nil, 0, err
	}
	var docs []vectorstore.Document
	index := 0
	for window := range windows {
		i := index
		index++
		if strings.TrimSpace(window) == "" {
			continue
		}
		docs = append(docs, vectorstore.Document{
			ID:       ChunkID(src.class.Path, i),
			Content:  window,
			Source:   src.class.Path,
			Index:    i,
			Metadata: src.class.Metadata,
		})
	}
	return docs, redacted, nil
}

// embed fills in the vectors of docs in batches.
func (p *Pipeline) embed(ctx context.Context, docs []vectorstore.Document) error {
	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(docs))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = docs[start+i].Content
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i, v := range vectors {
			docs[start+i].Vector = v
		}
	}
	return nil
}

func (p *Pipeline) companyLock(company string) *sync.Mutex {
	mu, _ := p.companies.LoadOrStore(company, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
