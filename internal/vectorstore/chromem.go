package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

const (
	chromemCollection = "chunks"
	manifestFile      = "manifest.json"
	manifestVersion   = 1
)

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps every
	// generation in memory only.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted documents.
	Compress bool `koanf:"compress"`
}

// ChromemBackend stores each partition generation as its own chromem-go
// database. With a Path, generations live in sibling directories and a
// manifest file names the committed one per partition.
type ChromemBackend struct {
	config ChromemConfig
	path   string
	logger *zap.Logger

	// mu guards manifest and serializes manifest writes.
	mu       sync.Mutex
	manifest map[string]string
}

type chromemManifest struct {
	Version    int               `json:"version"`
	Partitions map[string]string `json:"partitions"`
}

// NewChromemBackend creates a chromem-go backend.
func NewChromemBackend(config ChromemConfig, logger *zap.Logger) (*ChromemBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &ChromemBackend{
		config:   config,
		logger:   logger,
		manifest: map[string]string{},
	}
	if config.Path != "" {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: expanding path: %v", ErrInvalidConfig, err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		b.path = path
	}

	logger.Info("chromem backend initialized",
		zap.String("path", b.path),
		zap.Bool("persistent", b.persistent()),
		zap.Bool("compress", config.Compress),
	)
	return b, nil
}

func (b *ChromemBackend) persistent() bool { return b.path != "" }

// Build writes docs into a new chromem database.
func (b *ChromemBackend) Build(ctx context.Context, p hierarchy.Partition, docs []Document) (Image, error) {
	ctx, span := tracer.Start(ctx, "ChromemBackend.Build")
	defer span.End()

	generation := p.Name() + "_g" + strconv.FormatInt(timeNow().UnixNano(), 36)
	span.SetAttributes(
		attribute.String("generation", generation),
		attribute.Int("document_count", len(docs)),
	)

	var (
		db  *chromem.DB
		dir string
		err error
	)
	if b.persistent() {
		dir = filepath.Join(b.path, generation)
		db, err = chromem.NewPersistentDB(dir, b.config.Compress)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("creating chromem DB %s: %w", dir, err)
		}
	} else {
		db = chromem.NewDB()
	}

	img := &chromemImage{generation: generation, dir: dir, db: db}
	img.collection, err = db.CreateCollection(chromemCollection, map[string]string{"partition": p.String()}, noTextEmbedding)
	if err != nil {
		b.removeDir(dir)
		span.RecordError(err)
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	if len(docs) > 0 {
		cdocs := make([]chromem.Document, len(docs))
		for i, d := range docs {
			cdocs[i] = chromem.Document{
				ID:        d.ID,
				Content:   d.Content,
				Metadata:  d.payload(),
				Embedding: d.Vector,
			}
		}
		if err := img.collection.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
			b.removeDir(dir)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("adding documents: %w", err)
		}
	}

	span.SetStatus(codes.Ok, "built")
	return img, nil
}

// Commit records img as the committed generation of p. In memory mode
// there is nothing to persist.
func (b *ChromemBackend) Commit(_ context.Context, p hierarchy.Partition, img Image) error {
	ci, ok := img.(*chromemImage)
	if !ok {
		return fmt.Errorf("foreign image type %T", img)
	}
	if !b.persistent() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]string, len(b.manifest)+1)
	for k, v := range b.manifest {
		next[k] = v
	}
	next[p.Name()] = ci.generation
	if err := b.writeManifest(next); err != nil {
		return err
	}
	b.manifest = next
	return nil
}

// Discard deletes a generation's directory.
func (b *ChromemBackend) Discard(_ context.Context, img Image) error {
	ci, ok := img.(*chromemImage)
	if !ok {
		return fmt.Errorf("foreign image type %T", img)
	}
	if ci.dir == "" {
		return nil
	}
	return os.RemoveAll(ci.dir)
}

// Restore opens the committed generation of every partition named in the
// manifest and removes generation directories the manifest does not name.
func (b *ChromemBackend) Restore(ctx context.Context) (map[hierarchy.Partition]Image, error) {
	images := map[hierarchy.Partition]Image{}
	if !b.persistent() {
		return images, nil
	}

	manifest, err := b.readManifest()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.manifest = map[string]string{}

	for name, generation := range manifest.Partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := hierarchy.ParsePartitionName(name)
		if err != nil {
			b.logger.Warn("skipping unknown manifest entry", zap.String("name", name), zap.Error(err))
			continue
		}
		dir := filepath.Join(b.path, generation)
		db, err := chromem.NewPersistentDB(dir, b.config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening generation %s: %w", generation, err)
		}
		coll := db.GetCollection(chromemCollection, noTextEmbedding)
		if coll == nil {
			return nil, fmt.Errorf("generation %s has no %q collection", generation, chromemCollection)
		}
		images[p] = &chromemImage{generation: generation, dir: dir, db: db, collection: coll}
		b.manifest[name] = generation
	}

	b.removeStale()
	return images, nil
}

// Close is a no-op; chromem persists on write.
func (b *ChromemBackend) Close() error { return nil }

func (b *ChromemBackend) manifestPath() string {
	return filepath.Join(b.path, manifestFile)
}

func (b *ChromemBackend) readManifest() (chromemManifest, error) {
	m := chromemManifest{Version: manifestVersion, Partitions: map[string]string{}}
	data, err := os.ReadFile(b.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return m, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.Partitions == nil {
		m.Partitions = map[string]string{}
	}
	return m, nil
}

// writeManifest replaces the manifest via rename so a crash leaves either
// the old or the new file.
func (b *ChromemBackend) writeManifest(partitions map[string]string) error {
	data, err := json.MarshalIndent(chromemManifest{Version: manifestVersion, Partitions: partitions}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	tmp, err := os.CreateTemp(b.path, manifestFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.manifestPath()); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}
	return nil
}

// removeStale deletes generation directories left by builds that never
// committed. Caller holds b.mu.
func (b *ChromemBackend) removeStale() {
	committed := make(map[string]struct{}, len(b.manifest))
	for _, g := range b.manifest {
		committed[g] = struct{}{}
	}
	entries, err := os.ReadDir(b.path)
	if err != nil {
		b.logger.Warn("listing generations failed", zap.Error(err))
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "hc_") {
			continue
		}
		if _, ok := committed[e.Name()]; ok {
			continue
		}
		b.logger.Info("removing uncommitted generation", zap.String("generation", e.Name()))
		b.removeDir(filepath.Join(b.path, e.Name()))
	}
}

func (b *ChromemBackend) removeDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		b.logger.Warn("removing generation directory failed", zap.String("dir", dir), zap.Error(err))
	}
}

// noTextEmbedding is installed as the collection embedding function. All
// documents carry vectors and all queries use QueryEmbedding, so it is only
// reached by a programming error. Passing nil would make chromem fall back
// to its OpenAI default.
func noTextEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("text embedding is not available; supply vectors")
}

// chromemImage is one chromem database holding a single generation.
type chromemImage struct {
	generation string
	dir        string
	db         *chromem.DB
	collection *chromem.Collection
}

func (i *chromemImage) Generation() string { return i.generation }

func (i *chromemImage) Count() int { return i.collection.Count() }

// Search queries the generation by vector. chromem rejects nResults above
// the collection size, so k is capped at Count.
func (i *chromemImage) Search(ctx context.Context, where map[string]string, vector []float32, k int) ([]SearchResult, error) {
	n := min(k, i.collection.Count())
	if n == 0 {
		return nil, nil
	}

	res, err := i.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying generation %s: %w", i.generation, err)
	}

	out := make([]SearchResult, 0, len(res))
	for _, r := range res {
		sr, err := resultFromPayload(r.ID, r.Content, r.Similarity, r.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

var _ Backend = (*ChromemBackend)(nil)
