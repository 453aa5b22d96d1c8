package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// Reserved payload keys.
const (
	payloadContent = "content"
	payloadID      = "id"
)

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334), not the HTTP port.
	Port int `koanf:"port"`

	UseTLS bool `koanf:"use_tls"`

	APIKey string `koanf:"api_key"`

	// VectorSize is the embedding dimension. Used for empty partitions;
	// otherwise taken from the documents.
	VectorSize uint64 `koanf:"vector_size"`

	// MaxRetries is the maximum number of retry attempts for transient
	// failures while building and committing.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial backoff, doubled on each retry.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int `koanf:"max_message_size"`

	// BatchSize is the number of points per upsert request.
	BatchSize int `koanf:"batch_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.BatchSize == 0 {
		c.BatchSize = 256
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether err is a retryable gRPC failure.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantBackend stores each partition generation as a Qdrant collection and
// points an alias named after the partition at the committed one.
type QdrantBackend struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// mu guards aliases (alias name → collection).
	mu      sync.Mutex
	aliases map[string]string
}

// NewQdrantBackend connects to Qdrant and checks its health.
func NewQdrantBackend(config QdrantConfig, logger *zap.Logger) (*QdrantBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %w", ErrBackendUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %w", ErrBackendUnavailable, err)
	}

	return &QdrantBackend{
		client:  client,
		config:  config,
		logger:  logger,
		aliases: map[string]string{},
	}, nil
}

// Build creates a new collection for p and upserts docs into it.
func (b *QdrantBackend) Build(ctx context.Context, p hierarchy.Partition, docs []Document) (Image, error) {
	ctx, span := tracer.Start(ctx, "QdrantBackend.Build")
	defer span.End()

	collection := p.Name() + "_g" + strconv.FormatInt(timeNow().UnixNano(), 36)
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	size := b.config.VectorSize
	if len(docs) > 0 {
		size = uint64(len(docs[0].Vector))
	}
	err := b.retry(ctx, "create collection", func() error {
		return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	img := &qdrantImage{backend: b, collection: collection, count: len(docs)}
	for start := 0; start < len(docs); start += b.config.BatchSize {
		batch := docs[start:min(start+b.config.BatchSize, len(docs))]
		points := make([]*qdrant.PointStruct, len(batch))
		for i, d := range batch {
			points[i] = toPoint(d)
		}
		err := b.retry(ctx, "upsert", func() error {
			_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		})
		if err != nil {
			if derr := b.Discard(ctx, img); derr != nil {
				b.logger.Warn("dropping failed generation", zap.String("collection", collection), zap.Error(derr))
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("upserting into %s: %w", collection, err)
		}
	}

	span.SetStatus(codes.Ok, "built")
	return img, nil
}

// Commit switches the partition alias to img's collection in one request.
func (b *QdrantBackend) Commit(ctx context.Context, p hierarchy.Partition, img Image) error {
	qi, ok := img.(*qdrantImage)
	if !ok {
		return fmt.Errorf("foreign image type %T", img)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	alias := p.Name()
	var ops []*qdrant.AliasOperations
	if _, exists := b.aliases[alias]; exists {
		ops = append(ops, qdrant.NewAliasDelete(alias))
	}
	ops = append(ops, qdrant.NewAliasCreate(alias, qi.collection))

	err := b.retry(ctx, "update aliases", func() error {
		return b.client.UpdateAliases(ctx, ops)
	})
	if err != nil {
		return err
	}
	b.aliases[alias] = qi.collection
	return nil
}

// Discard drops a generation's collection.
func (b *QdrantBackend) Discard(ctx context.Context, img Image) error {
	qi, ok := img.(*qdrantImage)
	if !ok {
		return fmt.Errorf("foreign image type %T", img)
	}
	err := b.client.DeleteCollection(ctx, qi.collection)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Restore resolves every partition alias to its collection and drops
// generation collections no alias points at.
func (b *QdrantBackend) Restore(ctx context.Context) (map[hierarchy.Partition]Image, error) {
	aliases, err := b.client.ListAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing aliases: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	images := map[hierarchy.Partition]Image{}
	referenced := map[string]struct{}{}
	for _, a := range aliases {
		p, err := hierarchy.ParsePartitionName(a.GetAliasName())
		if err != nil {
			continue
		}
		collection := a.GetCollectionName()
		info, err := b.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", collection, err)
		}
		images[p] = &qdrantImage{backend: b, collection: collection, count: int(info.GetPointsCount())}
		b.aliases[a.GetAliasName()] = collection
		referenced[collection] = struct{}{}
	}

	collections, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	for _, name := range collections {
		if _, ok := referenced[name]; ok || !isGenerationName(name) {
			continue
		}
		b.logger.Info("removing uncommitted generation", zap.String("collection", name))
		if err := b.client.DeleteCollection(ctx, name); err != nil && !isNotFound(err) {
			b.logger.Warn("removing generation failed", zap.String("collection", name), zap.Error(err))
		}
	}
	return images, nil
}

// Close closes the gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// retry runs operation with exponential backoff on transient errors.
func (b *QdrantBackend) retry(ctx context.Context, name string, operation func() error) error {
	backoff := b.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == b.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, b.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// isGenerationName matches collections created by Build.
func isGenerationName(name string) bool {
	i := strings.LastIndex(name, "_g")
	if i < 0 {
		return false
	}
	_, err := hierarchy.ParsePartitionName(name[:i])
	return err == nil
}

func toPoint(d Document) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		payloadContent: {Kind: &qdrant.Value_StringValue{StringValue: d.Content}},
		payloadID:      {Kind: &qdrant.Value_StringValue{StringValue: d.ID}},
	}
	for k, v := range d.payload() {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(d.ID),
		Vectors: qdrant.NewVectors(d.Vector...),
		Payload: payload,
	}
}

// buildFilter turns an exact-match map into keyword conditions. Keys are
// sorted so requests are reproducible.
func buildFilter(where map[string]string) *qdrant.Filter {
	if len(where) == 0 {
		return nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: k,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: where[k]},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func fromPoint(point *qdrant.ScoredPoint) (SearchResult, error) {
	var id, content string
	kv := make(map[string]string, len(point.GetPayload()))
	for k, v := range point.GetPayload() {
		s, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case payloadContent:
			content = s.StringValue
		case payloadID:
			id = s.StringValue
		default:
			kv[k] = s.StringValue
		}
	}
	if id == "" {
		return SearchResult{}, errors.New("stored point has no id payload")
	}
	return resultFromPayload(id, content, point.GetScore(), kv)
}

// qdrantImage is one Qdrant collection holding a single generation.
type qdrantImage struct {
	backend    *QdrantBackend
	collection string
	count      int
}

func (i *qdrantImage) Generation() string { return i.collection }

func (i *qdrantImage) Count() int { return i.count }

// Search queries the generation's collection directly rather than the
// alias, so a concurrent commit cannot change what this image serves.
func (i *qdrantImage) Search(ctx context.Context, where map[string]string, vector []float32, k int) ([]SearchResult, error) {
	if i.count == 0 {
		return nil, nil
	}
	points, err := i.backend.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(where),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", i.collection, err)
	}

	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r, err := fromPoint(p)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", i.collection, err)
		}
		out = append(out, r)
	}
	return out, nil
}

var _ Backend = (*QdrantBackend)(nil)
