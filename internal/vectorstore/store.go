package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

var tracer = otel.Tracer("hierctx.vectorstore")

// Store routes searches and replacements to per-partition generations held
// by a Backend.
//
// The partition registry is an immutable snapshot swapped atomically, so
// lookups take no lock. Each partition has its own locks: searches share
// it, a replacement holds it exclusively only for the swap, and writers to
// the same partition are serialized. Nothing locks across partitions.
type Store struct {
	backend Backend
	logger  *zap.Logger

	// mu serializes registry copy-on-write.
	mu       sync.Mutex
	registry atomic.Pointer[registry]
}

type registry struct {
	partitions map[hierarchy.Partition]*partition
}

type partition struct {
	id hierarchy.Partition

	// write serializes replacements of this partition.
	write sync.Mutex

	// mu guards image.
	mu    sync.RWMutex
	image Image
}

// NewStore creates a store over backend.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{backend: backend, logger: logger}
	s.registry.Store(&registry{partitions: map[hierarchy.Partition]*partition{}})
	return s
}

// Restore loads every committed partition from the backend. It is meant to
// run once at startup, before traffic.
func (s *Store) Restore(ctx context.Context) error {
	images, err := s.backend.Restore(ctx)
	if err != nil {
		return fmt.Errorf("%w: restoring partitions: %w", ErrBackendUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &registry{partitions: make(map[hierarchy.Partition]*partition, len(images))}
	for id, img := range images {
		next.partitions[id] = &partition{id: id, image: img}
		PartitionChunks.WithLabelValues(id.String()).Set(float64(img.Count()))
		s.logger.Info("partition restored",
			zap.Stringer("partition", id),
			zap.String("generation", img.Generation()),
			zap.Int("chunks", img.Count()),
		)
	}
	s.registry.Store(next)
	return nil
}

// Replace atomically replaces the whole content of partition p with docs.
//
// Every document is verified against p before anything is written; a
// single foreign chunk fails the call with ErrCrossTenantContamination and
// the committed generation stays as it was. Once verification passes the
// replacement ignores ctx cancellation: it either commits or fails without
// touching the prior generation.
func (s *Store) Replace(ctx context.Context, p hierarchy.Partition, docs []Document) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Replace")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition", p.String()),
		attribute.Int("document_count", len(docs)),
	)

	if err := VerifyPartition(p, docs); err != nil {
		if errors.Is(err, ErrCrossTenantContamination) {
			ReplaceTotal.WithLabelValues("contaminated").Inc()
			ContaminationDetected.WithLabelValues("replace").Inc()
			s.logger.Error("partition replacement rejected",
				zap.Stringer("partition", p),
				zap.Error(err),
			)
		} else {
			ReplaceTotal.WithLabelValues("error").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ctx = context.WithoutCancel(ctx)
	part := s.partitionFor(p)
	part.write.Lock()
	defer part.write.Unlock()

	start := time.Now()
	defer func() {
		ReplaceDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			ReplaceTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		ReplaceTotal.WithLabelValues("success").Inc()
		span.SetStatus(codes.Ok, "committed")
	}()

	img, err := s.backend.Build(ctx, p, docs)
	if err != nil {
		return fmt.Errorf("%w: building %s: %w", ErrBackendUnavailable, p, err)
	}
	if err := s.backend.Commit(ctx, p, img); err != nil {
		if derr := s.backend.Discard(ctx, img); derr != nil {
			s.logger.Warn("discarding uncommitted generation failed",
				zap.Stringer("partition", p),
				zap.String("generation", img.Generation()),
				zap.Error(derr),
			)
		}
		return fmt.Errorf("%w: committing %s: %w", ErrBackendUnavailable, p, err)
	}

	part.mu.Lock()
	old := part.image
	part.image = img
	part.mu.Unlock()

	PartitionChunks.WithLabelValues(p.String()).Set(float64(img.Count()))
	span.SetAttributes(attribute.String("generation", img.Generation()))
	s.logger.Info("partition replaced",
		zap.Stringer("partition", p),
		zap.String("generation", img.Generation()),
		zap.Int("chunks", img.Count()),
		zap.Duration("duration", time.Since(start)),
	)

	if old != nil {
		if derr := s.backend.Discard(ctx, old); derr != nil {
			s.logger.Warn("discarding superseded generation failed",
				zap.Stringer("partition", p),
				zap.String("generation", old.Generation()),
				zap.Error(derr),
			)
		}
	}
	return nil
}

// Search runs a similarity search for one level of the hierarchy.
//
// The target selects the partition and the exact-match metadata filter.
// An empty result is not an error. Searching a company without a partition
// returns ErrUnknownCompany; the general partition, if never built, simply
// has no matches.
func (s *Store) Search(ctx context.Context, target hierarchy.Target, vector []float32, k int) ([]SearchResult, error) {
	level := target.Level().String()
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("level", level),
		attribute.String("partition", target.Partition().String()),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidQuery)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	part := s.registry.Load().partitions[target.Partition()]
	if part == nil {
		return s.missing(target)
	}

	start := time.Now()
	part.mu.RLock()
	img := part.image
	if img == nil {
		part.mu.RUnlock()
		return s.missing(target)
	}
	results, err := img.Search(ctx, target.Filter(), vector, k)
	part.mu.RUnlock()
	SearchDuration.WithLabelValues(level).Observe(time.Since(start).Seconds())

	if err != nil {
		SearchTotal.WithLabelValues(level, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: searching %s: %w", ErrBackendUnavailable, part.id, err)
	}

	kept := results[:0]
	for _, r := range results {
		if aerr := part.id.Admits(r.Metadata); aerr != nil {
			ContaminationDetected.WithLabelValues("search").Inc()
			s.logger.Error("foreign chunk dropped from search results",
				zap.Stringer("partition", part.id),
				zap.String("chunk_id", r.ID),
				zap.Error(aerr),
			)
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) == 0 {
		SearchTotal.WithLabelValues(level, "empty").Inc()
	} else {
		SearchTotal.WithLabelValues(level, "hit").Inc()
	}
	span.SetAttributes(attribute.Int("results_count", len(kept)))
	span.SetStatus(codes.Ok, "success")
	return kept, nil
}

func (s *Store) missing(target hierarchy.Target) ([]SearchResult, error) {
	level := target.Level().String()
	if target.Level() == hierarchy.LevelGeneral {
		SearchTotal.WithLabelValues(level, "empty").Inc()
		return nil, nil
	}
	SearchTotal.WithLabelValues(level, "unknown").Inc()
	return nil, fmt.Errorf("%w: %q", ErrUnknownCompany, target.Partition().Company())
}

// Partitions lists the partitions with a committed generation.
func (s *Store) Partitions() []hierarchy.Partition {
	var out []hierarchy.Partition
	for id, part := range s.registry.Load().partitions {
		part.mu.RLock()
		ok := part.image != nil
		part.mu.RUnlock()
		if ok {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b hierarchy.Partition) int {
		switch {
		case a.Company() < b.Company():
			return -1
		case a.Company() > b.Company():
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of chunks committed in p.
func (s *Store) Count(p hierarchy.Partition) (int, bool) {
	part := s.registry.Load().partitions[p]
	if part == nil {
		return 0, false
	}
	part.mu.RLock()
	defer part.mu.RUnlock()
	if part.image == nil {
		return 0, false
	}
	return part.image.Count(), true
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// partitionFor returns the registry entry for p, creating an empty one if needed.
func (s *Store) partitionFor(p hierarchy.Partition) *partition {
	if part := s.registry.Load().partitions[p]; part != nil {
		return part
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.registry.Load()
	if part := cur.partitions[p]; part != nil {
		return part
	}
	next := &registry{partitions: make(map[hierarchy.Partition]*partition, len(cur.partitions)+1)}
	for id, part := range cur.partitions {
		next.partitions[id] = part
	}
	part := &partition{id: p}
	next.partitions[p] = part
	s.registry.Store(next)
	return part
}
