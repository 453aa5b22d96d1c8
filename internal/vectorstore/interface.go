package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

// Sentinel errors for store operations.
var (
	// ErrCrossTenantContamination is returned when a batch destined for one
	// partition carries chunks owned by another company.
	ErrCrossTenantContamination = errors.New("cross-tenant contamination")

	// ErrUnknownCompany is returned when searching a company that has no partition.
	ErrUnknownCompany = errors.New("unknown company")

	// ErrBackendUnavailable wraps backend I/O failures. Callers may retry.
	ErrBackendUnavailable = errors.New("vector backend unavailable")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidQuery indicates an unusable search request.
	ErrInvalidQuery = errors.New("invalid query")
)

// Backend builds and serves partition generations.
//
// Build must not make the generation visible: only Commit does. A failed
// Build or Commit leaves the previously committed generation in place.
type Backend interface {
	// Build writes docs into a new, uncommitted generation for p.
	Build(ctx context.Context, p hierarchy.Partition, docs []Document) (Image, error)

	// Commit durably records img as the current generation of p.
	Commit(ctx context.Context, p hierarchy.Partition, img Image) error

	// Discard releases a generation that is no longer referenced.
	Discard(ctx context.Context, img Image) error

	// Restore loads the committed generation of every partition.
	Restore(ctx context.Context) (map[hierarchy.Partition]Image, error)

	Close() error
}

// Image is one immutable generation of a partition.
type Image interface {
	Generation() string
	Count() int

	// Search returns at most k documents matching every where entry, by
	// descending similarity to vector.
	Search(ctx context.Context, where map[string]string, vector []float32, k int) ([]SearchResult, error)
}
