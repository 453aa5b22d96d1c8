package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/vectorstore"
)

var tracer = otel.Tracer("hierctx.retrieval")

// DefaultPerLevelK is the number of chunks requested from each level.
const DefaultPerLevelK = 3

// Searcher runs one level's similarity search.
type Searcher interface {
	Search(ctx context.Context, target hierarchy.Target, vector []float32, k int) ([]vectorstore.SearchResult, error)
}

// Assembler executes level plans against a Searcher.
type Assembler struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(searcher Searcher, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{searcher: searcher, logger: logger}
}

// Assemble searches every level of scope's plan with vector and returns
// the non-empty levels in plan order. Levels are searched concurrently;
// the first failure cancels the others.
//
// A scope naming a company without a partition yields an empty context,
// not an error.
func (a *Assembler) Assemble(ctx context.Context, scope hierarchy.Scope, vector []float32, perLevelK int) (*OrderedContext, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Assemble")
	defer span.End()

	plan, err := hierarchy.Plan(scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if perLevelK <= 0 {
		perLevelK = DefaultPerLevelK
	}
	span.SetAttributes(
		attribute.String("hierarchy_key", scope.HierarchyKey()),
		attribute.Int("levels", len(plan)),
		attribute.Int("k", perLevelK),
	)

	targets := make([]hierarchy.Target, len(plan))
	for i, level := range plan {
		if targets[i], err = scope.Target(level); err != nil {
			return nil, err
		}
	}

	results := make([][]vectorstore.SearchResult, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		level := plan[i]
		g.Go(func() error {
			res, err := a.searcher.Search(gctx, target, vector, perLevelK)
			if err != nil {
				return fmt.Errorf("searching %s level: %w", level, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, vectorstore.ErrUnknownCompany) {
			a.logger.Info("no partition for company",
				zap.String("company", scope.Company),
				zap.Error(err),
			)
			span.SetAttributes(attribute.Bool("unknown_company", true))
			return &OrderedContext{Scope: scope}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := &OrderedContext{Scope: scope}
	for i, level := range plan {
		if len(results[i]) == 0 {
			continue
		}
		out.Sections = append(out.Sections, Section{
			Level:  level,
			Label:  Label(level),
			Chunks: results[i],
		})
	}

	span.SetAttributes(
		attribute.Int("sections", len(out.Sections)),
		attribute.Int("chunks", out.Len()),
	)
	span.SetStatus(codes.Ok, "assembled")
	return out, nil
}
