package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

type (
	scopeCtxKey   struct{}
	requestCtxKey struct{}
	loggerCtxKey  struct{}
)

const maxRequestIDLen = 128

// ContextFields returns the correlation fields carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	if s, ok := ScopeFromContext(ctx); ok {
		fields = append(fields, zap.String("scope.company", s.Company))
		if s.Department != "" {
			fields = append(fields, zap.String("scope.department", s.Department))
		}
		if s.Employee != "" {
			fields = append(fields, zap.String("scope.employee", s.Employee))
		}
		fields = append(fields, zap.String("hierarchy_key", s.HierarchyKey()))
	}

	return fields
}

// WithScope records the hierarchy scope being served. A scope without a
// company is not recorded.
func WithScope(ctx context.Context, s hierarchy.Scope) context.Context {
	if s.Company == "" {
		return ctx
	}
	return context.WithValue(ctx, scopeCtxKey{}, s)
}

// ScopeFromContext returns the scope recorded by WithScope.
func ScopeFromContext(ctx context.Context) (hierarchy.Scope, bool) {
	s, ok := ctx.Value(scopeCtxKey{}).(hierarchy.Scope)
	return s, ok
}

// WithRequestID records the request ID. Empty or oversized IDs are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" || len(id) > maxRequestIDLen {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
