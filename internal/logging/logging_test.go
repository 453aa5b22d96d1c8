package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/hierctx/internal/config"
	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

func fieldMap(fields []zap.Field) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Trace(t *testing.T) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(tracetest.NewInMemoryExporter()),
	)
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	got := fieldMap(ContextFields(ctx))
	assert.Equal(t, span.SpanContext().TraceID().String(), got["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), got["span_id"])
	assert.Equal(t, true, got["trace_sampled"])
}

func TestContextFields_Scope(t *testing.T) {
	tests := []struct {
		name  string
		scope hierarchy.Scope
		want  map[string]any
	}{
		{
			name:  "company",
			scope: hierarchy.Scope{Company: "acme"},
			want:  map[string]any{"scope.company": "acme", "hierarchy_key": "acme"},
		},
		{
			name:  "employee",
			scope: hierarchy.Scope{Company: "acme", Department: "engineering", Employee: "alice"},
			want: map[string]any{
				"scope.company":    "acme",
				"scope.department": "engineering",
				"scope.employee":   "alice",
				"hierarchy_key":    "acme|engineering|alice",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithScope(context.Background(), tt.scope)
			assert.Equal(t, tt.want, fieldMap(ContextFields(ctx)))
		})
	}
}

func TestWithScope_IgnoresEmptyCompany(t *testing.T) {
	ctx := WithScope(context.Background(), hierarchy.Scope{})
	_, ok := ScopeFromContext(ctx)
	assert.False(t, ok)
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", fieldMap(ContextFields(ctx))["request.id"])

	long := string(bytes.Repeat([]byte("x"), maxRequestIDLen+1))
	assert.Empty(t, RequestIDFromContext(WithRequestID(context.Background(), long)))
	assert.Empty(t, RequestIDFromContext(WithRequestID(context.Background(), "")))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "stored")
	tl.AssertLogged(t, zapcore.InfoLevel, "stored")
}

func TestLogger_AppendsContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithScope(context.Background(), hierarchy.Scope{Company: "acme", Department: "sales"})

	tl.Info(ctx, "context assembled", zap.Int("sections", 2))
	tl.Trace(ctx, "chunk scored")

	tl.AssertLogged(t, zapcore.InfoLevel, "context assembled")
	tl.AssertLogged(t, TraceLevel, "chunk scored")
	tl.AssertField(t, "context assembled", "hierarchy_key", "acme|sales")
}

func TestLogger_For(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	l := &Logger{zap: zap.New(core)}
	ctx := WithRequestID(context.Background(), "req-9")

	l.For(ctx).Info("from component")

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "req-9", observed.All()[0].ContextMap()["request.id"])
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "request", Time: time.Now()}, []zap.Field{
		zap.String("api_key", "sk-live-123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("company", "acme"),
		Secret("llm_key", config.Secret("hunter2")),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "[REDACTED]", got["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", got["header"])
	assert.Equal(t, "acme", got["company"])
	assert.Equal(t, "[REDACTED:7]", got["llm_key"])
	assert.NotContains(t, buf.String(), "sk-live-123")
}

func TestRedactingEncoder_RejectsBadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestSampledCore_NeverSamplesErrors(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 0,
	})
	l := zap.New(sampled)

	for range 5 {
		l.Info("repeated")
		l.Debug("detail")
		l.Error("failure")
	}

	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 1, observed.FilterMessage("detail").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "console"}, false)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	cfg, err = FromSettings(config.LoggingConfig{Level: "trace"}, false)
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)

	_, err = FromSettings(config.LoggingConfig{Format: "xml"}, false)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	l, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	assert.True(t, l.Enabled(zapcore.InfoLevel))
	assert.False(t, l.Enabled(zapcore.DebugLevel))

	cfg.Output.Stdout = false
	_, err = NewLogger(cfg, nil)
	assert.Error(t, err)
}
