// Package logging wraps zap for hierctx.
//
// Loggers write JSON or console output to stdout and optionally bridge to
// an OpenTelemetry LoggerProvider. Every context-aware method appends the
// correlation fields carried by the context: trace and span IDs, the
// request ID, and the hierarchy scope of the query being served.
//
//	ctx = logging.WithScope(ctx, scope)
//	logger.Info(ctx, "context assembled", zap.Int("sections", n))
//
// produces
//
//	{"level":"info","msg":"context assembled","trace_id":"...",
//	 "scope.company":"acme","scope.department":"engineering",
//	 "hierarchy_key":"acme|engineering","sections":3}
//
// Values under sensitive keys (api_key, authorization, ...) and strings
// matching bearer or key patterns are redacted by the encoder. Errors and
// above are never sampled.
package logging
