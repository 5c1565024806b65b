package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "canopy"

// StartStorageSpan starts a span for a gated storage operation.
func StartStorageSpan(ctx context.Context, op, path string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "storage."+op,
		trace.WithAttributes(
			attribute.String("storage.path", path),
		),
	)
}

// StartRegenerationSpan starts a span for a bundle or manifest rebuild.
func StartRegenerationSpan(ctx context.Context, kind, scope, typeID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "regenerate."+kind,
		trace.WithAttributes(
			attribute.String("regenerate.scope", scope),
			attribute.String("regenerate.type_id", typeID),
		),
	)
}

// StartImportSpan starts a span for a bulk import batch.
func StartImportSpan(ctx context.Context, typeSlug string, rows int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "import.batch",
		trace.WithAttributes(
			attribute.String("import.type_slug", typeSlug),
			attribute.Int("import.rows", rows),
		),
	)
}
