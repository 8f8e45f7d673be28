package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	tenantIDKey   contextKey = "tenant_id"
	documentIDKey contextKey = "document_id"
	jobIDKey      contextKey = "job_id"
)

// WithTenantID attaches a tenant id to the context for log correlation.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// WithDocumentID attaches a document id to the context for log correlation.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, documentIDKey, documentID)
}

// WithJobID attaches a queue job id to the context for log correlation.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// ContextFields extracts correlation fields from the context.
//
// Includes the OTEL trace/span ids when a recording span is present, plus
// any tenant/document/job ids previously attached.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v, ok := ctx.Value(documentIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("document_id", v))
	}
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("job_id", v))
	}

	return fields
}
