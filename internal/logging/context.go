package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type requestIDCtxKey struct{}
type queryCtxKey struct{}

// QueryContext carries the coordinates of an in-flight KNN query for log
// correlation: the country the request was routed to and the partner whose
// index is being searched.
type QueryContext struct {
	Country string
	Partner int32
}

// ContextWithRequestID attaches a request id for log correlation.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext returns the request id previously attached, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithQuery attaches query coordinates for log correlation.
func ContextWithQuery(ctx context.Context, q QueryContext) context.Context {
	return context.WithValue(ctx, queryCtxKey{}, q)
}

// QueryFromContext returns the query coordinates previously attached, if any.
func QueryFromContext(ctx context.Context) (QueryContext, bool) {
	q, ok := ctx.Value(queryCtxKey{}).(QueryContext)
	return q, ok
}

// ContextFields extracts correlation data from ctx as Zap fields: trace/span
// id from OpenTelemetry, plus request id and query coordinates if present.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	if q, ok := QueryFromContext(ctx); ok {
		fields = append(fields,
			zap.String("country", q.Country),
			zap.Int32("partner", q.Partner),
		)
	}

	return fields
}
