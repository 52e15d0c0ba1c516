package tracing

import (
	"context"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartIterationSpan opens the root span of one scenario iteration.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, vu int, iteration int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "attendance iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("attendload.vu", vu),
			attribute.Int64("attendload.iteration", iteration),
		),
	)
}

// StartRequestSpan starts a client span named "<METHOD> <endpoint>".
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, endpoint, url string) (context.Context, trace.Span) {
	name := method + " request"
	if endpoint != "" {
		name = method + " " + endpoint
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
	}
	if endpoint != "" {
		attrs = append(attrs, attribute.String("attendload.endpoint", endpoint))
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndRequestSpan records the response status and finishes span. A transport
// error or a 5xx status marks the span as failed.
func EndRequestSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 500:
		span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EndSpan finishes span, recording err if any.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
