package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestDisabledTracerStillCreatesSpans(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{ServiceName: "fnhost"}, nil)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "op", trace.WithAttributes(attribute.String("k", "v")))
	AddEvent(ctx, "event")
	span.End()
	assert.True(t, span.SpanContext().IsValid())
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := NewProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), "fnhost")

	h := HTTPMiddleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /health", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", http.StatusTeapot))
	assert.NotEmpty(t, rr.Header().Get("Traceparent"))
}

func TestHTTPMiddlewareMarksServerErrors(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := NewProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), "fnhost")

	h := HTTPMiddleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/admin/functions/Hello", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("error", true))
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
