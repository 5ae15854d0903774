package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// HandleTracing opens a server span per request and threads it through the
// request context. Spans are named by the route template, not the raw URL,
// so all hits of one endpoint aggregate under one name.
func HandleTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// continue a trace started by the caller when headers carry one
		propagator := otel.GetTextMapPropagator()
		ctx = propagator.Extract(ctx, &httpHeaderCarrier{header: c.Request.Header})

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		tracer := otel.Tracer("")
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		)

		span.SetAttributes(
			semconv.HTTPMethod(c.Request.Method),
			semconv.HTTPURL(c.Request.URL.String()),
			semconv.HTTPRoute(route),
			attribute.String("component", "gin-http"),
		)

		defer func() {
			statusCode := c.Writer.Status()
			span.SetAttributes(semconv.HTTPStatusCode(statusCode))
			if statusCode >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(statusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// httpHeaderCarrier adapts http.Header to propagation.TextMapCarrier.
type httpHeaderCarrier struct {
	header http.Header
}

func (h *httpHeaderCarrier) Get(key string) string {
	return h.header.Get(key)
}

func (h *httpHeaderCarrier) Set(key, val string) {
	h.header.Set(key, val)
}

func (h *httpHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(h.header))
	for k := range h.header {
		keys = append(keys, k)
	}
	return keys
}
