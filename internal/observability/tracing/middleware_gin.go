package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/loadpass/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "loadpass/http"

// GinMiddleware opens a server span per request. The span is renamed after the
// matched route once the handlers have run.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		method := c.Request.Method
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		start := time.Now()
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		if userID := obscontext.UserIDFromContext(c.Request.Context()); userID != "" {
			attrs = append(attrs, attribute.String("enduser.id", userID))
		}
		if handle := c.GetString("package_handle"); handle != "" {
			attrs = append(attrs, attribute.String("loadpass.package_handle", handle))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, "request failed")
	}
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
