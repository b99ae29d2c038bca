package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/loadpass/internal/observability/context"
	"github.com/smallbiznis/loadpass/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
	handleKey       = "package_handle"
)

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware seeds request and correlation ids and writes one http_request
// line per request once the handler chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := ensureRequestID(c)
		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = correlation.WithID(ctx, c.GetHeader(correlation.Header))
		ctx, correlationID := correlation.Ensure(ctx)
		c.Header(correlation.Header, correlationID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := requestFields(c, route, status, time.Since(start))

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := "", ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err), zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(c.Request.Method, route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestFields(c *gin.Context, route string, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
	}
	if handle := strings.TrimSpace(c.GetString(handleKey)); handle != "" {
		fields = append(fields, zap.String(handleKey, handle))
	}
	return fields
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString(requestIDKey))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set(requestIDKey, requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

// requestLevel keeps probes and preflights out of info logs.
func requestLevel(method, route string, status int) zapcore.Level {
	switch {
	case method == http.MethodOptions, route == "/metrics", route == "/health":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
