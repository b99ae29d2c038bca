package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type userIDKey struct{}

// WithRequestID stores the inbound request id on ctx.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithUserID stores the authenticated user id.
func WithUserID(ctx stdcontext.Context, userID string) stdcontext.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey{}).(string)
	return value
}
