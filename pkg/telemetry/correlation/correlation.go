// Package correlation carries a request-scoped correlation id through context.
package correlation

import (
	"context"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// Header carries the correlation id on inbound requests and outbound provider calls.
const Header = "X-Correlation-Id"

const maxIDLength = 128

type ctxKey struct{}

// FromContext returns the correlation id stored on ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. Blank or malformed ids leave ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	id, ok := Sanitize(id)
	if !ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx carrying a correlation id, minting a ULID when none is present.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, ctxKey{}, id), id
}

// Sanitize trims a client-supplied id and rejects ones that are too long or
// contain control characters or whitespace.
func Sanitize(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxIDLength {
		return "", false
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", false
		}
	}
	return id, true
}
