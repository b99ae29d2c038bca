package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithID(context.Background(), "cid-1")
	ctx, cid := Ensure(ctx)
	if cid != "cid-1" {
		t.Fatalf("expected existing correlation id, got %q", cid)
	}
	if FromContext(ctx) != "cid-1" {
		t.Fatalf("expected context to carry cid-1")
	}
}

func TestEnsureGeneratesULID(t *testing.T) {
	ctx, cid := Ensure(context.Background())
	if _, err := ulid.Parse(cid); err != nil {
		t.Fatalf("expected ulid correlation id, got %q: %v", cid, err)
	}
	if FromContext(ctx) != cid {
		t.Fatalf("expected context to carry generated id")
	}
}

func TestWithIDRejectsMalformedIDs(t *testing.T) {
	for _, raw := range []string{"", "   ", "a b", "line\nbreak", strings.Repeat("x", maxIDLength+1)} {
		if got := FromContext(WithID(context.Background(), raw)); got != "" {
			t.Fatalf("expected %q to be rejected, got %q", raw, got)
		}
	}
	if got := FromContext(WithID(context.Background(), "  cid-2 ")); got != "cid-2" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
}

func TestFromContextNil(t *testing.T) {
	if got := FromContext(nil); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
