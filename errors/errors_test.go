package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(401, "no session for client %s", "c1")
	if err.GetCode() != 401 {
		t.Errorf("expected code 401, got %d", err.GetCode())
	}
	if err.GetMessage() != "no session for client c1" {
		t.Errorf("unexpected message %q", err.GetMessage())
	}
}

func TestWithMetadataCopies(t *testing.T) {
	base := Unauthorized("theft suspected")

	if same := base.WithMetadata(nil); same != base {
		t.Error("WithMetadata(nil) should return the same instance")
	}

	decorated := base.WithMetadata(map[string]string{"series_id": "s1"})
	if decorated == base {
		t.Fatal("WithMetadata should return a new instance")
	}
	if len(base.Metadata) != 0 {
		t.Errorf("base metadata mutated: %v", base.Metadata)
	}
	if decorated.Metadata["series_id"] != "s1" {
		t.Errorf("metadata not set: %v", decorated.Metadata)
	}
}

func TestIsMatchesDecoratedCopies(t *testing.T) {
	sentinel := NotFound("unknown channel")
	err := fmt.Errorf("dispatch: %w", sentinel.WithMetadata(map[string]string{"channel": "2_5"}))

	if !errors.Is(err, sentinel) {
		t.Error("decorated copy should match its sentinel")
	}
	if errors.Is(err, NotFound("unknown plugin")) {
		t.Error("different message must not match")
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("write: broken pipe")
	err := Wrap(cause, 503, "send failed")

	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if Wrap(nil, 500, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	t.Logf("wrapped: %s", err.Error())
}

func TestFromErrorAndCode(t *testing.T) {
	if Code(nil) != 0 {
		t.Error("Code(nil) should be 0")
	}
	if Code(errors.New("plain")) != UnknownCode {
		t.Error("foreign errors should map to UnknownCode")
	}

	coded := TooManyRequests("blocked")
	if FromError(fmt.Errorf("ctx: %w", coded)) != coded {
		t.Error("FromError should unwrap to the original *Error")
	}
	if Code(coded) != 429 {
		t.Errorf("expected 429, got %d", Code(coded))
	}
}

func BenchmarkErrorString(b *testing.B) {
	err := Unauthorized("no session").
		WithMetadata(map[string]string{"client_id": "abcd"}).
		WithCause(errors.New("evicted"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = err.Error()
	}
}
