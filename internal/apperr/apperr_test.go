package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_DirectError(t *testing.T) {
	err := NotFound("task %d not found", 42)
	if KindOf(err) != KindNotFound {
		t.Fatalf("unexpected kind: %v", KindOf(err))
	}
	if err.Error() != "task 42 not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestKindOf_WrappedChain(t *testing.T) {
	inner := Forbidden("not the owner")
	wrapped := fmt.Errorf("update failed: %w", inner)
	if !IsKind(wrapped, KindForbidden) {
		t.Fatalf("expected forbidden kind through wrap, got %v", KindOf(wrapped))
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatal("plain error must map to KindUnknown")
	}
}

func TestTransport_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport(cause, "llm request failed")
	if !errors.Is(err, cause) {
		t.Fatal("transport error must unwrap to its cause")
	}
	if err.Error() != "llm request failed: connection refused" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindValidation:   "validation",
		KindNotFound:     "not_found",
		KindForbidden:    "forbidden",
		KindPrecondition: "precondition_failed",
		KindState:        "state",
		KindTransport:    "transport",
		KindUnknown:      "unknown",
	}
	for kind, want := range cases {
		if kind.String() != want {
			t.Fatalf("kind %d: got %q want %q", kind, kind.String(), want)
		}
	}
}
