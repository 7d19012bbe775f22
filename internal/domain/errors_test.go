package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestOpErrorWrapUnwrap(t *testing.T) {
	root := errors.New("root")
	err := &OpError{
		Op:   "config.load_workflow",
		Kind: KindInvalidConfig,
		Path: "workflows/ci.yaml",
		Err:  root,
	}

	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is to match cause")
	}

	var got *OpError
	if !errors.As(err, &got) {
		t.Fatalf("expected errors.As to match OpError")
	}
	if got.Kind != KindInvalidConfig {
		t.Fatalf("expected kind %s", KindInvalidConfig)
	}

	msg := err.Error()
	for _, want := range []string{"config.load_workflow", "invalid_config", "path=workflows/ci.yaml", "root"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestIsKind(t *testing.T) {
	err := &OpError{Op: "x", Kind: KindNotFound, Err: ErrNotFound}
	wrapped := errors.Join(errors.New("outer"), err)

	if !IsKind(wrapped, KindNotFound) {
		t.Fatalf("expected IsKind to see through wrapping")
	}
	if IsKind(wrapped, KindExecution) {
		t.Fatalf("unexpected kind match")
	}
	if IsKind(errors.New("plain"), KindNotFound) {
		t.Fatalf("plain errors carry no kind")
	}
}

func TestNilOpError(t *testing.T) {
	var e *OpError
	if e.Error() != "<nil>" {
		t.Fatalf("expected <nil>, got %q", e.Error())
	}
	if e.Unwrap() != nil {
		t.Fatalf("expected nil unwrap")
	}
}

func TestOpErrorMatchesKindSentinel(t *testing.T) {
	err := &OpError{Op: "runstore.get", Kind: KindNotFound, Err: errors.New("no such run")}

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected kind to match its sentinel")
	}
	if errors.Is(err, ErrExecution) {
		t.Fatalf("unexpected match on another kind's sentinel")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no kind")
	}
	if IsKind(errors.New("plain"), "") {
		t.Fatalf("empty kind never matches")
	}
}
