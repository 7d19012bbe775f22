package containerexec

import (
	"context"
	"errors"
	"testing"

	"dagger.io/dagger"

	"github.com/aalvaropc/vgate/internal/domain"
)

func TestImageFor(t *testing.T) {
	tests := []struct {
		repo string
		tc   domain.Toolchain
		want string
	}{
		{"rust", "1.63.0", "rust:1.63.0"},
		{"rust", "stable", "rust:latest"},
		{"rust", "nightly", "rust:latest"},
		{"", "beta", "rust:latest"},
		{"ghcr.io/acme/rust", "1.70", "ghcr.io/acme/rust:1.70"},
	}

	for _, tt := range tests {
		if got := ImageFor(tt.repo, tt.tc); got != tt.want {
			t.Errorf("ImageFor(%q,%q)=%q want %q", tt.repo, tt.tc, got, tt.want)
		}
	}
}

func TestExecutor_SupportsLinuxOnly(t *testing.T) {
	ex := NewExecutor()
	if ex.Name() != domain.ExecutorContainer {
		t.Fatalf("Name()=%q", ex.Name())
	}
	if !ex.Supports(domain.PlatformLinux) {
		t.Fatalf("expected linux support")
	}
	if ex.Supports(domain.PlatformMacOS) || ex.Supports(domain.PlatformWindows) {
		t.Fatalf("expected only linux")
	}
}

func TestExecutor_OpenRejectsForeignPlatformWithoutConnecting(t *testing.T) {
	ex := NewExecutor()
	ex.connect = func(context.Context) (*dagger.Client, error) {
		t.Fatalf("engine should not be contacted")
		return nil, nil
	}

	cell := domain.Cell{Job: "test", Platform: domain.PlatformWindows, Declared: "stable", Toolchain: "stable"}
	_, err := ex.Open(context.Background(), cell, t.TempDir())
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestExecutor_ConnectErrorIsExecutionKind(t *testing.T) {
	ex := NewExecutor()
	ex.connect = func(context.Context) (*dagger.Client, error) {
		return nil, errors.New("engine unavailable")
	}

	cell := domain.Cell{Job: "test", Platform: domain.PlatformLinux, Declared: "stable", Toolchain: "stable"}
	_, err := ex.Open(context.Background(), cell, t.TempDir())
	if !domain.IsKind(err, domain.KindExecution) {
		t.Fatalf("expected KindExecution, got %v", err)
	}
}

func TestSession_BoundTruncates(t *testing.T) {
	s := &session{maxOutput: 4}

	out := s.bound("abcdef")
	if out.Text != "abcd" || !out.Truncated {
		t.Fatalf("got %+v", out)
	}
	out = s.bound("ab")
	if out.Text != "ab" || out.Truncated {
		t.Fatalf("got %+v", out)
	}
}

func TestCacheKey(t *testing.T) {
	c := domain.Cell{Job: "test", Platform: domain.PlatformLinux, Declared: "1.63.0", Toolchain: "1.63.0"}
	if got := cacheKey(c); got != "test-1_63_0-linux" {
		t.Fatalf("cacheKey=%q", got)
	}
}

func TestExecutor_CloseWithoutConnect(t *testing.T) {
	if err := NewExecutor().Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
