package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stagehand/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "finalize", "encode", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"finalize", "encode", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "produce", "separate", "no marker", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to transient, got %v", err)
	}
}

func TestToolFailure(t *testing.T) {
	if got := services.ToolFailure(context.Background(), errors.New("exit status 1")); !errors.Is(got, services.ErrExternalTool) {
		t.Fatalf("expected external tool sentinel, got %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := services.ToolFailure(ctx, errors.New("signal: killed")); !errors.Is(got, services.ErrTimeout) {
		t.Fatalf("expected timeout sentinel for expired context, got %v", got)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect string
	}{
		{"nil", nil, ""},
		{"external", services.Wrap(services.ErrExternalTool, "p", "op", "m", nil), "external_tool"},
		{"validation", services.Wrap(services.ErrValidation, "p", "op", "m", nil), "validation"},
		{"configuration", services.Wrap(services.ErrConfiguration, "p", "op", "m", nil), "configuration"},
		{"not found", services.Wrap(services.ErrNotFound, "p", "op", "m", nil), "not_found"},
		{"timeout", services.Wrap(services.ErrTimeout, "p", "op", "m", nil), "timeout"},
		{"contention", services.Wrap(services.ErrContention, "p", "op", "m", nil), "contention"},
		{"stale", services.Wrap(services.ErrStale, "p", "op", "m", nil), "stale"},
		{"plain", errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.expect {
			t.Fatalf("%s: expected kind %q, got %q", tc.name, tc.expect, got)
		}
	}
}
