package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := NewError(KindQueryTimeout, "check_deadlock", "", "statement timeout", context.DeadlineExceeded)
	wrapped := fmt.Errorf("run: %w", err)

	if !errors.Is(wrapped, ErrQueryTimeout) {
		t.Error("errors.Is should match by kind through wrapping")
	}
	if errors.Is(wrapped, ErrQueryExecution) {
		t.Error("timeout must not match execution kind")
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("underlying cause should stay reachable")
	}
	if KindOf(wrapped) != KindQueryTimeout {
		t.Errorf("KindOf = %q", KindOf(wrapped))
	}
}

func TestErrorMessageIncludesProbeAndParam(t *testing.T) {
	err := InvalidParameter("hours", "must be between 1 and 720, got %d", 0)
	err.Probe = "check_batch_data"
	msg := err.Error()
	for _, want := range []string{"check_batch_data", "InvalidParameterError", "hours", "got 0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestWithProbe(t *testing.T) {
	base := InvalidParameter("limit", "bad")
	stamped := WithProbe("check_batch_data", base)

	var pe *Error
	if !errors.As(stamped, &pe) || pe.Probe != "check_batch_data" {
		t.Fatalf("probe not stamped: %v", stamped)
	}
	if base.Probe != "" {
		t.Error("WithProbe must not mutate the original error")
	}

	raw := errors.New("boom")
	if KindOf(WithProbe("x", raw)) != KindQueryExecution {
		t.Error("unclassified errors default to QueryExecutionError")
	}
	if WithProbe("x", nil) != nil {
		t.Error("nil stays nil")
	}
}
