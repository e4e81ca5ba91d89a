package ctxerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorRendersCodeColonMessage(t *testing.T) {
	err := Budget("a1", "max_tokens", "item %s exceeds %s", "a1", "max_tokens")
	if got, want := err.Error(), "BUDGET_ERROR:item a1 exceeds max_tokens"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", Validation("order[0]", "unknown section"))
	if !errors.Is(wrapped, ErrValidation) {
		t.Fatalf("expected wrapped validation error to match sentinel")
	}
	if errors.Is(wrapped, ErrBudget) {
		t.Fatalf("validation error must not match budget sentinel")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Fatalf("nil error should have empty code")
	}
	if got := CodeOf(errors.New("boom")); got != CodeAssembly {
		t.Fatalf("foreign error code = %s", got)
	}
	if got := CodeOf(Determinism("aa", "bb")); got != CodeDeterminism {
		t.Fatalf("determinism code = %s", got)
	}
}

func TestAssemblyUnwrapsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Assembly(cause, "self-check failed")
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
}
