package collab

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorUnwrapsToUnderlyingCause(t *testing.T) {
	cause := errors.New("solver diverged")
	err := NewError("estimator", TransientEstimator, "pnp-fail", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected Is(err, cause) to hold via Unwrap")
	}
	if err.Kind != TransientEstimator {
		t.Fatalf("got kind %v, want %v", err.Kind, TransientEstimator)
	}
}

func TestErrorStringIncludesStageKindAndCode(t *testing.T) {
	err := NewError("decode", UpstreamIO, "eio", errors.New("short read"))
	got := err.Error()
	for _, want := range []string{"decode", "upstream-io", "eio", "short read"} {
		if !strings.Contains(got, want) {
			t.Errorf("error string %q missing %q", got, want)
		}
	}
}

func TestKindStringNamesEveryKind(t *testing.T) {
	kinds := []Kind{EndOfStream, TransientEstimator, UpstreamIO, GPURuntime, Configuration}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "unknown" {
			t.Errorf("Kind %d stringified to %q", k, s)
		}
		seen[s] = true
	}
	if len(seen) != len(kinds) {
		t.Errorf("expected %d distinct kind strings, got %d", len(kinds), len(seen))
	}
}
