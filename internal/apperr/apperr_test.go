package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyPassesThroughTypedError(t *testing.T) {
	orig := New(KindValidation, "bad field")
	got := Classify(orig)
	if got != orig {
		t.Fatalf("expected Classify to return the same *Error, got %v", got)
	}
}

func TestClassifyWrapsPlainError(t *testing.T) {
	plain := errors.New("boom")
	got := Classify(plain)
	if got.Kind != KindInternal {
		t.Fatalf("expected KindInternal for unclassified error, got %v", got.Kind)
	}
	if !errors.Is(got, plain) {
		t.Fatalf("expected Classify's wrapper to unwrap to the original error")
	}
}

func TestClassifyFindsWrappedTypedError(t *testing.T) {
	orig := New(KindAuthorization, "denied")
	wrapped := fmt.Errorf("handler failed: %w", orig)
	got := Classify(wrapped)
	if got != orig {
		t.Fatalf("expected Classify to unwrap to the original *Error via errors.As")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected Classify(nil) to return nil")
	}
}

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		code int32
	}{
		{KindAuthentication, 401},
		{KindAuthorization, 403},
		{KindValidation, 400},
		{KindState, 409},
		{KindResource, 450},
		{KindConsensus, 510},
		{KindProtocol, 400},
		{KindTransport, 500},
		{KindInternal, 500},
		{KindUnknown, 500},
	}
	for _, c := range cases {
		if got := c.kind.Code(); got != c.code {
			t.Errorf("%v.Code = %d, want %d", c.kind, got, c.code)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(KindInternal, "save failed", cause)
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose cause")
	}
}

func TestNotLeaderCarriesHint(t *testing.T) {
	err := NotLeader("node-2")
	if err.Kind != KindConsensus {
		t.Fatalf("expected KindConsensus, got %v", err.Kind)
	}
	if err.LeaderHint != "node-2" {
		t.Fatalf("expected leader hint node-2, got %q", err.LeaderHint)
	}
}

func TestStaleRevisionCarriesCurrent(t *testing.T) {
	err := StaleRevision(42)
	if err.Kind != KindState {
		t.Fatalf("expected KindState, got %v", err.Kind)
	}
	if err.CurrentRevision != 42 {
		t.Fatalf("expected current revision 42, got %d", err.CurrentRevision)
	}
}
