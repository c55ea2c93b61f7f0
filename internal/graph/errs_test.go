package graph

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		kind Kind
		pred func(error) bool
	}{
		{"validation", Validationf("bad %s", "input"), KindValidation, IsValidation},
		{"conflict", Conflictf("busy"), KindConflict, IsConflict},
		{"not_found", NotFoundf("node %s", "x"), KindNotFound, IsNotFound},
		{"upstream", Upstream("llm call", cause), KindUpstream, IsUpstream},
		{"store", StoreErr("create node", cause), KindStore, IsStore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if KindOf(tc.err) != tc.kind {
				t.Fatalf("kind: want=%v got=%v", tc.kind, KindOf(tc.err))
			}
			if !tc.pred(tc.err) {
				t.Fatal("predicate should match")
			}
			if IsValidation(tc.err) && tc.kind != KindValidation {
				t.Fatal("predicate matched wrong kind")
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := StoreErr("run query", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("generate: %w", Conflictf("library is ANALYZING"))
	if !IsConflict(err) {
		t.Fatal("wrapped conflict should still be a conflict")
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Fatal("non-graph errors carry no kind")
	}
}

func TestErrorMessage(t *testing.T) {
	if got := Validationf("title must not be empty").Error(); got != "validation: title must not be empty" {
		t.Fatalf("message: %q", got)
	}
	with := StoreErr("update node", errors.New("timeout")).Error()
	if with != "store: update node: timeout" {
		t.Fatalf("message with cause: %q", with)
	}
}
