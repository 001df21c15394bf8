package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NewAPIError("upstream down"), ErrorKindAPI},
		{NewInternalServerError("boom"), ErrorKindInternal},
		{NewBadRequest("bad field"), ErrorKindBadRequest},
		{NewNotFound("no such card"), ErrorKindNotFound},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	inner := NewNotFound("missing")
	wrapped := fmt.Errorf("lookup: %w", inner)
	if got := KindOf(wrapped); got != ErrorKindNotFound {
		t.Fatalf("wrapped kind = %v, want %v", got, ErrorKindNotFound)
	}
}

func TestKindOfUnclassifiedDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain failure")); got != ErrorKindInternal {
		t.Fatalf("unclassified kind = %v, want %v", got, ErrorKindInternal)
	}
}

func TestErrorKindStrings(t *testing.T) {
	kinds := map[ErrorKind]string{
		ErrorKindAPI:        "api_error",
		ErrorKindInternal:   "internal_server_error",
		ErrorKindBadRequest: "bad_request",
		ErrorKindNotFound:   "not_found",
	}
	for kind, want := range kinds {
		if kind.String() != want {
			t.Fatalf("kind %d = %q, want %q", kind, kind.String(), want)
		}
	}
	if ErrorKind(42).String() != "unknown" {
		t.Fatalf("out-of-range kind should stringify as unknown")
	}
}
