package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not found", NotFoundf("cluster %s", "c1"), NotFound},
		{"invalid", Invalidf("bad input"), Invalid},
		{"action in progress", &ActionInProgressErr{TargetType: "cluster", TargetID: "c1", Owner: "e1"}, ActionInProgress},
		{"wrapped", fmt.Errorf("context: %w", Conflictf("busy")), Conflict},
		{"plain stdlib error", errors.New("boom"), Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		NotFound:         404,
		Invalid:          400,
		Forbidden:        403,
		ActionInProgress: 409,
		NotSupported:     400,
		Conflict:         409,
		Internal:         500,
		Kind("unknown"):  500,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", kind, got, want)
		}
	}
}

func TestActionInProgressErrIs(t *testing.T) {
	err := &ActionInProgressErr{TargetType: "node", TargetID: "n1", Owner: "e2"}
	if !errors.Is(err, err) {
		t.Fatalf("errors.Is(err, err) should always hold")
	}
	if KindOf(err) != ActionInProgress {
		t.Fatalf("expected ActionInProgress kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Internalf(cause, "failed to write %s", "row")
	if !errors.Is(err, cause) {
		t.Fatalf("Internalf error should unwrap to its cause")
	}
}
