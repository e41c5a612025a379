package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := New(tc.kind, "x").HTTPStatus(); got != tc.want {
			t.Errorf("kind %s: expected %d, got %d", tc.kind, tc.want, got)
		}
	}
}

func TestGetKindFindsWrappedError(t *testing.T) {
	base := errors.New("stale version")
	err := fmt.Errorf("apply transition: %w", Wrap(KindConflict, "lead was modified concurrently", base))

	if GetKind(err) != KindConflict {
		t.Fatalf("expected conflict kind through wrapping, got %s", GetKind(err))
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected underlying error to stay reachable")
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := Wrap(KindInternal, "load lead", errors.New("connection reset")).WithOp("leads.Get")
	if err.Error() != "leads.Get: load lead: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
