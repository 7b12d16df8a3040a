package oauth2_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/grantwire/grantwire/internal/oauth2"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{oauth2.ErrInvalidRequest, http.StatusBadRequest},
		{oauth2.ErrInvalidClient, http.StatusUnauthorized},
		{oauth2.ErrInvalidGrant, http.StatusBadRequest},
		{oauth2.ErrServerError, http.StatusInternalServerError},
		{oauth2.ErrTemporarilyUnavailable, http.StatusServiceUnavailable},
		{oauth2.ErrAuthorizationPending, http.StatusBadRequest},
		{oauth2.ErrSlowDown, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := oauth2.E(tc.code, "").Status(); got != tc.want {
			t.Errorf("Status(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestWithStateDoesNotMutate(t *testing.T) {
	withState := oauth2.ErrGrantInvalid.WithState("abc")
	if withState.State != "abc" {
		t.Fatalf("WithState did not set state")
	}
	if oauth2.ErrGrantInvalid.State != "" {
		t.Fatalf("WithState mutated the shared predeclared error")
	}
	if !errors.Is(withState, oauth2.ErrGrantInvalid) {
		t.Fatalf("errors.Is does not match across WithState copies")
	}
}

func TestAsErrorFoldsUnknown(t *testing.T) {
	oe := oauth2.AsError(fmt.Errorf("pg: connection refused"))
	if oe.Code != oauth2.ErrServerError {
		t.Fatalf("AsError folded to %q, want server_error", oe.Code)
	}
	if oe.Description == "pg: connection refused" {
		t.Fatalf("AsError leaked the internal error text")
	}

	// Taxonomy errors pass through, also when wrapped.
	wrapped := fmt.Errorf("handler: %w", oauth2.ErrScopeNotAllowed)
	if got := oauth2.AsError(wrapped); got.Code != oauth2.ErrInvalidScope {
		t.Fatalf("AsError(wrapped) = %q, want invalid_scope", got.Code)
	}
}

func TestErrorJSONShape(t *testing.T) {
	b, err := json.Marshal(oauth2.E(oauth2.ErrInvalidRequest, "missing code").WithState("xyz"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["error"] != "invalid_request" || m["error_description"] != "missing code" || m["state"] != "xyz" {
		t.Fatalf("unexpected wire shape: %v", m)
	}
	if _, ok := m["error_uri"]; ok {
		t.Fatalf("empty error_uri should be omitted")
	}
}
