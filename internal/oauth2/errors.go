// Package oauth2 contains the wire-level types of the protocol engine:
// the error taxonomy mandated by RFC 6749 / OIDC Core and the token,
// introspection and revocation response bodies.
//
// Every failure that crosses a component boundary is an *Error from this
// package. Components never return raw errors to the dispatcher; anything
// that is not already a taxonomy error is folded into server_error by
// AsError so that no internal detail leaks to callers.
package oauth2

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes fixed by RFC 6749 §5.2, RFC 8628 §3.5 and OIDC Core §3.1.2.6.
const (
	ErrInvalidRequest          = "invalid_request"
	ErrInvalidClient           = "invalid_client"
	ErrInvalidGrant            = "invalid_grant"
	ErrUnauthorizedClient      = "unauthorized_client"
	ErrUnsupportedGrantType    = "unsupported_grant_type"
	ErrUnsupportedResponseType = "unsupported_response_type"
	ErrInvalidScope            = "invalid_scope"
	ErrAccessDenied            = "access_denied"
	ErrServerError             = "server_error"
	ErrTemporarilyUnavailable  = "temporarily_unavailable"

	// Device authorization grant (RFC 8628).
	ErrAuthorizationPending = "authorization_pending"
	ErrSlowDown             = "slow_down"
	ErrExpiredToken         = "expired_token"

	// Interaction prompts (OIDC Core).
	ErrLoginRequired            = "login_required"
	ErrConsentRequired          = "consent_required"
	ErrInteractionRequired      = "interaction_required"
	ErrAccountSelectionRequired = "account_selection_required"
)

// statusFor maps each error code to the HTTP status RFC 6749 requires.
// Codes not listed default to 400.
var statusFor = map[string]int{
	ErrInvalidClient:          http.StatusUnauthorized,
	ErrServerError:            http.StatusInternalServerError,
	ErrTemporarilyUnavailable: http.StatusServiceUnavailable,
}

// Error is a protocol failure. It carries the wire code, the human
// description, an optional documentation URI and the state echo from the
// originating authorization request.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

// E builds a taxonomy error for the given code.
func E(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Status returns the HTTP status code mandated for this error.
func (e *Error) Status() int {
	if s, ok := statusFor[e.Code]; ok {
		return s
	}
	return http.StatusBadRequest
}

// WithState returns a copy carrying the state echo. The receiver is not
// mutated so predeclared errors stay shareable.
func (e *Error) WithState(state string) *Error {
	if state == "" {
		return e
	}
	c := *e
	c.State = state
	return &c
}

// WithDescription returns a copy with a replaced description.
func (e *Error) WithDescription(desc string) *Error {
	c := *e
	c.Description = desc
	return &c
}

// Is matches taxonomy errors by code, so errors.Is(err, oauth2.ErrGrantNotFound)
// style comparisons work across copies produced by WithState.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// AsError converts any error into a taxonomy error. Taxonomy errors pass
// through untouched; everything else becomes server_error with a generic
// description so collaborator failures never leak detail to the wire.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return E(ErrServerError, "an unexpected error occurred")
}

// Predeclared errors for the common failure paths. Handlers return these
// directly (optionally via WithState / WithDescription).
var (
	ErrMissingParams     = E(ErrInvalidRequest, "missing or invalid parameters")
	ErrClientAuthFailed  = E(ErrInvalidClient, "client authentication failed")
	ErrGrantNotAllowed   = E(ErrUnauthorizedClient, "client not authorized for this grant type")
	ErrGrantInvalid      = E(ErrInvalidGrant, "invalid or expired grant")
	ErrScopeNotAllowed   = E(ErrInvalidScope, "requested scope is invalid or not allowed")
	ErrInternal          = E(ErrServerError, "an unexpected error occurred")
	ErrUserDeniedAccess  = E(ErrAccessDenied, "the resource owner denied the request")
	ErrDevicePending     = E(ErrAuthorizationPending, "authorization request is pending")
	ErrDeviceSlowDown    = E(ErrSlowDown, "polling too frequently")
	ErrDeviceExpired     = E(ErrExpiredToken, "device code has expired")
	ErrNeedLogin         = E(ErrLoginRequired, "end-user authentication is required")
	ErrNeedConsent       = E(ErrConsentRequired, "end-user consent is required")
	ErrNeedInteraction   = E(ErrInteractionRequired, "end-user interaction is required")
	ErrNeedAccountSelect = E(ErrAccountSelectionRequired, "end-user account selection is required")
)
