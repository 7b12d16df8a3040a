// Package grant implements the token endpoint grant handlers: one state
// machine per grant_type behind a registry keyed on the wire string. Each
// handler receives the already-authenticated client and returns a token
// response or a taxonomy error.
package grant

import (
	"context"
	"net/url"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
)

// Request is a grant invocation: the authenticated client plus the raw
// form parameters of the token request.
type Request struct {
	GrantType  string
	Client     *repository.Client
	AuthMethod string
	Params     url.Values
}

// Handler executes a single grant type.
type Handler interface {
	// Type is the grant_type wire string this handler serves.
	Type() string

	// Handle runs the grant and mints a token response, or fails with a
	// taxonomy error.
	Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error)
}

// Registry maps grant_type strings to handlers. Built once at process
// start and passed by reference; there is no global handler state.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a registry from the given handlers.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(hs))}
	for _, h := range hs {
		r.handlers[h.Type()] = h
	}
	return r
}

// Handle dispatches to the handler for req.GrantType. Unmapped types fail
// unsupported_grant_type; a client whose registration does not include the
// grant fails unauthorized_client before the handler runs.
func (r *Registry) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	h, ok := r.handlers[req.GrantType]
	if !ok {
		return nil, oauth2.E(oauth2.ErrUnsupportedGrantType, "grant type not supported")
	}
	if req.Client == nil {
		return nil, oauth2.ErrClientAuthFailed
	}
	if !req.Client.AllowsGrant(req.GrantType) {
		logger.From(ctx).Debug("grant type not allowed for client",
			logger.Layer("grant"), logger.ClientID(req.Client.ClientID), logger.GrantType(req.GrantType))
		return nil, oauth2.ErrGrantNotAllowed
	}
	return h.Handle(ctx, req)
}

// Types returns the registered grant type strings (for discovery docs).
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// clock is the time source handlers use; injectable for tests.
type clock func() time.Time

func orNow(c clock) clock {
	if c == nil {
		return time.Now
	}
	return c
}
