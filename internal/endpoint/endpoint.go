// Package endpoint is the protocol dispatcher: the four OAuth2 endpoints
// (authorization, token, introspection, revocation) plus device
// authorization, expressed over a normalized request/response pair so the
// engine never touches transport sockets. The HTTP layer adapts
// net/http to these types.
package endpoint

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/grant"
	"github.com/grantwire/grantwire/internal/interaction"
)

// Request is a parsed inbound request, supplied by the transport adapter.
type Request struct {
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// Param returns a form value, falling back to the query string.
func (r *Request) Param(name string) string {
	if v := r.Form.Get(name); v != "" {
		return v
	}
	return r.Query.Get(name)
}

// Response is the {status, headers, body} triple handed back to the
// transport adapter.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// SessionResolver is the boundary to the hosting application's session
// layer: it maps a request onto the authenticated end-user interaction
// state, or nil when nobody is logged in.
type SessionResolver interface {
	Resolve(ctx context.Context, req *Request) (*interaction.Session, error)
}

// Config carries the static knobs of the dispatcher.
type Config struct {
	// IssuerURL is the absolute base URL of this server.
	IssuerURL string
	// LoginURL and ConsentURL are the interactive pages the authorization
	// endpoint redirects to (hosted outside the engine).
	LoginURL   string
	ConsentURL string
	// VerificationURI is shown to users in device authorization responses.
	VerificationURI string

	CodeTTL       time.Duration
	DeviceCodeTTL time.Duration
	// DevicePollInterval is the minimum device polling interval.
	DevicePollInterval time.Duration
}

// Deps wires the dispatcher. Built once at process start; no globals.
type Deps struct {
	Store      repository.Store
	ClientAuth *clientauth.Registry
	Grants     *grant.Registry
	Sessions   SessionResolver
	Config     Config
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Dispatcher orchestrates client authentication, PKCE, interaction and
// the grant registry for each endpoint.
type Dispatcher struct {
	store      repository.Store
	clientAuth *clientauth.Registry
	grants     *grant.Registry
	sessions   SessionResolver
	cfg        Config
	now        func() time.Time
}

// New creates a Dispatcher, applying defaults for zero config values.
func New(d Deps) *Dispatcher {
	cfg := d.Config
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.DeviceCodeTTL <= 0 {
		cfg.DeviceCodeTTL = 15 * time.Minute
	}
	if cfg.DevicePollInterval <= 0 {
		cfg.DevicePollInterval = 5 * time.Second
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store:      d.Store,
		clientAuth: d.ClientAuth,
		grants:     d.Grants,
		sessions:   d.Sessions,
		cfg:        cfg,
		now:        now,
	}
}
