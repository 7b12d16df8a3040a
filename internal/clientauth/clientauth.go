// Package clientauth authenticates OAuth2 clients at the token,
// introspection and revocation endpoints. One strategy per registered
// token-endpoint auth method (none, client_secret_basic,
// client_secret_post, client_secret_jwt, private_key_jwt), dispatched by
// a registry that demands exactly one strategy recognizes the request.
//
// Every failure surfaces as the uniform invalid_client taxonomy error so
// callers cannot distinguish "unknown client" from "wrong secret".
package clientauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
)

// Credentials are the client-identifying parts of a token-endpoint
// request, normalized by the transport adapter.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// BasicAuth marks credentials taken from the Authorization header.
	BasicAuth bool
	// SecretInBody marks a client_secret parameter in the form body.
	SecretInBody bool

	ClientAssertionType string
	ClientAssertion     string
}

// ParseCredentials extracts client credentials from the Authorization
// header and the parsed form body. Malformed Basic auth yields empty
// credentials, which the registry rejects as invalid_client.
func ParseCredentials(authorization string, form url.Values) *Credentials {
	c := &Credentials{
		ClientAssertionType: form.Get("client_assertion_type"),
		ClientAssertion:     form.Get("client_assertion"),
	}

	if strings.HasPrefix(strings.ToLower(authorization), "basic ") {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authorization[len("basic "):]))
		if err == nil {
			if id, secret, ok := strings.Cut(string(raw), ":"); ok {
				// RFC 6749 appendix B: credentials are form-urlencoded
				// inside the Basic pair.
				if uid, err := url.QueryUnescape(id); err == nil {
					c.ClientID = uid
				}
				if usec, err := url.QueryUnescape(secret); err == nil {
					c.ClientSecret = usec
				}
				c.BasicAuth = c.ClientID != ""
			}
		}
	}

	if !c.BasicAuth {
		if id := form.Get("client_id"); id != "" {
			c.ClientID = id
		}
	}
	if secret := form.Get("client_secret"); secret != "" {
		c.SecretInBody = true
		if !c.BasicAuth {
			c.ClientSecret = secret
		}
	}
	return c
}

// Strategy authenticates a client from presented credentials.
type Strategy interface {
	// Method is the wire name of the auth method this strategy implements.
	Method() string

	// Supports reports whether the credential shape belongs to this
	// strategy. It must be decidable from the request alone.
	Supports(c *Credentials) bool

	// Authenticate verifies the credentials and returns the client.
	Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error)
}

// Registry holds the strategy set and enforces the exactly-one-match rule.
type Registry struct {
	strategies []Strategy
}

// NewRegistry builds the standard five-strategy registry. tokenEndpoint is
// the absolute token endpoint URL, the required audience of client JWT
// assertions.
func NewRegistry(clients repository.ClientRepository, tokenEndpoint string) *Registry {
	return &Registry{strategies: []Strategy{
		&noneStrategy{clients: clients},
		&secretBasicStrategy{clients: clients},
		&secretPostStrategy{clients: clients},
		&secretJWTStrategy{clients: clients, tokenEndpoint: tokenEndpoint},
		&privateKeyJWTStrategy{clients: clients, tokenEndpoint: tokenEndpoint},
	}}
}

// Authenticate resolves the single strategy matching the credentials, runs
// it, and confirms the client is registered for the method actually used.
// Zero or multiple matching strategies is invalid_client: ambiguous
// credentials are never silently resolved.
func (r *Registry) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, string, error) {
	if c == nil {
		return nil, "", oauth2.ErrClientAuthFailed
	}

	var match Strategy
	for _, s := range r.strategies {
		if !s.Supports(c) {
			continue
		}
		if match != nil {
			return nil, "", oauth2.ErrClientAuthFailed
		}
		match = s
	}
	if match == nil {
		return nil, "", oauth2.ErrClientAuthFailed
	}

	client, err := match.Authenticate(ctx, c)
	if err != nil {
		return nil, "", oauth2.ErrClientAuthFailed
	}
	if !client.AllowsAuthMethod(match.Method()) {
		return nil, "", oauth2.ErrClientAuthFailed
	}
	return client, match.Method(), nil
}

// assertionAlg peeks at the JOSE header of a compact JWT and returns its
// alg value, without verifying anything. Used only to route an assertion
// to the HMAC or asymmetric strategy; verification happens later.
func assertionAlg(raw string) string {
	head, _, ok := strings.Cut(raw, ".")
	if !ok {
		return ""
	}
	dec, err := base64.RawURLEncoding.DecodeString(head)
	if err != nil {
		return ""
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if json.Unmarshal(dec, &hdr) != nil {
		return ""
	}
	return hdr.Alg
}

// unverifiedIssuer decodes the payload segment of a compact JWT and
// returns its iss claim without any verification. Only used to locate the
// client whose key will then verify the signature.
func unverifiedIssuer(raw string) string {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	dec, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var body struct {
		Iss string `json:"iss"`
	}
	if json.Unmarshal(dec, &body) != nil {
		return ""
	}
	return body.Iss
}

func isHMACAlg(alg string) bool {
	switch alg {
	case "HS256", "HS384", "HS512":
		return true
	}
	return false
}

func hasAssertion(c *Credentials) bool {
	return c.ClientAssertion != "" && c.ClientAssertionType == oauth2.ClientAssertionTypeJWTBear
}
