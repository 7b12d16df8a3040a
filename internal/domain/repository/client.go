package repository

import (
	"context"
	"strings"
)

const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Client representa un cliente OAuth2/OIDC registrado.
type Client struct {
	ID           string
	ClientID     string // identificador público
	Name         string
	Type         string // "public" | "confidential"
	AuthMethods  []string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	Audience     []string

	// SecretHash is the argon2id PHC string for client_secret_basic/_post.
	// Empty for public clients.
	SecretHash string
	// SecretPlain holds the shared secret used as HMAC key for
	// client_secret_jwt assertions. Separate from SecretHash because HMAC
	// needs the recoverable secret.
	SecretPlain string
	// PublicKeyPEM is the registered key for private_key_jwt (RSA/EC PEM).
	PublicKeyPEM string
}

// AllowsAuthMethod reports whether the client may authenticate with the
// given token endpoint method. An empty set means confidential clients
// default to client_secret_basic and public clients to none.
func (c *Client) AllowsAuthMethod(method string) bool {
	if len(c.AuthMethods) == 0 {
		if c.Type == ClientTypePublic {
			return method == "none"
		}
		return method == "client_secret_basic"
	}
	for _, m := range c.AuthMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// AllowsGrant reports whether grant_type is in the client's allowed set.
func (c *Client) AllowsGrant(grantType string) bool {
	for _, g := range c.GrantTypes {
		if strings.EqualFold(g, grantType) {
			return true
		}
	}
	return false
}

// AllowsRedirectURI requires an exact match against a registered URI.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScope reports whether a single scope is in the client's allowed set.
func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is allowed.
func (c *Client) AllowsScopes(scopes []string) bool {
	for _, s := range scopes {
		if !c.AllowsScope(s) {
			return false
		}
	}
	return true
}

// Public reports whether the client is a public (secretless) client.
func (c *Client) Public() bool {
	return c.Type == ClientTypePublic
}

// ClientRepository define operaciones de lectura sobre clients registrados.
// Registration/management is a hosting-application concern.
type ClientRepository interface {
	// Get obtiene un client por su client_id público.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*Client, error)

	// Save registra o reemplaza un client.
	Save(ctx context.Context, c *Client) error
}
