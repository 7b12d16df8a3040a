package clientauth

import (
	"context"
	"errors"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/security/secrets"
)

var errAuthFailed = errors.New("client authentication failed")

// noneStrategy authenticates public clients that present only client_id.
type noneStrategy struct {
	clients repository.ClientRepository
}

func (s *noneStrategy) Method() string { return oauth2.AuthMethodNone }

func (s *noneStrategy) Supports(c *Credentials) bool {
	return c.ClientID != "" && !c.BasicAuth && !c.SecretInBody && c.ClientAssertion == ""
}

func (s *noneStrategy) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error) {
	client, err := s.clients.Get(ctx, c.ClientID)
	if err != nil {
		return nil, errAuthFailed
	}
	if !client.Public() {
		// Confidential clients must not downgrade to unauthenticated calls.
		logger.From(ctx).Debug("confidential client presented no credentials",
			logger.Layer("clientauth"), logger.ClientID(c.ClientID))
		return nil, errAuthFailed
	}
	return client, nil
}

// secretBasicStrategy implements client_secret_basic (HTTP Basic pair).
type secretBasicStrategy struct {
	clients repository.ClientRepository
}

func (s *secretBasicStrategy) Method() string { return oauth2.AuthMethodSecretBasic }

func (s *secretBasicStrategy) Supports(c *Credentials) bool {
	return c.BasicAuth
}

func (s *secretBasicStrategy) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error) {
	return authenticateSecret(ctx, s.clients, c.ClientID, c.ClientSecret)
}

// secretPostStrategy implements client_secret_post (form body pair).
type secretPostStrategy struct {
	clients repository.ClientRepository
}

func (s *secretPostStrategy) Method() string { return oauth2.AuthMethodSecretPost }

func (s *secretPostStrategy) Supports(c *Credentials) bool {
	return c.SecretInBody
}

func (s *secretPostStrategy) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error) {
	return authenticateSecret(ctx, s.clients, c.ClientID, c.ClientSecret)
}

// authenticateSecret is the shared secret check for basic/post. Argon2id
// verification is constant-time over the derived key.
func authenticateSecret(ctx context.Context, clients repository.ClientRepository, clientID, secret string) (*repository.Client, error) {
	if clientID == "" || secret == "" {
		return nil, errAuthFailed
	}
	client, err := clients.Get(ctx, clientID)
	if err != nil {
		return nil, errAuthFailed
	}
	if client.SecretHash == "" || !secrets.Verify(secret, client.SecretHash) {
		logger.From(ctx).Debug("client secret mismatch",
			logger.Layer("clientauth"), logger.ClientID(clientID))
		return nil, errAuthFailed
	}
	return client, nil
}
