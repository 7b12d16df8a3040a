package clientauth

import (
	"context"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/signing"
)

// assertionLeeway absorbs small clock skew between client and server.
const assertionLeeway = 30 * time.Second

// secretJWTStrategy implements client_secret_jwt: an HMAC assertion keyed
// with the client's shared secret.
type secretJWTStrategy struct {
	clients       repository.ClientRepository
	tokenEndpoint string
}

func (s *secretJWTStrategy) Method() string { return oauth2.AuthMethodSecretJWT }

func (s *secretJWTStrategy) Supports(c *Credentials) bool {
	return hasAssertion(c) && isHMACAlg(assertionAlg(c.ClientAssertion))
}

func (s *secretJWTStrategy) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error) {
	return authenticateAssertion(ctx, s.clients, s.tokenEndpoint, c, func(client *repository.Client) (*signing.Key, error) {
		if client.SecretPlain == "" {
			return nil, errAuthFailed
		}
		return &signing.Key{Secret: []byte(client.SecretPlain)}, nil
	})
}

// privateKeyJWTStrategy implements private_key_jwt: an asymmetric
// assertion verified under the client's registered public key.
type privateKeyJWTStrategy struct {
	clients       repository.ClientRepository
	tokenEndpoint string
}

func (s *privateKeyJWTStrategy) Method() string { return oauth2.AuthMethodPrivateKeyJWT }

func (s *privateKeyJWTStrategy) Supports(c *Credentials) bool {
	alg := assertionAlg(c.ClientAssertion)
	return hasAssertion(c) && alg != "" && !isHMACAlg(alg)
}

func (s *privateKeyJWTStrategy) Authenticate(ctx context.Context, c *Credentials) (*repository.Client, error) {
	return authenticateAssertion(ctx, s.clients, s.tokenEndpoint, c, func(client *repository.Client) (*signing.Key, error) {
		if client.PublicKeyPEM == "" {
			return nil, errAuthFailed
		}
		pub, err := signing.ParsePublicKeyPEM(client.PublicKeyPEM)
		if err != nil {
			return nil, errAuthFailed
		}
		return &signing.Key{Public: pub}, nil
	})
}

// authenticateAssertion runs the RFC 7523 §3 checks shared by both JWT
// strategies: iss == sub == client_id, aud contains the token endpoint,
// exp in the future, nbf in the past, signature valid under the key the
// client registered.
func authenticateAssertion(
	ctx context.Context,
	clients repository.ClientRepository,
	tokenEndpoint string,
	c *Credentials,
	keyFor func(*repository.Client) (*signing.Key, error),
) (*repository.Client, error) {
	log := logger.From(ctx).With(logger.Layer("clientauth"), logger.Op("assertion"))

	// Claim extraction needs the key, and the key needs the client, so
	// resolve the client from the unverified iss claim first and verify
	// the signature before trusting anything else. A client_id form
	// parameter, if present, must agree with the assertion identity.
	issuer := unverifiedIssuer(c.ClientAssertion)
	if issuer == "" {
		return nil, errAuthFailed
	}
	if c.ClientID != "" && c.ClientID != issuer {
		return nil, errAuthFailed
	}

	client, err := clients.Get(ctx, issuer)
	if err != nil {
		return nil, errAuthFailed
	}
	key, err := keyFor(client)
	if err != nil {
		return nil, errAuthFailed
	}

	a, err := signing.ParseAssertion(c.ClientAssertion, key)
	if err != nil {
		log.Debug("assertion signature invalid", logger.ClientID(issuer))
		return nil, errAuthFailed
	}

	if a.Issuer != client.ClientID || a.Subject != client.ClientID {
		log.Debug("assertion iss/sub mismatch", logger.ClientID(issuer))
		return nil, errAuthFailed
	}
	if err := a.ValidateAudience(tokenEndpoint); err != nil {
		log.Debug("assertion audience mismatch", logger.ClientID(issuer))
		return nil, errAuthFailed
	}
	if err := a.ValidateTimes(time.Now(), assertionLeeway); err != nil {
		log.Debug("assertion time check failed", logger.ClientID(issuer), logger.Err(err))
		return nil, errAuthFailed
	}
	return client, nil
}
