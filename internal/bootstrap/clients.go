// Package bootstrap siembra el estado declarativo (clients registrados)
// al Store en el arranque.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/grantwire/grantwire/internal/config"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/security/secrets"
)

// SeedClients registra los clients declarados en la configuración.
// Idempotente: Save reemplaza registros existentes.
func SeedClients(ctx context.Context, repo repository.ClientRepository, clients []config.Client) error {
	for _, cc := range clients {
		c, err := toRepositoryClient(cc)
		if err != nil {
			return fmt.Errorf("bootstrap: client %q: %w", cc.ClientID, err)
		}
		if err := repo.Save(ctx, c); err != nil {
			return fmt.Errorf("bootstrap: client %q: %w", cc.ClientID, err)
		}
		logger.From(ctx).Info("client registered",
			logger.ClientID(c.ClientID), logger.String("type", c.Type))
	}
	return nil
}

func toRepositoryClient(cc config.Client) (*repository.Client, error) {
	c := &repository.Client{
		ClientID:     cc.ClientID,
		Name:         cc.Name,
		Type:         cc.Type,
		AuthMethods:  cc.AuthMethods,
		RedirectURIs: cc.RedirectURIs,
		GrantTypes:   cc.GrantTypes,
		Scopes:       cc.Scopes,
		Audience:     cc.Audience,
		PublicKeyPEM: cc.PublicKeyPEM,
	}

	if cc.Type == repository.ClientTypePublic && cc.Secret != "" {
		return nil, fmt.Errorf("public clients must not carry a secret")
	}
	if cc.Secret != "" {
		hash, err := secrets.Hash(secrets.Default, cc.Secret)
		if err != nil {
			return nil, err
		}
		c.SecretHash = hash
		// client_secret_jwt necesita el secreto recuperable como clave HMAC.
		if hasMethod(cc.AuthMethods, oauth2.AuthMethodSecretJWT) {
			c.SecretPlain = cc.Secret
		}
	}
	if hasMethod(cc.AuthMethods, oauth2.AuthMethodPrivateKeyJWT) && cc.PublicKeyPEM == "" {
		return nil, fmt.Errorf("private_key_jwt requires public_key_pem")
	}
	return c, nil
}

func hasMethod(methods []string, m string) bool {
	for _, v := range methods {
		if strings.EqualFold(v, m) {
			return true
		}
	}
	return false
}
