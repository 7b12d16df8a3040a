package repository

import (
	"context"
	"time"
)

// Consent representa el consentimiento de un usuario a un client.
type Consent struct {
	ID        string
	Subject   string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	RevokedAt *time.Time
}

// Covers reports whether this consent covers every requested scope and is
// not revoked.
func (c *Consent) Covers(scopes []string) bool {
	if c.RevokedAt != nil {
		return false
	}
	granted := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// ConsentRepository define operaciones sobre user consents.
type ConsentRepository interface {
	// Upsert crea o actualiza un consent, reemplazando los scopes otorgados.
	Upsert(ctx context.Context, subject, clientID string, scopes []string) (*Consent, error)

	// Get obtiene el consent de un usuario para un client específico.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, subject, clientID string) (*Consent, error)

	// Revoke revoca un consent (soft delete con timestamp).
	Revoke(ctx context.Context, subject, clientID string) error
}
