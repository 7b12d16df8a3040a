package repository

import (
	"context"
	"time"
)

// Token kinds stored by the engine.
const (
	TokenKindAccess  = "access_token"
	TokenKindRefresh = "refresh_token"
)

// Token representa un access o refresh token opaco. Solo se persiste el
// hash del valor.
type Token struct {
	ID        string
	Kind      string // TokenKindAccess | TokenKindRefresh
	TokenHash string
	ClientID  string
	Subject   string // empty for client_credentials grants
	Scopes    []string
	Audience  []string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
	// RotatedFrom links a refresh token to the one it replaced.
	RotatedFrom *string
	RevokedAt   *time.Time
}

// Usable reports whether the token may be accepted at the given instant:
// not revoked, past its not-before and before its expiry.
func (t *Token) Usable(now time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	if now.Before(t.NotBefore) {
		return false
	}
	return !now.After(t.ExpiresAt)
}

// TokenRepository define operaciones sobre tokens emitidos.
type TokenRepository interface {
	// Save persiste un token recién emitido.
	Save(ctx context.Context, t *Token) error

	// GetByHash busca un token usable por su hash.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, kind, tokenHash string) (*Token, error)

	// GetByHashIncludingRevoked también retorna tokens revocados, para que
	// el refresh grant pueda distinguir "revocado" de "inexistente".
	GetByHashIncludingRevoked(ctx context.Context, kind, tokenHash string) (*Token, error)

	// Revoke revoca un token por su ID. Idempotente.
	Revoke(ctx context.Context, tokenID string) error

	// RevokeFamily revoca un refresh token y toda su cadena de rotación.
	// Extension point for consumed-code reuse handling.
	RevokeFamily(ctx context.Context, tokenID string) (int, error)
}
