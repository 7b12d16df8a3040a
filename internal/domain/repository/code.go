package repository

import (
	"context"
	"time"
)

// AuthorizationCode representa un código de autorización de un solo uso.
// The opaque value is never persisted; only its SHA-256 hash.
type AuthorizationCode struct {
	ID              string
	CodeHash        string
	ClientID        string
	Subject         string
	RedirectURI     string
	Scopes          []string
	Audience        []string
	CodeChallenge   string
	ChallengeMethod string // "plain" | "S256"
	Nonce           string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
}

// Expired reports whether the code is past its expiry relative to now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CodeRepository define operaciones sobre authorization codes.
type CodeRepository interface {
	// Save persiste un código recién emitido.
	Save(ctx context.Context, code *AuthorizationCode) error

	// Consume atomically finds the code by hash and marks it consumed.
	// Exactly one of two concurrent calls for the same code succeeds.
	// Returns ErrNotFound for unknown codes and ErrCodeConsumed when the
	// code was already redeemed; on ErrCodeConsumed the consumed record
	// is returned alongside the error when the backend still has it.
	Consume(ctx context.Context, codeHash string) (*AuthorizationCode, error)
}
