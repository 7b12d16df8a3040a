package grant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// Default lifetimes, used when the Issuer is built with zero values.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// opaqueTokenBytes is the entropy of minted token values.
const opaqueTokenBytes = 32

// Issuer mints opaque access and refresh tokens and persists their
// hashes. All grant handlers share one Issuer.
type Issuer struct {
	tokens     repository.TokenRepository
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        clock
}

// IssuerConfig configures token minting.
type IssuerConfig struct {
	Tokens     repository.TokenRepository
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NewIssuer creates an Issuer, applying defaults for zero TTLs.
func NewIssuer(cfg IssuerConfig) *Issuer {
	access := cfg.AccessTTL
	if access <= 0 {
		access = DefaultAccessTTL
	}
	refresh := cfg.RefreshTTL
	if refresh <= 0 {
		refresh = DefaultRefreshTTL
	}
	return &Issuer{
		tokens:     cfg.Tokens,
		accessTTL:  access,
		refreshTTL: refresh,
		now:        orNow(cfg.Now),
	}
}

// Mint describes the tokens to issue for a successful grant.
type Mint struct {
	ClientID    string
	Subject     string // empty for client_credentials
	Scopes      []string
	Audience    []string
	WithRefresh bool
	// RotatedFrom links the new refresh token to the one it replaces.
	RotatedFrom *string
}

// Issue mints an access token (and optionally a refresh token), persists
// their hashes, and builds the wire response. Storage failures surface as
// server_error.
func (i *Issuer) Issue(ctx context.Context, m Mint) (*oauth2.TokenResponse, error) {
	now := i.now()

	rawAccess, err := i.save(ctx, repository.TokenKindAccess, m, now, now.Add(i.accessTTL), nil)
	if err != nil {
		return nil, oauth2.ErrInternal
	}

	resp := &oauth2.TokenResponse{
		AccessToken: rawAccess,
		TokenType:   "Bearer",
		ExpiresIn:   int64(i.accessTTL.Seconds()),
		Scope:       strings.Join(m.Scopes, " "),
	}

	if m.WithRefresh {
		rawRefresh, err := i.save(ctx, repository.TokenKindRefresh, m, now, now.Add(i.refreshTTL), m.RotatedFrom)
		if err != nil {
			return nil, oauth2.ErrInternal
		}
		resp.RefreshToken = rawRefresh
	}
	return resp, nil
}

func (i *Issuer) save(ctx context.Context, kind string, m Mint, now, expires time.Time, rotatedFrom *string) (string, error) {
	raw, err := tokens.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	t := &repository.Token{
		ID:          uuid.NewString(),
		Kind:        kind,
		TokenHash:   tokens.SHA256Base64URL(raw),
		ClientID:    m.ClientID,
		Subject:     m.Subject,
		Scopes:      m.Scopes,
		Audience:    m.Audience,
		IssuedAt:    now,
		NotBefore:   now,
		ExpiresAt:   expires,
		RotatedFrom: rotatedFrom,
	}
	if err := i.tokens.Save(ctx, t); err != nil {
		return "", fmt.Errorf("store %s: %w", kind, err)
	}
	return raw, nil
}

// scopeSubset reports whether every element of requested is in granted.
func scopeSubset(requested, granted []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
