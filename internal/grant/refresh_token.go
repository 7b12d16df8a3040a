package grant

import (
	"context"
	"strings"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// RefreshTokenDeps wires the refresh_token handler.
type RefreshTokenDeps struct {
	Tokens repository.TokenRepository
	Issuer *Issuer
	Now    func() time.Time
}

type refreshTokenHandler struct {
	tokens repository.TokenRepository
	issuer *Issuer
	now    clock
}

// NewRefreshToken creates the refresh_token grant handler. Rotation is
// unconditional: every exchange revokes the presented token and mints a
// replacement linked through RotatedFrom.
func NewRefreshToken(d RefreshTokenDeps) Handler {
	return &refreshTokenHandler{tokens: d.Tokens, issuer: d.Issuer, now: orNow(d.Now)}
}

func (h *refreshTokenHandler) Type() string { return oauth2.GrantRefreshToken }

func (h *refreshTokenHandler) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("refresh_token"),
		logger.ClientID(req.Client.ClientID))

	raw := strings.TrimSpace(req.Params.Get("refresh_token"))
	if raw == "" {
		return nil, oauth2.ErrMissingParams
	}

	// Lookup includes revoked rows so a rotated-then-replayed token fails
	// with a precise invalid_grant instead of looking like "not found".
	rt, err := h.tokens.GetByHashIncludingRevoked(ctx, repository.TokenKindRefresh, tokens.SHA256Base64URL(raw))
	switch {
	case repository.IsNotFound(err):
		log.Debug("refresh token not found")
		return nil, oauth2.ErrGrantInvalid
	case err != nil:
		log.Error("refresh token lookup failed", logger.Err(err))
		return nil, oauth2.ErrInternal
	}

	now := h.now()
	if rt.RevokedAt != nil {
		log.Warn("revoked refresh token presented", logger.TokenID(rt.ID))
		return nil, oauth2.ErrGrantInvalid
	}
	if !rt.Usable(now) {
		log.Debug("refresh token expired or not yet valid", logger.TokenID(rt.ID))
		return nil, oauth2.ErrGrantInvalid
	}
	if !tokens.ConstantTimeEquals(rt.ClientID, req.Client.ClientID) {
		log.Warn("refresh token bound to different client", logger.TokenID(rt.ID))
		return nil, oauth2.ErrGrantInvalid
	}

	// Scope narrowing: requested scopes must be a subset of the original
	// grant; absent means "same as before".
	scopes := rt.Scopes
	if requested := strings.Fields(req.Params.Get("scope")); len(requested) > 0 {
		if !scopeSubset(requested, rt.Scopes) {
			log.Debug("requested scope exceeds original grant")
			return nil, oauth2.ErrScopeNotAllowed
		}
		scopes = requested
	}

	// Rotate: revoke first so the old token is dead before its successor
	// exists. The overlap window is bounded by the storage call.
	if err := h.tokens.Revoke(ctx, rt.ID); err != nil {
		log.Error("refresh token revoke failed", logger.Err(err), logger.TokenID(rt.ID))
		return nil, oauth2.ErrInternal
	}

	resp, err := h.issuer.Issue(ctx, Mint{
		ClientID:    req.Client.ClientID,
		Subject:     rt.Subject,
		Scopes:      scopes,
		Audience:    rt.Audience,
		WithRefresh: true,
		RotatedFrom: &rt.ID,
	})
	if err != nil {
		return nil, err
	}

	log.Info("refresh token rotated", logger.Subject(rt.Subject), logger.TokenID(rt.ID))
	return resp, nil
}
