package endpoint

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/metrics"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// Revoke runs the revocation endpoint (RFC 7009). Per §2.2 the endpoint
// answers 200 whether or not the token existed, was already revoked, or
// belongs to another client; the only error responses are for a missing
// token parameter or a failed client authentication.
func (d *Dispatcher) Revoke(ctx context.Context, req *Request) *Response {
	log := logger.From(ctx).With(logger.Layer("endpoint"), logger.Op("revoke"))

	creds := clientauth.ParseCredentials(req.Header.Get("Authorization"), req.Form)
	client, _, err := d.clientAuth.Authenticate(ctx, creds)
	if err != nil {
		return errorResponse("revoke", err)
	}

	raw := strings.TrimSpace(req.Form.Get("token"))
	if raw == "" {
		return errorResponse("revoke", oauth2.E(oauth2.ErrInvalidRequest, "token is required"))
	}

	t := d.lookupAnyToken(ctx, raw, req.Form.Get("token_type_hint"))
	if t == nil {
		return revokedOK()
	}

	// A client may only revoke its own tokens. A mismatch still answers
	// 200 so callers cannot probe which tokens exist.
	if subtle.ConstantTimeCompare([]byte(t.ClientID), []byte(client.ClientID)) != 1 {
		log.Warn("revocation of foreign token ignored",
			logger.ClientID(client.ClientID), logger.TokenID(t.ID))
		return revokedOK()
	}

	if t.Kind == repository.TokenKindRefresh {
		// Revoking a refresh token invalidates its whole rotation chain.
		if n, err := d.store.Tokens().RevokeFamily(ctx, t.ID); err != nil {
			log.Error("refresh family revocation failed", logger.Err(err), logger.TokenID(t.ID))
			return errorResponse("revoke", oauth2.ErrInternal)
		} else if n > 0 {
			metrics.TokensRevoked.Add(float64(n))
		}
		return revokedOK()
	}

	if err := d.store.Tokens().Revoke(ctx, t.ID); err != nil && !repository.IsNotFound(err) {
		log.Error("token revocation failed", logger.Err(err), logger.TokenID(t.ID))
		return errorResponse("revoke", oauth2.ErrInternal)
	}
	metrics.TokensRevoked.Inc()
	return revokedOK()
}

// lookupAnyToken is the revocation variant of lookupToken: it also finds
// already revoked tokens so a second revocation stays a clean 200.
func (d *Dispatcher) lookupAnyToken(ctx context.Context, raw, hint string) *repository.Token {
	hash := tokens.SHA256Base64URL(raw)

	kinds := []string{repository.TokenKindRefresh, repository.TokenKindAccess}
	if hint == repository.TokenKindAccess {
		kinds = []string{repository.TokenKindAccess, repository.TokenKindRefresh}
	}
	for _, kind := range kinds {
		if t, err := d.store.Tokens().GetByHashIncludingRevoked(ctx, kind, hash); err == nil && t != nil {
			return t
		}
	}
	return nil
}

func revokedOK() *Response {
	h := http.Header{}
	h.Set("Cache-Control", "no-store")
	return &Response{Status: http.StatusOK, Header: h}
}
