package endpoint

import (
	"context"
	"net/http"
	"strings"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/metrics"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// Introspect runs the introspection endpoint (RFC 7662). Any token that
// is absent, expired, not yet valid or revoked reports {active:false}
// with no other fields: external callers must not be able to distinguish
// those cases.
func (d *Dispatcher) Introspect(ctx context.Context, req *Request) *Response {
	log := logger.From(ctx).With(logger.Layer("endpoint"), logger.Op("introspect"))

	creds := clientauth.ParseCredentials(req.Header.Get("Authorization"), req.Form)
	if _, _, err := d.clientAuth.Authenticate(ctx, creds); err != nil {
		return errorResponse("introspect", err)
	}

	raw := strings.TrimSpace(req.Form.Get("token"))
	if raw == "" {
		return errorResponse("introspect", oauth2.E(oauth2.ErrInvalidRequest, "token is required"))
	}

	t := d.lookupToken(ctx, raw, req.Form.Get("token_type_hint"))
	if t == nil || !t.Usable(d.now()) {
		metrics.IntrospectionLookups.WithLabelValues("inactive").Inc()
		return jsonResponse(http.StatusOK, &oauth2.IntrospectionResponse{Active: false})
	}

	metrics.IntrospectionLookups.WithLabelValues("active").Inc()
	log.Debug("token introspected", logger.ClientID(t.ClientID), logger.Subject(t.Subject))
	return jsonResponse(http.StatusOK, &oauth2.IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(t.Scopes, " "),
		ClientID:  t.ClientID,
		Sub:       t.Subject,
		TokenType: t.Kind,
		Exp:       t.ExpiresAt.Unix(),
		Iat:       t.IssuedAt.Unix(),
		Nbf:       t.NotBefore.Unix(),
	})
}

// lookupToken tries the hinted kind first, then the other. Lookup errors
// deliberately collapse to "no token": introspection never reveals why.
func (d *Dispatcher) lookupToken(ctx context.Context, raw, hint string) *repository.Token {
	hash := tokens.SHA256Base64URL(raw)

	kinds := []string{repository.TokenKindAccess, repository.TokenKindRefresh}
	if hint == repository.TokenKindRefresh {
		kinds = []string{repository.TokenKindRefresh, repository.TokenKindAccess}
	}
	for _, kind := range kinds {
		if t, err := d.store.Tokens().GetByHash(ctx, kind, hash); err == nil && t != nil {
			return t
		}
	}
	return nil
}
