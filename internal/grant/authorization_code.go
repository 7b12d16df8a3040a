package grant

import (
	"context"
	"strings"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/security/pkce"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// ReuseObserver is notified when an already-consumed authorization code is
// presented again. Implementations may revoke the token family minted from
// the first redemption; the grant itself always fails invalid_grant.
type ReuseObserver func(ctx context.Context, code *repository.AuthorizationCode)

// AuthorizationCodeDeps wires the authorization_code handler.
type AuthorizationCodeDeps struct {
	Codes   repository.CodeRepository
	Issuer  *Issuer
	OnReuse ReuseObserver
	Now     func() time.Time
}

type authorizationCodeHandler struct {
	codes   repository.CodeRepository
	issuer  *Issuer
	onReuse ReuseObserver
	now     clock
}

// NewAuthorizationCode creates the authorization_code grant handler.
func NewAuthorizationCode(d AuthorizationCodeDeps) Handler {
	return &authorizationCodeHandler{
		codes:   d.Codes,
		issuer:  d.Issuer,
		onReuse: d.OnReuse,
		now:     orNow(d.Now),
	}
}

func (h *authorizationCodeHandler) Type() string { return oauth2.GrantAuthorizationCode }

func (h *authorizationCodeHandler) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("authorization_code"),
		logger.ClientID(req.Client.ClientID))

	rawCode := strings.TrimSpace(req.Params.Get("code"))
	redirectURI := strings.TrimSpace(req.Params.Get("redirect_uri"))
	verifier := strings.TrimSpace(req.Params.Get("code_verifier"))
	if rawCode == "" || redirectURI == "" {
		return nil, oauth2.ErrMissingParams
	}

	// One-shot: the storage consume is the at-most-once point. Two
	// concurrent redemptions get exactly one success.
	code, err := h.codes.Consume(ctx, tokens.SHA256Base64URL(rawCode))
	switch {
	case repository.IsCodeConsumed(err):
		// Reuse of a consumed code is a likely interception attempt.
		log.Warn("authorization code reuse detected")
		if h.onReuse != nil && code != nil {
			h.onReuse(ctx, code)
		}
		return nil, oauth2.ErrGrantInvalid
	case repository.IsNotFound(err):
		log.Debug("authorization code not found")
		return nil, oauth2.ErrGrantInvalid
	case err != nil:
		log.Error("code consume failed", logger.Err(err))
		return nil, oauth2.ErrInternal
	}

	now := h.now()
	if code.Expired(now) {
		log.Debug("authorization code expired")
		return nil, oauth2.ErrGrantInvalid
	}
	if !tokens.ConstantTimeEquals(code.ClientID, req.Client.ClientID) {
		log.Warn("authorization code bound to different client")
		return nil, oauth2.ErrGrantInvalid
	}
	if code.RedirectURI != redirectURI {
		log.Debug("redirect_uri mismatch")
		return nil, oauth2.ErrGrantInvalid
	}

	if code.CodeChallenge != "" {
		if !pkce.ValidVerifier(verifier) {
			log.Debug("code_verifier violates RFC 7636 grammar")
			return nil, oauth2.ErrGrantInvalid
		}
		if !pkce.Verify(code.ChallengeMethod, code.CodeChallenge, verifier) {
			log.Warn("PKCE verification failed")
			return nil, oauth2.ErrGrantInvalid
		}
	} else if req.Client.Public() {
		// A public client's code without a stored challenge means the
		// authorization step was bypassed or downgraded.
		log.Warn("public client code issued without PKCE challenge")
		return nil, oauth2.ErrGrantInvalid
	}

	resp, err := h.issuer.Issue(ctx, Mint{
		ClientID:    req.Client.ClientID,
		Subject:     code.Subject,
		Scopes:      code.Scopes,
		Audience:    code.Audience,
		WithRefresh: req.Client.AllowsGrant(oauth2.GrantRefreshToken),
	})
	if err != nil {
		return nil, err
	}

	log.Info("authorization code exchanged", logger.Subject(code.Subject),
		logger.Scope(strings.Join(code.Scopes, " ")))
	return resp, nil
}
