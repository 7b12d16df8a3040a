package grant

import (
	"context"
	"strings"

	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
)

// ClientCredentialsDeps wires the client_credentials handler.
type ClientCredentialsDeps struct {
	Issuer *Issuer
}

type clientCredentialsHandler struct {
	issuer *Issuer
}

// NewClientCredentials creates the client_credentials grant handler.
// Machine-to-machine: no subject, no refresh token.
func NewClientCredentials(d ClientCredentialsDeps) Handler {
	return &clientCredentialsHandler{issuer: d.Issuer}
}

func (h *clientCredentialsHandler) Type() string { return oauth2.GrantClientCredentials }

func (h *clientCredentialsHandler) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("client_credentials"),
		logger.ClientID(req.Client.ClientID))

	if req.Client.Public() {
		log.Debug("client_credentials requires a confidential client")
		return nil, oauth2.ErrGrantNotAllowed
	}

	scopes := req.Client.Scopes
	if requested := strings.Fields(req.Params.Get("scope")); len(requested) > 0 {
		if !req.Client.AllowsScopes(requested) {
			log.Debug("scope not allowed", logger.Scope(req.Params.Get("scope")))
			return nil, oauth2.ErrScopeNotAllowed
		}
		scopes = requested
	}

	resp, err := h.issuer.Issue(ctx, Mint{
		ClientID: req.Client.ClientID,
		Scopes:   scopes,
		Audience: req.Client.Audience,
	})
	if err != nil {
		return nil, err
	}

	log.Info("client_credentials token issued", logger.Scope(strings.Join(scopes, " ")))
	return resp, nil
}
