package endpoint

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/interaction"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/security/pkce"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// Authorize runs the authorization endpoint for the code flow.
//
// Failure routing is two-phase: until client_id and redirect_uri have
// been validated against the registration, every error renders as a
// direct response, since redirecting would let an attacker bounce crafted
// error parameters off an unverified URI. After validation, errors
// redirect to the client with state echoed.
func (d *Dispatcher) Authorize(ctx context.Context, req *Request) *Response {
	log := logger.From(ctx).With(logger.Layer("endpoint"), logger.Op("authorize"))

	clientID := req.Param("client_id")
	redirectURI := req.Param("redirect_uri")
	state := req.Param("state")

	if clientID == "" || redirectURI == "" {
		return errorResponse("authorize", oauth2.ErrMissingParams)
	}
	client, err := d.store.Clients().Get(ctx, clientID)
	if err != nil {
		log.Debug("unknown client", logger.ClientID(clientID))
		return errorResponse("authorize", oauth2.E(oauth2.ErrInvalidRequest, "unknown client"))
	}
	if !client.AllowsRedirectURI(redirectURI) {
		log.Warn("redirect_uri not registered", logger.ClientID(clientID))
		return errorResponse("authorize", oauth2.E(oauth2.ErrInvalidRequest, "redirect_uri not registered"))
	}

	// Redirect URI is trusted from here on.

	if req.Param("response_type") != "code" {
		return errorRedirect(redirectURI, state,
			oauth2.E(oauth2.ErrUnsupportedResponseType, "only response_type=code is supported"))
	}
	if !client.AllowsGrant(oauth2.GrantAuthorizationCode) {
		return errorRedirect(redirectURI, state, oauth2.ErrGrantNotAllowed)
	}

	scopes := strings.Fields(req.Param("scope"))
	if !client.AllowsScopes(scopes) {
		log.Debug("scope not allowed", logger.ClientID(clientID), logger.Scope(req.Param("scope")))
		return errorRedirect(redirectURI, state, oauth2.ErrScopeNotAllowed)
	}

	challenge := req.Param("code_challenge")
	method := req.Param("code_challenge_method")
	if method == "" && challenge != "" {
		method = pkce.MethodPlain // RFC 7636 §4.3 default
	}
	if challenge == "" {
		if client.Public() {
			return errorRedirect(redirectURI, state,
				oauth2.E(oauth2.ErrInvalidRequest, "PKCE is required for public clients"))
		}
	} else if !pkce.ValidMethod(method) {
		return errorRedirect(redirectURI, state,
			oauth2.E(oauth2.ErrInvalidRequest, "unsupported code_challenge_method"))
	}

	// Interaction: session and consent feed the pure prompt machine.
	session, err := d.sessions.Resolve(ctx, req)
	if err != nil {
		log.Error("session resolution failed", logger.Err(err))
		return errorRedirect(redirectURI, state, oauth2.ErrInternal)
	}
	var consent *repository.Consent
	if session != nil {
		consent, err = d.store.Consents().Get(ctx, session.Subject, clientID)
		if err != nil && !repository.IsNotFound(err) {
			log.Error("consent lookup failed", logger.Err(err))
			return errorRedirect(redirectURI, state, oauth2.ErrInternal)
		}
	}

	decision, derr := interaction.Decide(interaction.Context{
		Prompts:         interaction.ParsePrompts(req.Param("prompt")),
		Session:         session,
		Consent:         consent,
		RequestedScopes: scopes,
	})
	if derr != nil {
		// prompt=none short-circuits: login_required / consent_required /
		// account_selection_required go straight back to the client.
		return errorRedirect(redirectURI, state, derr)
	}

	switch decision {
	case interaction.DecisionNeedLogin:
		return d.interactionRedirect(d.cfg.LoginURL, req)
	case interaction.DecisionNeedConsent:
		return d.interactionRedirect(d.cfg.ConsentURL, req)
	case interaction.DecisionNeedAccountSelect:
		return d.interactionRedirect(d.cfg.LoginURL+"?select_account=1", req)
	case interaction.DecisionDenied:
		return errorRedirect(redirectURI, state, oauth2.ErrUserDeniedAccess)
	}

	// Granted: mint the single-use code.
	rawCode, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("code generation failed", logger.Err(err))
		return errorRedirect(redirectURI, state, oauth2.ErrInternal)
	}
	now := d.now()
	code := &repository.AuthorizationCode{
		ID:              uuid.NewString(),
		CodeHash:        tokens.SHA256Base64URL(rawCode),
		ClientID:        clientID,
		Subject:         session.Subject,
		RedirectURI:     redirectURI,
		Scopes:          scopes,
		Audience:        client.Audience,
		CodeChallenge:   challenge,
		ChallengeMethod: method,
		Nonce:           req.Param("nonce"),
		CreatedAt:       now,
		ExpiresAt:       now.Add(d.cfg.CodeTTL),
	}
	if err := d.store.Codes().Save(ctx, code); err != nil {
		log.Error("code store failed", logger.Err(err))
		return errorRedirect(redirectURI, state, oauth2.ErrInternal)
	}

	log.Info("authorization code issued", logger.ClientID(clientID),
		logger.Subject(session.Subject), logger.Scope(strings.Join(scopes, " ")))

	return redirectResponse(redirectURI, map[string]string{
		"code":  rawCode,
		"state": state,
	})
}

// interactionRedirect sends the user agent to an interactive page with
// the original authorization request preserved in return_to.
func (d *Dispatcher) interactionRedirect(page string, req *Request) *Response {
	returnTo := d.cfg.IssuerURL + "/oauth2/authorize?" + req.Query.Encode()
	sep := "?"
	if strings.Contains(page, "?") {
		sep = "&"
	}
	loc := page + sep + "return_to=" + url.QueryEscape(returnTo)
	return redirectResponse(loc, nil)
}
