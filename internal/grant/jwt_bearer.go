package grant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/signing"
)

// jwtBearerLeeway absorbs clock skew between assertion issuer and server.
const jwtBearerLeeway = 30 * time.Second

// JWTBearerDeps wires the jwt-bearer handler.
type JWTBearerDeps struct {
	// Keys resolves the verification key trusted for an assertion issuer.
	// Trust policy (fixed key vs discovery) is the hosting application's.
	Keys signing.KeyResolver
	// TokenEndpoint is the absolute token endpoint URL, the required
	// audience of presented assertions.
	TokenEndpoint string
	Issuer        *Issuer
	Now           func() time.Time
}

type jwtBearerHandler struct {
	keys          signing.KeyResolver
	tokenEndpoint string
	issuer        *Issuer
	now           clock
}

// NewJWTBearer creates the urn:ietf:params:oauth:grant-type:jwt-bearer
// handler (RFC 7523 §2.1). Mints an access token only.
func NewJWTBearer(d JWTBearerDeps) Handler {
	return &jwtBearerHandler{keys: d.Keys, tokenEndpoint: d.TokenEndpoint, issuer: d.Issuer, now: orNow(d.Now)}
}

func (h *jwtBearerHandler) Type() string { return oauth2.GrantJWTBearer }

func (h *jwtBearerHandler) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("jwt_bearer"),
		logger.ClientID(req.Client.ClientID))

	raw := strings.TrimSpace(req.Params.Get("assertion"))
	if raw == "" {
		return nil, oauth2.ErrMissingParams
	}

	issuer := assertionIssuer(raw)
	if issuer == "" {
		log.Debug("assertion missing issuer")
		return nil, oauth2.ErrGrantInvalid
	}

	key, err := h.keys.ResolveIssuerKey(ctx, issuer)
	if err != nil {
		log.Debug("no trusted key for assertion issuer", logger.String("iss", issuer))
		return nil, oauth2.ErrGrantInvalid
	}

	a, err := signing.ParseAssertion(raw, key)
	if err != nil {
		log.Debug("assertion signature invalid", logger.String("iss", issuer))
		return nil, oauth2.ErrGrantInvalid
	}

	// Explicit claim checks, one rule per line.
	if a.Issuer != issuer {
		return nil, oauth2.ErrGrantInvalid
	}
	if a.Subject == "" {
		log.Debug("assertion has no subject")
		return nil, oauth2.ErrGrantInvalid
	}
	if err := a.ValidateAudience(h.tokenEndpoint); err != nil {
		log.Debug("assertion audience mismatch")
		return nil, oauth2.ErrGrantInvalid
	}
	if err := a.ValidateTimes(h.now(), jwtBearerLeeway); err != nil {
		log.Debug("assertion time check failed", logger.Err(err))
		return nil, oauth2.ErrGrantInvalid
	}

	scopes := req.Client.Scopes
	if requested := strings.Fields(req.Params.Get("scope")); len(requested) > 0 {
		if !req.Client.AllowsScopes(requested) {
			return nil, oauth2.ErrScopeNotAllowed
		}
		scopes = requested
	}

	resp, err := h.issuer.Issue(ctx, Mint{
		ClientID: req.Client.ClientID,
		Subject:  a.Subject,
		Scopes:   scopes,
		Audience: req.Client.Audience,
	})
	if err != nil {
		return nil, err
	}

	log.Info("jwt-bearer assertion exchanged", logger.Subject(a.Subject),
		logger.String("iss", issuer))
	return resp, nil
}

// assertionIssuer reads the iss claim without verification, to pick the
// trusted key. Every claim is re-read from the verified assertion after.
func assertionIssuer(raw string) string {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	dec, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var body struct {
		Iss string `json:"iss"`
	}
	if json.Unmarshal(dec, &body) != nil {
		return ""
	}
	return body.Iss
}
