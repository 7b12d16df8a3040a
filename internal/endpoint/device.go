package endpoint

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// userCodeAlphabet excludes vowels and lookalike characters so codes are
// easy to read aloud and never spell words.
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// DeviceAuthorization runs the device authorization endpoint (RFC 8628
// §3.1). It hands a device a device_code to poll the token endpoint with
// and a short user_code to type into the verification page.
func (d *Dispatcher) DeviceAuthorization(ctx context.Context, req *Request) *Response {
	log := logger.From(ctx).With(logger.Layer("endpoint"), logger.Op("device_authorization"))

	creds := clientauth.ParseCredentials(req.Header.Get("Authorization"), req.Form)
	client, _, err := d.clientAuth.Authenticate(ctx, creds)
	if err != nil {
		return errorResponse("device_authorization", err)
	}
	if !client.AllowsGrant(oauth2.GrantDeviceCode) {
		return errorResponse("device_authorization", oauth2.ErrGrantNotAllowed)
	}

	scopes := strings.Fields(req.Form.Get("scope"))
	if !client.AllowsScopes(scopes) {
		return errorResponse("device_authorization", oauth2.ErrScopeNotAllowed)
	}

	deviceCode, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("device code generation failed", logger.Err(err))
		return errorResponse("device_authorization", oauth2.ErrInternal)
	}
	userCode, err := newUserCode()
	if err != nil {
		log.Error("user code generation failed", logger.Err(err))
		return errorResponse("device_authorization", oauth2.ErrInternal)
	}

	now := d.now()
	dc := &repository.DeviceCode{
		ID:              uuid.NewString(),
		DeviceCodeHash:  tokens.SHA256Base64URL(deviceCode),
		UserCode:        userCode,
		ClientID:        client.ClientID,
		Scopes:          scopes,
		Status:          repository.DeviceStatusPending,
		IntervalSeconds: int(d.cfg.DevicePollInterval.Seconds()),
		CreatedAt:       now,
		ExpiresAt:       now.Add(d.cfg.DeviceCodeTTL),
	}
	if err := d.store.DeviceCodes().Save(ctx, dc); err != nil {
		log.Error("device code persistence failed", logger.Err(err))
		return errorResponse("device_authorization", oauth2.ErrInternal)
	}

	log.Info("device authorization started",
		logger.ClientID(client.ClientID), logger.Scope(strings.Join(scopes, " ")))
	return jsonResponse(http.StatusOK, &oauth2.DeviceAuthorizationResponse{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURI: d.cfg.VerificationURI,
		ExpiresIn:       int64(d.cfg.DeviceCodeTTL.Seconds()),
		Interval:        int64(dc.IntervalSeconds),
	})
}

// newUserCode produces a code in the XXXX-XXXX shape of RFC 8628 §6.1.
func newUserCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, 0, 9)
	for i, c := range b {
		if i == 4 {
			out = append(out, '-')
		}
		out = append(out, userCodeAlphabet[int(c)%len(userCodeAlphabet)])
	}
	return string(out), nil
}
