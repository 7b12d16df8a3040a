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

// DeviceCodeDeps wires the device_code handler.
type DeviceCodeDeps struct {
	DeviceCodes repository.DeviceCodeRepository
	Issuer      *Issuer
	Now         func() time.Time
}

type deviceCodeHandler struct {
	deviceCodes repository.DeviceCodeRepository
	issuer      *Issuer
	now         clock
}

// NewDeviceCode creates the device_code polling handler (RFC 8628 §3.4/3.5).
func NewDeviceCode(d DeviceCodeDeps) Handler {
	return &deviceCodeHandler{deviceCodes: d.DeviceCodes, issuer: d.Issuer, now: orNow(d.Now)}
}

func (h *deviceCodeHandler) Type() string { return oauth2.GrantDeviceCode }

func (h *deviceCodeHandler) Handle(ctx context.Context, req *Request) (*oauth2.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("device_code"),
		logger.ClientID(req.Client.ClientID))

	raw := strings.TrimSpace(req.Params.Get("device_code"))
	if raw == "" {
		return nil, oauth2.ErrMissingParams
	}

	dc, err := h.deviceCodes.GetByDeviceCodeHash(ctx, tokens.SHA256Base64URL(raw))
	switch {
	case repository.IsNotFound(err):
		log.Debug("device code not found")
		return nil, oauth2.ErrGrantInvalid
	case err != nil:
		log.Error("device code lookup failed", logger.Err(err))
		return nil, oauth2.ErrInternal
	}

	if !tokens.ConstantTimeEquals(dc.ClientID, req.Client.ClientID) {
		log.Warn("device code bound to different client")
		return nil, oauth2.ErrGrantInvalid
	}

	now := h.now()
	if dc.Expired(now) || dc.Status == repository.DeviceStatusExpired {
		if dc.Status != repository.DeviceStatusExpired {
			_ = h.deviceCodes.SetStatus(ctx, dc.ID, repository.DeviceStatusExpired, "")
		}
		log.Debug("device code expired")
		return nil, oauth2.ErrDeviceExpired
	}

	switch dc.Status {
	case repository.DeviceStatusDenied:
		log.Info("device authorization denied by user")
		return nil, oauth2.ErrUserDeniedAccess

	case repository.DeviceStatusPending:
		// Enforce the advertised polling interval.
		if dc.LastPolledAt != nil && now.Sub(*dc.LastPolledAt) < time.Duration(dc.IntervalSeconds)*time.Second {
			log.Debug("device polling too fast")
			return nil, oauth2.ErrDeviceSlowDown
		}
		_ = h.deviceCodes.TouchPolled(ctx, dc.ID, now)
		return nil, oauth2.ErrDevicePending

	case repository.DeviceStatusApproved:
		// Redeemed exactly once: remove before minting.
		if err := h.deviceCodes.Delete(ctx, dc.ID); err != nil {
			log.Error("device code delete failed", logger.Err(err))
			return nil, oauth2.ErrInternal
		}
		resp, err := h.issuer.Issue(ctx, Mint{
			ClientID:    req.Client.ClientID,
			Subject:     dc.Subject,
			Scopes:      dc.Scopes,
			Audience:    req.Client.Audience,
			WithRefresh: req.Client.AllowsGrant(oauth2.GrantRefreshToken),
		})
		if err != nil {
			return nil, err
		}
		log.Info("device code exchanged", logger.Subject(dc.Subject))
		return resp, nil

	default:
		log.Error("device code in unknown state", logger.String("status", dc.Status))
		return nil, oauth2.ErrInternal
	}
}
