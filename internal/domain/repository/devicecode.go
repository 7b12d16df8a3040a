package repository

import (
	"context"
	"time"
)

// Device authorization states (RFC 8628).
const (
	DeviceStatusPending  = "pending"
	DeviceStatusApproved = "approved"
	DeviceStatusDenied   = "denied"
	DeviceStatusExpired  = "expired"
)

// DeviceCode representa una device authorization en curso.
type DeviceCode struct {
	ID              string
	DeviceCodeHash  string
	UserCode        string
	ClientID        string
	Scopes          []string
	Status          string
	Subject         string // set on approval
	IntervalSeconds int
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastPolledAt    *time.Time
}

// Expired reports whether the device code is past expiry relative to now.
func (d *DeviceCode) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// DeviceCodeRepository define operaciones sobre device codes.
type DeviceCodeRepository interface {
	// Save persiste un device code nuevo o actualizado.
	Save(ctx context.Context, dc *DeviceCode) error

	// GetByDeviceCodeHash busca por hash del device_code.
	// Retorna ErrNotFound si no existe.
	GetByDeviceCodeHash(ctx context.Context, hash string) (*DeviceCode, error)

	// GetByUserCode busca por user_code (para la pantalla de verificación).
	GetByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)

	// SetStatus transiciona el estado (approved/denied) y fija el subject.
	SetStatus(ctx context.Context, id, status, subject string) error

	// TouchPolled records a poll instant, for slow_down enforcement.
	TouchPolled(ctx context.Context, id string, at time.Time) error

	// Delete elimina un device code tras su canje.
	Delete(ctx context.Context, id string) error
}
