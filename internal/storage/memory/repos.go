package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/grantwire/grantwire/internal/domain/repository"
)

func (s *Store) Clients() repository.ClientRepository         { return clientRepo{s} }
func (s *Store) Codes() repository.CodeRepository             { return codeRepo{s} }
func (s *Store) Tokens() repository.TokenRepository           { return tokenRepo{s} }
func (s *Store) DeviceCodes() repository.DeviceCodeRepository { return deviceRepo{s} }
func (s *Store) Consents() repository.ConsentRepository       { return consentRepo{s} }

// --- clients ---

type clientRepo struct{ s *Store }

func (r clientRepo) Get(_ context.Context, clientID string) (*repository.Client, error) {
	v, ok := r.s.clients.Get(clientID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := v.(repository.Client)
	return &c, nil
}

func (r clientRepo) Save(_ context.Context, c *repository.Client) error {
	if c == nil || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	r.s.clients.Set(c.ClientID, *c, gocache.NoExpiration)
	return nil
}

// --- authorization codes ---

type codeRepo struct{ s *Store }

func (r codeRepo) Save(_ context.Context, code *repository.AuthorizationCode) error {
	if code == nil || code.CodeHash == "" {
		return repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes.Set(code.CodeHash, *code, r.s.ttlUntil(code.ExpiresAt))
	return nil
}

func (r codeRepo) Consume(_ context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.codes.Get(codeHash)
	if !ok {
		return nil, repository.ErrNotFound
	}
	code := v.(repository.AuthorizationCode)
	if code.ConsumedAt != nil {
		// The consumed record travels with the error so callers can
		// react to the replay (revoke the family minted from it).
		replayed := code
		return &replayed, repository.ErrCodeConsumed
	}
	at := r.s.now()
	code.ConsumedAt = &at
	// The consumed record stays until expiry so a replay is reported as
	// consumed, not as unknown.
	r.s.codes.Set(codeHash, code, r.s.ttlUntil(code.ExpiresAt))
	return &code, nil
}

// --- tokens ---

type tokenRepo struct{ s *Store }

func tokenHashKey(kind, hash string) string { return "h|" + kind + "|" + hash }
func tokenIDKey(id string) string { return "id|" + id }

func (r tokenRepo) Save(_ context.Context, t *repository.Token) error {
	if t == nil || t.TokenHash == "" {
		return repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ttl := r.s.ttlUntil(t.ExpiresAt)
	r.s.tokens.Set(tokenHashKey(t.Kind, t.TokenHash), t.ID, ttl)
	r.s.tokens.Set(tokenIDKey(t.ID), *t, ttl)
	if t.RotatedFrom != nil {
		r.s.children[*t.RotatedFrom] = t.ID
	}
	return nil
}

func (r tokenRepo) getByHash(kind, hash string, includeRevoked bool) (*repository.Token, error) {
	v, ok := r.s.tokens.Get(tokenHashKey(kind, hash))
	if !ok {
		return nil, repository.ErrNotFound
	}
	tv, ok := r.s.tokens.Get(tokenIDKey(v.(string)))
	if !ok {
		return nil, repository.ErrNotFound
	}
	t := tv.(repository.Token)
	if !includeRevoked && t.RevokedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r tokenRepo) GetByHash(_ context.Context, kind, hash string) (*repository.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getByHash(kind, hash, false)
}

func (r tokenRepo) GetByHashIncludingRevoked(_ context.Context, kind, hash string) (*repository.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getByHash(kind, hash, true)
}

// revokeLocked marca un token como revocado. Caller holds the mutex.
func (r tokenRepo) revokeLocked(tokenID string, at time.Time) bool {
	v, ok := r.s.tokens.Get(tokenIDKey(tokenID))
	if !ok {
		return false
	}
	t := v.(repository.Token)
	if t.RevokedAt != nil {
		return false
	}
	t.RevokedAt = &at
	r.s.tokens.Set(tokenIDKey(tokenID), t, r.s.ttlUntil(t.ExpiresAt))
	return true
}

func (r tokenRepo) Revoke(_ context.Context, tokenID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.revokeLocked(tokenID, r.s.now())
	return nil
}

func (r tokenRepo) RevokeFamily(_ context.Context, tokenID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	at := r.s.now()
	n := 0
	seen := map[string]bool{}

	// Backwards through the rotation chain.
	id := tokenID
	for id != "" && !seen[id] {
		seen[id] = true
		if r.revokeLocked(id, at) {
			n++
		}
		v, ok := r.s.tokens.Get(tokenIDKey(id))
		if !ok {
			break
		}
		t := v.(repository.Token)
		if t.RotatedFrom == nil {
			break
		}
		id = *t.RotatedFrom
	}

	// Forwards through the tokens that rotated this one out.
	id = tokenID
	for {
		child, ok := r.s.children[id]
		if !ok || seen[child] {
			break
		}
		seen[child] = true
		if r.revokeLocked(child, at) {
			n++
		}
		id = child
	}
	return n, nil
}

// --- device codes ---

type deviceRepo struct{ s *Store }

func deviceHashKey(hash string) string { return "dc|" + hash }
func deviceUserKey(code string) string { return "uc|" + code }
func deviceIDKey(id string) string     { return "dcid|" + id }

func (r deviceRepo) Save(_ context.Context, dc *repository.DeviceCode) error {
	if dc == nil || dc.DeviceCodeHash == "" {
		return repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if dc.ID == "" {
		dc.ID = uuid.NewString()
	}
	ttl := r.s.ttlUntil(dc.ExpiresAt)
	r.s.devices.Set(deviceIDKey(dc.ID), *dc, ttl)
	r.s.devices.Set(deviceHashKey(dc.DeviceCodeHash), dc.ID, ttl)
	r.s.devices.Set(deviceUserKey(dc.UserCode), dc.ID, ttl)
	return nil
}

func (r deviceRepo) getByID(id string) (*repository.DeviceCode, error) {
	v, ok := r.s.devices.Get(deviceIDKey(id))
	if !ok {
		return nil, repository.ErrNotFound
	}
	dc := v.(repository.DeviceCode)
	return &dc, nil
}

func (r deviceRepo) getByRef(refKey string) (*repository.DeviceCode, error) {
	v, ok := r.s.devices.Get(refKey)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.getByID(v.(string))
}

func (r deviceRepo) GetByDeviceCodeHash(_ context.Context, hash string) (*repository.DeviceCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getByRef(deviceHashKey(hash))
}

func (r deviceRepo) GetByUserCode(_ context.Context, userCode string) (*repository.DeviceCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.getByRef(deviceUserKey(userCode))
}

func (r deviceRepo) SetStatus(_ context.Context, id, status, subject string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dc, err := r.getByID(id)
	if err != nil {
		return err
	}
	dc.Status = status
	if subject != "" {
		dc.Subject = subject
	}
	r.s.devices.Set(deviceIDKey(id), *dc, r.s.ttlUntil(dc.ExpiresAt))
	return nil
}

func (r deviceRepo) TouchPolled(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dc, err := r.getByID(id)
	if err != nil {
		return err
	}
	dc.LastPolledAt = &at
	r.s.devices.Set(deviceIDKey(id), *dc, r.s.ttlUntil(dc.ExpiresAt))
	return nil
}

func (r deviceRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	dc, err := r.getByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	}
	r.s.devices.Delete(deviceIDKey(id))
	r.s.devices.Delete(deviceHashKey(dc.DeviceCodeHash))
	r.s.devices.Delete(deviceUserKey(dc.UserCode))
	return nil
}

// --- consents ---

type consentRepo struct{ s *Store }

func consentKey(subject, clientID string) string { return subject + "|" + clientID }

func (r consentRepo) Upsert(_ context.Context, subject, clientID string, scopes []string) (*repository.Consent, error) {
	if subject == "" || clientID == "" {
		return nil, repository.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := repository.Consent{
		ID:        uuid.NewString(),
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    append([]string(nil), scopes...),
		GrantedAt: r.s.now(),
	}
	if v, ok := r.s.consents.Get(consentKey(subject, clientID)); ok {
		c.ID = v.(repository.Consent).ID
	}
	r.s.consents.Set(consentKey(subject, clientID), c, gocache.NoExpiration)
	return &c, nil
}

func (r consentRepo) Get(_ context.Context, subject, clientID string) (*repository.Consent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.consents.Get(consentKey(subject, clientID))
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := v.(repository.Consent)
	return &c, nil
}

func (r consentRepo) Revoke(_ context.Context, subject, clientID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.consents.Get(consentKey(subject, clientID))
	if !ok {
		return repository.ErrNotFound
	}
	c := v.(repository.Consent)
	at := r.s.now()
	c.RevokedAt = &at
	r.s.consents.Set(consentKey(subject, clientID), c, gocache.NoExpiration)
	return nil
}
