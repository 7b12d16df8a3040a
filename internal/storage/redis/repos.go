package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/grantwire/grantwire/internal/domain/repository"
)

func getJSON[T any](ctx context.Context, rdb *redis.Client, key string) (*T, error) {
	raw, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func setJSON(ctx context.Context, rdb *redis.Client, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, raw, ttl).Err()
}

// --- clients ---

type clientRepo struct{ s *Store }

func (r clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	return getJSON[repository.Client](ctx, r.s.rdb, r.s.key("client", clientID))
}

func (r clientRepo) Save(ctx context.Context, c *repository.Client) error {
	if c == nil || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	return setJSON(ctx, r.s.rdb, r.s.key("client", c.ClientID), c, 0)
}

// --- authorization codes ---

type codeRepo struct{ s *Store }

func (r codeRepo) Save(ctx context.Context, code *repository.AuthorizationCode) error {
	if code == nil || code.CodeHash == "" {
		return repository.ErrInvalidInput
	}
	return setJSON(ctx, r.s.rdb, r.s.key("code", code.CodeHash), code, r.s.ttlUntil(code.ExpiresAt))
}

// Consume usa GETDEL para que exactamente un llamador concurrente reciba
// el código; el resto ve el marker de consumido hasta la expiración
// natural del código.
func (r codeRepo) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	raw, err := r.s.rdb.GetDel(ctx, r.s.key("code", codeHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		used, exErr := r.s.rdb.Get(ctx, r.s.key("code-used", codeHash)).Bytes()
		if exErr == nil {
			// El marker guarda el código ya consumido para que el caller
			// pueda reaccionar al replay.
			var replayed repository.AuthorizationCode
			if jerr := json.Unmarshal(used, &replayed); jerr == nil {
				return &replayed, repository.ErrCodeConsumed
			}
			return nil, repository.ErrCodeConsumed
		}
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var code repository.AuthorizationCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, err
	}
	at := r.s.now()
	code.ConsumedAt = &at
	if err := setJSON(ctx, r.s.rdb, r.s.key("code-used", codeHash), &code, r.s.ttlUntil(code.ExpiresAt)); err != nil {
		return nil, err
	}
	return &code, nil
}

// --- tokens ---

type tokenRepo struct{ s *Store }

func (r tokenRepo) hashKey(kind, hash string) string { return r.s.key("tok", kind, hash) }
func (r tokenRepo) idKey(id string) string           { return r.s.key("tokid", id) }

func (r tokenRepo) Save(ctx context.Context, t *repository.Token) error {
	if t == nil || t.TokenHash == "" {
		return repository.ErrInvalidInput
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ttl := r.s.ttlUntil(t.ExpiresAt)
	if err := setJSON(ctx, r.s.rdb, r.idKey(t.ID), t, ttl); err != nil {
		return err
	}
	if err := r.s.rdb.Set(ctx, r.hashKey(t.Kind, t.TokenHash), t.ID, ttl).Err(); err != nil {
		return err
	}
	if t.RotatedFrom != nil {
		if err := r.s.rdb.Set(ctx, r.s.key("tokchild", *t.RotatedFrom), t.ID, ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r tokenRepo) getByHash(ctx context.Context, kind, hash string, includeRevoked bool) (*repository.Token, error) {
	id, err := r.s.rdb.Get(ctx, r.hashKey(kind, hash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t, err := getJSON[repository.Token](ctx, r.s.rdb, r.idKey(id))
	if err != nil {
		return nil, err
	}
	if !includeRevoked && t.RevokedAt != nil {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (r tokenRepo) GetByHash(ctx context.Context, kind, hash string) (*repository.Token, error) {
	return r.getByHash(ctx, kind, hash, false)
}

func (r tokenRepo) GetByHashIncludingRevoked(ctx context.Context, kind, hash string) (*repository.Token, error) {
	return r.getByHash(ctx, kind, hash, true)
}

func (r tokenRepo) revokeOne(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	t, err := getJSON[repository.Token](ctx, r.s.rdb, r.idKey(tokenID))
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	return true, setJSON(ctx, r.s.rdb, r.idKey(tokenID), t, r.s.ttlUntil(t.ExpiresAt))
}

func (r tokenRepo) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.revokeOne(ctx, tokenID, r.s.now())
	return err
}

func (r tokenRepo) RevokeFamily(ctx context.Context, tokenID string) (int, error) {
	at := r.s.now()
	n := 0
	seen := map[string]bool{}

	// Hacia atrás por la cadena de rotación.
	id := tokenID
	for id != "" && !seen[id] {
		seen[id] = true
		ok, err := r.revokeOne(ctx, id, at)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
		t, err := getJSON[repository.Token](ctx, r.s.rdb, r.idKey(id))
		if err != nil || t.RotatedFrom == nil {
			break
		}
		id = *t.RotatedFrom
	}

	// Hacia adelante por los sucesores.
	id = tokenID
	for {
		child, err := r.s.rdb.Get(ctx, r.s.key("tokchild", id)).Result()
		if errors.Is(err, redis.Nil) || err != nil || seen[child] {
			break
		}
		seen[child] = true
		ok, rerr := r.revokeOne(ctx, child, at)
		if rerr != nil {
			return n, rerr
		}
		if ok {
			n++
		}
		id = child
	}
	return n, nil
}

// --- device codes ---

type deviceRepo struct{ s *Store }

func (r deviceRepo) Save(ctx context.Context, dc *repository.DeviceCode) error {
	if dc == nil || dc.DeviceCodeHash == "" {
		return repository.ErrInvalidInput
	}
	if dc.ID == "" {
		dc.ID = uuid.NewString()
	}
	ttl := r.s.ttlUntil(dc.ExpiresAt)
	if err := setJSON(ctx, r.s.rdb, r.s.key("dcid", dc.ID), dc, ttl); err != nil {
		return err
	}
	if err := r.s.rdb.Set(ctx, r.s.key("dc", dc.DeviceCodeHash), dc.ID, ttl).Err(); err != nil {
		return err
	}
	return r.s.rdb.Set(ctx, r.s.key("uc", dc.UserCode), dc.ID, ttl).Err()
}

func (r deviceRepo) getByID(ctx context.Context, id string) (*repository.DeviceCode, error) {
	return getJSON[repository.DeviceCode](ctx, r.s.rdb, r.s.key("dcid", id))
}

func (r deviceRepo) getByRef(ctx context.Context, refKey string) (*repository.DeviceCode, error) {
	id, err := r.s.rdb.Get(ctx, refKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, id)
}

func (r deviceRepo) GetByDeviceCodeHash(ctx context.Context, hash string) (*repository.DeviceCode, error) {
	return r.getByRef(ctx, r.s.key("dc", hash))
}

func (r deviceRepo) GetByUserCode(ctx context.Context, userCode string) (*repository.DeviceCode, error) {
	return r.getByRef(ctx, r.s.key("uc", userCode))
}

func (r deviceRepo) SetStatus(ctx context.Context, id, status, subject string) error {
	dc, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}
	dc.Status = status
	if subject != "" {
		dc.Subject = subject
	}
	return setJSON(ctx, r.s.rdb, r.s.key("dcid", id), dc, r.s.ttlUntil(dc.ExpiresAt))
}

func (r deviceRepo) TouchPolled(ctx context.Context, id string, at time.Time) error {
	dc, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}
	dc.LastPolledAt = &at
	return setJSON(ctx, r.s.rdb, r.s.key("dcid", id), dc, r.s.ttlUntil(dc.ExpiresAt))
}

func (r deviceRepo) Delete(ctx context.Context, id string) error {
	dc, err := r.getByID(ctx, id)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.s.rdb.Del(ctx,
		r.s.key("dcid", id),
		r.s.key("dc", dc.DeviceCodeHash),
		r.s.key("uc", dc.UserCode),
	).Err()
}

// --- consents ---

type consentRepo struct{ s *Store }

func (r consentRepo) ckey(subject, clientID string) string {
	return r.s.key("consent", subject, clientID)
}

func (r consentRepo) Upsert(ctx context.Context, subject, clientID string, scopes []string) (*repository.Consent, error) {
	if subject == "" || clientID == "" {
		return nil, repository.ErrInvalidInput
	}
	c := repository.Consent{
		ID:        uuid.NewString(),
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    append([]string(nil), scopes...),
		GrantedAt: r.s.now(),
	}
	if prev, err := getJSON[repository.Consent](ctx, r.s.rdb, r.ckey(subject, clientID)); err == nil {
		c.ID = prev.ID
	}
	if err := setJSON(ctx, r.s.rdb, r.ckey(subject, clientID), c, 0); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r consentRepo) Get(ctx context.Context, subject, clientID string) (*repository.Consent, error) {
	return getJSON[repository.Consent](ctx, r.s.rdb, r.ckey(subject, clientID))
}

func (r consentRepo) Revoke(ctx context.Context, subject, clientID string) error {
	c, err := getJSON[repository.Consent](ctx, r.s.rdb, r.ckey(subject, clientID))
	if err != nil {
		return err
	}
	at := r.s.now()
	c.RevokedAt = &at
	return setJSON(ctx, r.s.rdb, r.ckey(subject, clientID), c, 0)
}
