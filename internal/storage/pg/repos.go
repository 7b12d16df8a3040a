package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/grantwire/grantwire/internal/domain/repository"
)

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// --- clients ---

type clientRepo struct{ s *Store }

const clientCols = `id, client_id, name, type, auth_methods, redirect_uris,
	grant_types, scopes, audience, secret_hash, secret_plain, public_key_pem`

func scanClient(row pgx.Row) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Type, &c.AuthMethods,
		&c.RedirectURIs, &c.GrantTypes, &c.Scopes, &c.Audience,
		&c.SecretHash, &c.SecretPlain, &c.PublicKeyPEM)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	row := r.s.pool.QueryRow(ctx,
		`SELECT `+clientCols+` FROM oauth_clients WHERE client_id = $1`, clientID)
	return scanClient(row)
}

func (r clientRepo) Save(ctx context.Context, c *repository.Client) error {
	if c == nil || c.ClientID == "" {
		return repository.ErrInvalidInput
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO oauth_clients (`+clientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (client_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			auth_methods = EXCLUDED.auth_methods,
			redirect_uris = EXCLUDED.redirect_uris,
			grant_types = EXCLUDED.grant_types,
			scopes = EXCLUDED.scopes,
			audience = EXCLUDED.audience,
			secret_hash = EXCLUDED.secret_hash,
			secret_plain = EXCLUDED.secret_plain,
			public_key_pem = EXCLUDED.public_key_pem`,
		c.ID, c.ClientID, c.Name, c.Type, c.AuthMethods, c.RedirectURIs,
		c.GrantTypes, c.Scopes, c.Audience, c.SecretHash, c.SecretPlain, c.PublicKeyPEM)
	return err
}

// --- authorization codes ---

type codeRepo struct{ s *Store }

const codeCols = `id, code_hash, client_id, subject, redirect_uri, scopes,
	audience, code_challenge, challenge_method, nonce, created_at, expires_at, consumed_at`

func scanCode(row pgx.Row) (*repository.AuthorizationCode, error) {
	var c repository.AuthorizationCode
	err := row.Scan(&c.ID, &c.CodeHash, &c.ClientID, &c.Subject, &c.RedirectURI,
		&c.Scopes, &c.Audience, &c.CodeChallenge, &c.ChallengeMethod, &c.Nonce,
		&c.CreatedAt, &c.ExpiresAt, &c.ConsumedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r codeRepo) Save(ctx context.Context, code *repository.AuthorizationCode) error {
	if code == nil || code.CodeHash == "" {
		return repository.ErrInvalidInput
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO oauth_codes (`+codeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		code.ID, code.CodeHash, code.ClientID, code.Subject, code.RedirectURI,
		code.Scopes, code.Audience, code.CodeChallenge, code.ChallengeMethod,
		code.Nonce, code.CreatedAt, code.ExpiresAt, code.ConsumedAt)
	return err
}

// Consume marca el código como consumido en un solo UPDATE condicional:
// el WHERE consumed_at IS NULL garantiza que solo un llamador concurrente
// recibe la fila.
func (r codeRepo) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	row := r.s.pool.QueryRow(ctx, `
		UPDATE oauth_codes SET consumed_at = now()
		WHERE code_hash = $1 AND consumed_at IS NULL
		RETURNING `+codeCols, codeHash)
	code, err := scanCode(row)
	if err == nil {
		return code, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	// Distinguish "already consumed" from "never existed". The consumed
	// row travels with the error so callers can react to the replay.
	replayed, qerr := scanCode(r.s.pool.QueryRow(ctx, `
		SELECT `+codeCols+` FROM oauth_codes WHERE code_hash = $1`, codeHash))
	if qerr == nil {
		return replayed, repository.ErrCodeConsumed
	}
	if repository.IsNotFound(qerr) {
		return nil, repository.ErrNotFound
	}
	return nil, qerr
}

// --- tokens ---

type tokenRepo struct{ s *Store }

const tokenCols = `id, kind, token_hash, client_id, subject, scopes, audience,
	issued_at, not_before, expires_at, rotated_from, revoked_at`

func scanToken(row pgx.Row) (*repository.Token, error) {
	var t repository.Token
	err := row.Scan(&t.ID, &t.Kind, &t.TokenHash, &t.ClientID, &t.Subject,
		&t.Scopes, &t.Audience, &t.IssuedAt, &t.NotBefore, &t.ExpiresAt,
		&t.RotatedFrom, &t.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r tokenRepo) Save(ctx context.Context, t *repository.Token) error {
	if t == nil || t.TokenHash == "" {
		return repository.ErrInvalidInput
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO oauth_tokens (`+tokenCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Kind, t.TokenHash, t.ClientID, t.Subject, t.Scopes, t.Audience,
		t.IssuedAt, t.NotBefore, t.ExpiresAt, t.RotatedFrom, t.RevokedAt)
	return err
}

func (r tokenRepo) GetByHash(ctx context.Context, kind, hash string) (*repository.Token, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT `+tokenCols+` FROM oauth_tokens
		WHERE kind = $1 AND token_hash = $2 AND revoked_at IS NULL`, kind, hash)
	return scanToken(row)
}

func (r tokenRepo) GetByHashIncludingRevoked(ctx context.Context, kind, hash string) (*repository.Token, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT `+tokenCols+` FROM oauth_tokens
		WHERE kind = $1 AND token_hash = $2`, kind, hash)
	return scanToken(row)
}

func (r tokenRepo) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.s.pool.Exec(ctx, `
		UPDATE oauth_tokens SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL`, tokenID)
	return err
}

// RevokeFamily revoca la cadena de rotación completa con un CTE
// recursivo en ambas direcciones.
func (r tokenRepo) RevokeFamily(ctx context.Context, tokenID string) (int, error) {
	tag, err := r.s.pool.Exec(ctx, `
		WITH RECURSIVE ancestors AS (
			SELECT id, rotated_from FROM oauth_tokens WHERE id = $1
			UNION
			SELECT t.id, t.rotated_from FROM oauth_tokens t
			JOIN ancestors a ON t.id = a.rotated_from
		), descendants AS (
			SELECT id FROM oauth_tokens WHERE id = $1
			UNION
			SELECT t.id FROM oauth_tokens t
			JOIN descendants d ON t.rotated_from = d.id
		)
		UPDATE oauth_tokens SET revoked_at = now()
		WHERE revoked_at IS NULL
		  AND id IN (SELECT id FROM ancestors UNION SELECT id FROM descendants)`,
		tokenID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- device codes ---

type deviceRepo struct{ s *Store }

const deviceCols = `id, device_code_hash, user_code, client_id, scopes, status,
	subject, interval_seconds, created_at, expires_at, last_polled_at`

func scanDevice(row pgx.Row) (*repository.DeviceCode, error) {
	var d repository.DeviceCode
	err := row.Scan(&d.ID, &d.DeviceCodeHash, &d.UserCode, &d.ClientID, &d.Scopes,
		&d.Status, &d.Subject, &d.IntervalSeconds, &d.CreatedAt, &d.ExpiresAt,
		&d.LastPolledAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r deviceRepo) Save(ctx context.Context, dc *repository.DeviceCode) error {
	if dc == nil || dc.DeviceCodeHash == "" {
		return repository.ErrInvalidInput
	}
	if dc.ID == "" {
		dc.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO oauth_device_codes (`+deviceCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		dc.ID, dc.DeviceCodeHash, dc.UserCode, dc.ClientID, dc.Scopes, dc.Status,
		dc.Subject, dc.IntervalSeconds, dc.CreatedAt, dc.ExpiresAt, dc.LastPolledAt)
	return err
}

func (r deviceRepo) GetByDeviceCodeHash(ctx context.Context, hash string) (*repository.DeviceCode, error) {
	row := r.s.pool.QueryRow(ctx,
		`SELECT `+deviceCols+` FROM oauth_device_codes WHERE device_code_hash = $1`, hash)
	return scanDevice(row)
}

func (r deviceRepo) GetByUserCode(ctx context.Context, userCode string) (*repository.DeviceCode, error) {
	row := r.s.pool.QueryRow(ctx,
		`SELECT `+deviceCols+` FROM oauth_device_codes WHERE user_code = $1`, userCode)
	return scanDevice(row)
}

func (r deviceRepo) SetStatus(ctx context.Context, id, status, subject string) error {
	tag, err := r.s.pool.Exec(ctx, `
		UPDATE oauth_device_codes
		SET status = $2, subject = CASE WHEN $3 = '' THEN subject ELSE $3 END
		WHERE id = $1`, id, status, subject)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r deviceRepo) TouchPolled(ctx context.Context, id string, at time.Time) error {
	tag, err := r.s.pool.Exec(ctx,
		`UPDATE oauth_device_codes SET last_polled_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r deviceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.s.pool.Exec(ctx, `DELETE FROM oauth_device_codes WHERE id = $1`, id)
	return err
}

// --- consents ---

type consentRepo struct{ s *Store }

const consentCols = `id, subject, client_id, scopes, granted_at, revoked_at`

func (r consentRepo) Upsert(ctx context.Context, subject, clientID string, scopes []string) (*repository.Consent, error) {
	if subject == "" || clientID == "" {
		return nil, repository.ErrInvalidInput
	}
	row := r.s.pool.QueryRow(ctx, `
		INSERT INTO oauth_consents (id, subject, client_id, scopes, granted_at, revoked_at)
		VALUES ($1, $2, $3, $4, now(), NULL)
		ON CONFLICT (subject, client_id) DO UPDATE SET
			scopes = EXCLUDED.scopes,
			granted_at = EXCLUDED.granted_at,
			revoked_at = NULL
		RETURNING `+consentCols,
		uuid.NewString(), subject, clientID, scopes)
	var c repository.Consent
	err := row.Scan(&c.ID, &c.Subject, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r consentRepo) Get(ctx context.Context, subject, clientID string) (*repository.Consent, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT `+consentCols+` FROM oauth_consents
		WHERE subject = $1 AND client_id = $2`, subject, clientID)
	var c repository.Consent
	err := row.Scan(&c.ID, &c.Subject, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.RevokedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r consentRepo) Revoke(ctx context.Context, subject, clientID string) error {
	tag, err := r.s.pool.Exec(ctx, `
		UPDATE oauth_consents SET revoked_at = now()
		WHERE subject = $1 AND client_id = $2 AND revoked_at IS NULL`,
		subject, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
