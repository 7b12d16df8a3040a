package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/storage/memory"
)

func newCode(hash string) *repository.AuthorizationCode {
	now := time.Now()
	return &repository.AuthorizationCode{
		ID:        "c-" + hash,
		CodeHash:  hash,
		ClientID:  "web-app",
		Subject:   "u1",
		Scopes:    []string{"openid"},
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
}

func newToken(id, kind, hash string, rotatedFrom *string) *repository.Token {
	now := time.Now()
	return &repository.Token{
		ID:          id,
		Kind:        kind,
		TokenHash:   hash,
		ClientID:    "web-app",
		Subject:     "u1",
		IssuedAt:    now,
		NotBefore:   now,
		ExpiresAt:   now.Add(time.Hour),
		RotatedFrom: rotatedFrom,
	}
}

func TestCodeConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	if err := store.Codes().Save(ctx, newCode("h1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	code, err := store.Codes().Consume(ctx, "h1")
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if code.ConsumedAt == nil {
		t.Fatalf("ConsumedAt not set on returned code")
	}

	// A replay reports consumed and still hands back the record, an
	// unknown hash reports not found.
	replayed, err := store.Codes().Consume(ctx, "h1")
	if !repository.IsCodeConsumed(err) {
		t.Fatalf("replay: err = %v, want ErrCodeConsumed", err)
	}
	if replayed == nil || replayed.CodeHash != "h1" || replayed.ConsumedAt == nil {
		t.Fatalf("replay did not return the consumed record: %+v", replayed)
	}
	if _, err := store.Codes().Consume(ctx, "h-missing"); !repository.IsNotFound(err) {
		t.Fatalf("unknown: err = %v, want ErrNotFound", err)
	}
}

func TestTokenRevoke(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	if err := store.Tokens().Save(ctx, newToken("t1", repository.TokenKindAccess, "ah1", nil)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Tokens().Revoke(ctx, "t1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := store.Tokens().GetByHash(ctx, repository.TokenKindAccess, "ah1"); !repository.IsNotFound(err) {
		t.Fatalf("revoked token visible via GetByHash: %v", err)
	}
	got, err := store.Tokens().GetByHashIncludingRevoked(ctx, repository.TokenKindAccess, "ah1")
	if err != nil {
		t.Fatalf("GetByHashIncludingRevoked: %v", err)
	}
	if got.RevokedAt == nil {
		t.Fatalf("RevokedAt not set")
	}
}

func TestRevokeFamilyWalksRotationChain(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// r1 -> r2 -> r3 rotation chain.
	parentOfR2, parentOfR3 := "r1", "r2"
	r1 := newToken("r1", repository.TokenKindRefresh, "rh1", nil)
	r2 := newToken("r2", repository.TokenKindRefresh, "rh2", &parentOfR2)
	r3 := newToken("r3", repository.TokenKindRefresh, "rh3", &parentOfR3)
	for _, tok := range []*repository.Token{r1, r2, r3} {
		if err := store.Tokens().Save(ctx, tok); err != nil {
			t.Fatalf("save %s: %v", tok.ID, err)
		}
	}

	// Revoking from the middle kills ancestors and descendants.
	n, err := store.Tokens().RevokeFamily(ctx, "r2")
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d tokens, want 3", n)
	}
	for _, hash := range []string{"rh1", "rh2", "rh3"} {
		if _, err := store.Tokens().GetByHash(ctx, repository.TokenKindRefresh, hash); !repository.IsNotFound(err) {
			t.Fatalf("token %s survived family revocation: %v", hash, err)
		}
	}

	// A second pass revokes nothing further.
	if n, _ := store.Tokens().RevokeFamily(ctx, "r2"); n != 0 {
		t.Fatalf("second pass revoked %d tokens, want 0", n)
	}
}

func TestDeviceCodeLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Now()

	dc := &repository.DeviceCode{
		ID:             "d1",
		DeviceCodeHash: "dh1",
		UserCode:       "BCDF-GHJK",
		ClientID:       "tv-app",
		Status:         repository.DeviceStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(15 * time.Minute),
	}
	if err := store.DeviceCodes().Save(ctx, dc); err != nil {
		t.Fatalf("save: %v", err)
	}

	byUser, err := store.DeviceCodes().GetByUserCode(ctx, "BCDF-GHJK")
	if err != nil {
		t.Fatalf("GetByUserCode: %v", err)
	}
	if byUser.ID != "d1" {
		t.Fatalf("user code resolves to %s", byUser.ID)
	}

	if err := store.DeviceCodes().SetStatus(ctx, "d1", repository.DeviceStatusApproved, "u9"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := store.DeviceCodes().TouchPolled(ctx, "d1", now); err != nil {
		t.Fatalf("TouchPolled: %v", err)
	}

	got, err := store.DeviceCodes().GetByDeviceCodeHash(ctx, "dh1")
	if err != nil {
		t.Fatalf("GetByDeviceCodeHash: %v", err)
	}
	if got.Status != repository.DeviceStatusApproved || got.Subject != "u9" || got.LastPolledAt == nil {
		t.Fatalf("after updates: %+v", got)
	}

	if err := store.DeviceCodes().Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.DeviceCodes().GetByUserCode(ctx, "BCDF-GHJK"); !repository.IsNotFound(err) {
		t.Fatalf("user code key survived delete: %v", err)
	}
	// Deleting again is a no-op.
	if err := store.DeviceCodes().Delete(ctx, "d1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestConsentUpsertAndRevoke(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	first, err := store.Consents().Upsert(ctx, "u1", "web-app", []string{"openid"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.Consents().Upsert(ctx, "u1", "web-app", []string{"openid", "profile"})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert minted a new identity for the same (subject, client)")
	}
	if !second.Covers([]string{"openid", "profile"}) {
		t.Fatalf("scopes not replaced: %+v", second)
	}

	if err := store.Consents().Revoke(ctx, "u1", "web-app"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err := store.Consents().Get(ctx, "u1", "web-app")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RevokedAt == nil || got.Covers([]string{"openid"}) {
		t.Fatalf("revoked consent still covers scopes: %+v", got)
	}
}

func TestClientSaveCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	c := &repository.Client{ClientID: "web-app", Type: repository.ClientTypeConfidential}
	if err := store.Clients().Save(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	c.Type = repository.ClientTypePublic

	got, err := store.Clients().Get(ctx, "web-app")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != repository.ClientTypeConfidential {
		t.Fatalf("stored client aliases the caller's struct")
	}
	if _, err := store.Clients().Get(ctx, "ghost"); !repository.IsNotFound(err) {
		t.Fatalf("unknown client: err = %v, want ErrNotFound", err)
	}
}
