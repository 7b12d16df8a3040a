package secrets_test

import (
	"strings"
	"testing"

	"github.com/grantwire/grantwire/internal/security/secrets"
)

func TestHashAndVerify(t *testing.T) {
	phc, err := secrets.Hash(secrets.Default, "s3cret-value")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("Hash produced %q, want PHC argon2id prefix", phc)
	}
	if !secrets.Verify("s3cret-value", phc) {
		t.Fatalf("Verify rejected the original secret")
	}
	if secrets.Verify("other-value", phc) {
		t.Fatalf("Verify accepted a wrong secret")
	}
}

func TestHashIsSalted(t *testing.T) {
	a, err := secrets.Hash(secrets.Default, "same")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := secrets.Hash(secrets.Default, "same")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same secret are identical; salt missing")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, phc := range []string{
		"",
		"$argon2id$",
		"$argon2id$v=19$m=19456,t=2,p=1$notbase64!$xxx",
		"plain-text",
	} {
		if secrets.Verify("anything", phc) {
			t.Errorf("Verify accepted malformed hash %q", phc)
		}
	}
}
