package pkce_test

import (
	"strings"
	"testing"

	"github.com/grantwire/grantwire/internal/security/pkce"
)

const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

func TestVerifyS256(t *testing.T) {
	challenge := pkce.Challenge(verifier)

	if !pkce.Verify(pkce.MethodS256, challenge, verifier) {
		t.Fatalf("Verify(S256) = false for the verifier that produced the challenge")
	}
	if pkce.Verify(pkce.MethodS256, challenge, strings.Repeat("x", 43)) {
		t.Fatalf("Verify(S256) accepted an unrelated verifier")
	}
	// RFC 7636 appendix B reference vector.
	if got, want := challenge, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"; got != want {
		t.Fatalf("Challenge() = %q, want %q", got, want)
	}
}

func TestVerifyPlain(t *testing.T) {
	if !pkce.Verify(pkce.MethodPlain, verifier, verifier) {
		t.Fatalf("Verify(plain) = false for identical strings")
	}
	other := strings.Repeat("a", 50)
	if pkce.Verify(pkce.MethodPlain, verifier, other) {
		t.Fatalf("Verify(plain) accepted a mismatched verifier")
	}
}

func TestVerifyIsPureComparison(t *testing.T) {
	// Verify compares; it does not police the §4.1 grammar. That check
	// lives with the callers, via ValidVerifier.
	if !pkce.Verify(pkce.MethodPlain, "v", "v") {
		t.Fatalf("Verify(plain) = false for equal strings outside the grammar")
	}
	short := "v"
	if !pkce.Verify(pkce.MethodS256, pkce.Challenge(short), short) {
		t.Fatalf("Verify(S256) = false for a matching out-of-grammar verifier")
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	challenge := pkce.Challenge(verifier)

	cases := []struct {
		name      string
		method    string
		challenge string
		verifier  string
	}{
		{"unknown method", "S512", challenge, verifier},
		{"empty method", "", challenge, verifier},
		{"empty challenge", pkce.MethodS256, "", verifier},
		{"wrong verifier", pkce.MethodS256, challenge, strings.Repeat("a", 43)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if pkce.Verify(tc.method, tc.challenge, tc.verifier) {
				t.Fatalf("Verify(%q) = true, want false", tc.name)
			}
		})
	}
}

func TestValidVerifier(t *testing.T) {
	if !pkce.ValidVerifier(strings.Repeat("a", 43)) {
		t.Fatalf("43-char verifier rejected")
	}
	if !pkce.ValidVerifier(strings.Repeat("~", 128)) {
		t.Fatalf("128-char verifier rejected")
	}
	if pkce.ValidVerifier(strings.Repeat("a", 42)) {
		t.Fatalf("42-char verifier accepted")
	}
	if pkce.ValidVerifier(strings.Repeat("a", 43) + "+") {
		t.Fatalf("verifier with reserved char accepted")
	}
}

func TestValidMethod(t *testing.T) {
	for m, want := range map[string]bool{"plain": true, "S256": true, "s256": false, "": false} {
		if got := pkce.ValidMethod(m); got != want {
			t.Errorf("ValidMethod(%q) = %v, want %v", m, got, want)
		}
	}
}
