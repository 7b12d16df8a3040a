// Package pkce implements Proof Key for Code Exchange verification
// (RFC 7636). The verifier is a pure function; policy decisions such as
// "public clients must use PKCE" belong to the grant handler.
package pkce

import (
	"crypto/sha256"
	"encoding/base64"

	tokens "github.com/grantwire/grantwire/internal/security/token"
)

// Challenge methods defined by RFC 7636 §4.2.
const (
	MethodPlain = "plain"
	MethodS256  = "S256"
)

// Verifier length bounds per RFC 7636 §4.1.
const (
	minVerifierLen = 43
	maxVerifierLen = 128
)

// Challenge computes the S256 code challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify checks a code verifier against the stored challenge. Comparisons
// are constant time and unknown methods fail closed. Verify is the pure
// comparison of RFC 7636 §4.6; enforcing the §4.1 verifier grammar is the
// caller's job (see ValidVerifier).
func Verify(method, challenge, verifier string) bool {
	if challenge == "" {
		return false
	}
	switch method {
	case MethodPlain:
		return tokens.ConstantTimeEquals(verifier, challenge)
	case MethodS256:
		return tokens.ConstantTimeEquals(Challenge(verifier), challenge)
	default:
		return false
	}
}

// ValidVerifier reports whether the verifier satisfies the RFC 7636 §4.1
// grammar: 43..128 characters from the unreserved set [A-Za-z0-9-._~].
func ValidVerifier(v string) bool {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// ValidMethod reports whether the challenge method is one we support.
func ValidMethod(m string) bool {
	return m == MethodPlain || m == MethodS256
}
