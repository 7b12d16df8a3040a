package signing

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Assertion holds the registered claims of a parsed, signature-verified
// JWT assertion. Field-level policy (who may the issuer be, which audience
// is expected) is checked by the caller with Validate helpers so every
// rule is explicit at the call site.
type Assertion struct {
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	JTI       string
}

var (
	ErrAssertionMalformed = errors.New("assertion malformed or signature invalid")
	ErrAssertionExpired   = errors.New("assertion expired")
	ErrAssertionNotYet    = errors.New("assertion not yet valid")
	ErrAssertionAudience  = errors.New("assertion audience mismatch")
)

// ParseAssertion verifies the signature of a compact JWT under the given
// key and returns its registered claims. Time-based claims are NOT
// enforced here (jwt/v5 validation is disabled for exp/nbf) so that the
// caller can apply them against its own clock via ValidateTimes.
func ParseAssertion(raw string, key *Key) (*Assertion, error) {
	claims := jwtv5.RegisteredClaims{}
	_, err := jwtv5.ParseWithClaims(raw, &claims, key.Keyfunc(),
		jwtv5.WithValidMethods(key.Algs()),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrAssertionMalformed
	}

	a := &Assertion{
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		Audience: claims.Audience,
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		a.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.NotBefore != nil {
		a.NotBefore = claims.NotBefore.Time
	}
	if claims.IssuedAt != nil {
		a.IssuedAt = claims.IssuedAt.Time
	}
	return a, nil
}

// ValidateTimes checks exp (required, in the future) and nbf (if present,
// in the past) against now with the given leeway.
func (a *Assertion) ValidateTimes(now time.Time, leeway time.Duration) error {
	if a.ExpiresAt.IsZero() || !now.Before(a.ExpiresAt.Add(leeway)) {
		return ErrAssertionExpired
	}
	if !a.NotBefore.IsZero() && now.Add(leeway).Before(a.NotBefore) {
		return ErrAssertionNotYet
	}
	return nil
}

// ValidateAudience requires the expected audience to be present.
func (a *Assertion) ValidateAudience(expected string) error {
	for _, aud := range a.Audience {
		if aud == expected {
			return nil
		}
	}
	return ErrAssertionAudience
}
