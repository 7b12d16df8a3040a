// Package signing is the engine's boundary to JOSE key material. It wraps
// github.com/golang-jwt/jwt/v5 for parsing and verifying signed client
// assertions and jwt-bearer grants. Key trust policy (where keys come
// from) stays with the hosting application behind KeyResolver.
package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Algorithms the engine accepts for signed assertions.
var (
	// HMACAlgs are used with client_secret_jwt (shared secret).
	HMACAlgs = []string{"HS256", "HS384", "HS512"}

	// AsymmetricAlgs are used with private_key_jwt and jwt-bearer.
	AsymmetricAlgs = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}
)

var ErrUnknownIssuer = errors.New("unknown assertion issuer")

// Key is a verification key with its expected algorithm family.
type Key struct {
	ID string
	// Public is an *rsa.PublicKey, *ecdsa.PublicKey or ed25519.PublicKey.
	Public any
	// Secret is the shared HMAC secret; set instead of Public for HS* keys.
	Secret []byte
}

// Keyfunc returns a jwt.Keyfunc handing out this key's material.
func (k *Key) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if k.Secret != nil {
			return k.Secret, nil
		}
		return k.Public, nil
	}
}

// Algs returns the valid-methods list matching the key material.
func (k *Key) Algs() []string {
	if k.Secret != nil {
		return HMACAlgs
	}
	return AsymmetricAlgs
}

// KeyResolver resolves the verification key trusted for an assertion
// issuer. The trust policy (fixed registration vs JWKS fetch) is the
// hosting application's decision; the engine only calls this interface.
type KeyResolver interface {
	ResolveIssuerKey(ctx context.Context, issuer string) (*Key, error)
}

// StaticResolver is a KeyResolver over a fixed issuer -> key map.
type StaticResolver map[string]*Key

func (r StaticResolver) ResolveIssuerKey(_ context.Context, issuer string) (*Key, error) {
	k, ok := r[issuer]
	if !ok {
		return nil, ErrUnknownIssuer
	}
	return k, nil
}

// ParsePublicKeyPEM parses a PEM-encoded public key (PKIX "PUBLIC KEY" or
// PKCS1 "RSA PUBLIC KEY" block) into key material usable by Key.Public.
func ParsePublicKeyPEM(pemStr string) (any, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKIX public key: %w", err)
		}
		switch pub.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			return pub, nil
		}
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS1 public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}
