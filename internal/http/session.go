// Package http arma el router chi, los middlewares y el servidor del
// binario grantwired.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/grantwire/grantwire/internal/endpoint"
	"github.com/grantwire/grantwire/internal/interaction"
)

// CookieSessionResolver resuelve la sesión del end-user desde una cookie
// firmada con HS256. La emite la capa de login de la aplicación que
// hospeda al engine; acá solo se verifica.
type CookieSessionResolver struct {
	CookieName string
	Secret     []byte
}

// sessionClaims son los claims de la cookie de sesión.
type sessionClaims struct {
	jwtv5.RegisteredClaims
	LoginPerformed            bool `json:"login_performed,omitempty"`
	AccountSelectionPerformed bool `json:"account_selected,omitempty"`
	ConsentPerformed          bool `json:"consent_performed,omitempty"`
}

func (r *CookieSessionResolver) Resolve(_ context.Context, req *endpoint.Request) (*interaction.Session, error) {
	raw := cookieValue(req.Header.Get("Cookie"), r.CookieName)
	if raw == "" {
		return nil, nil
	}

	var claims sessionClaims
	_, err := jwtv5.ParseWithClaims(raw, &claims, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithLeeway(30*time.Second))
	if err != nil {
		// Cookie inválida o expirada: tratamos como no autenticado.
		return nil, nil
	}
	if claims.Subject == "" {
		return nil, nil
	}
	return &interaction.Session{
		Subject:                   claims.Subject,
		LoginPerformed:            claims.LoginPerformed,
		AccountSelectionPerformed: claims.AccountSelectionPerformed,
		ConsentPerformed:          claims.ConsentPerformed,
	}, nil
}

// MintSessionCookie emite el valor de la cookie para una sesión dada.
// Lo usa la capa de login y los tests de integración.
func (r *CookieSessionResolver) MintSessionCookie(s *interaction.Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   s.Subject,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
		LoginPerformed:            s.LoginPerformed,
		AccountSelectionPerformed: s.AccountSelectionPerformed,
		ConsentPerformed:          s.ConsentPerformed,
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(r.Secret)
}

// cookieValue extrae la cookie del header usando el parser de net/http.
func cookieValue(header, name string) string {
	req := http.Request{Header: http.Header{"Cookie": []string{header}}}
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
