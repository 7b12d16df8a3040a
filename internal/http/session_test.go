package http_test

import (
	"context"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/grantwire/grantwire/internal/endpoint"
	gwhttp "github.com/grantwire/grantwire/internal/http"
	"github.com/grantwire/grantwire/internal/interaction"
)

func cookieRequest(name, value string) *endpoint.Request {
	h := nethttp.Header{}
	if value != "" {
		h.Set("Cookie", name+"="+value)
	}
	return &endpoint.Request{Header: h}
}

func TestCookieSessionRoundTrip(t *testing.T) {
	r := &gwhttp.CookieSessionResolver{CookieName: "gw_session", Secret: []byte("secret-key")}

	value, err := r.MintSessionCookie(&interaction.Session{
		Subject:          "u1",
		LoginPerformed:   true,
		ConsentPerformed: true,
	}, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	s, err := r.Resolve(context.Background(), cookieRequest("gw_session", value))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s == nil || s.Subject != "u1" || !s.LoginPerformed || !s.ConsentPerformed {
		t.Fatalf("session: %+v", s)
	}
	if s.AccountSelectionPerformed {
		t.Fatalf("unset flag came back true")
	}
}

func TestCookieSessionUnauthenticated(t *testing.T) {
	r := &gwhttp.CookieSessionResolver{CookieName: "gw_session", Secret: []byte("secret-key")}

	cases := []struct {
		name string
		req  *endpoint.Request
	}{
		{"no cookie", cookieRequest("gw_session", "")},
		{"wrong cookie name", cookieRequest("other", "whatever")},
		{"garbage value", cookieRequest("gw_session", "not-a-jwt")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := r.Resolve(context.Background(), tc.req)
			if err != nil || s != nil {
				t.Fatalf("got session=%+v err=%v, want nil, nil", s, err)
			}
		})
	}
}

func TestCookieSessionRejectsForeignSignature(t *testing.T) {
	minter := &gwhttp.CookieSessionResolver{CookieName: "gw_session", Secret: []byte("key-a")}
	verifier := &gwhttp.CookieSessionResolver{CookieName: "gw_session", Secret: []byte("key-b")}

	value, err := minter.MintSessionCookie(&interaction.Session{Subject: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	s, err := verifier.Resolve(context.Background(), cookieRequest("gw_session", value))
	if err != nil || s != nil {
		t.Fatalf("foreign signature accepted: session=%+v err=%v", s, err)
	}
}

func TestCookieSessionRejectsExpired(t *testing.T) {
	r := &gwhttp.CookieSessionResolver{CookieName: "gw_session", Secret: []byte("secret-key")}

	value, err := r.MintSessionCookie(&interaction.Session{Subject: "u1"}, -time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	s, err := r.Resolve(context.Background(), cookieRequest("gw_session", value))
	if err != nil || s != nil {
		t.Fatalf("expired cookie accepted: session=%+v err=%v", s, err)
	}
}
