package app_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/grantwire/grantwire/internal/app"
	"github.com/grantwire/grantwire/internal/config"
	"github.com/grantwire/grantwire/internal/oauth2"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.App.Env = "dev"
	c.Issuer.URL = "https://auth.example"
	c.Issuer.LoginURL = "https://auth.example/login"
	c.Issuer.ConsentURL = "https://auth.example/consent"
	c.Issuer.VerificationURI = "https://auth.example/device"
	c.Tokens.AccessTTL = "15m"
	c.Tokens.RefreshTTL = "720h"
	c.Tokens.CodeTTL = "10m"
	c.Tokens.DeviceCodeTTL = "15m"
	c.Tokens.DevicePollInterval = "5s"
	c.Storage.Driver = "memory"
	c.Session.CookieName = "gw_session"
	c.Session.HMACSecret = "session-secret"
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Clients = []config.Client{
		{
			ClientID:    "batch-svc",
			Type:        "confidential",
			Secret:      "top-secret",
			AuthMethods: []string{"client_secret_basic"},
			GrantTypes:  []string{"client_credentials"},
			Scopes:      []string{"reports:read"},
		},
	}
	return c
}

func TestBuildAndServe(t *testing.T) {
	container, err := app.Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer container.Close()

	srv := httptest.NewServer(container.Handler)
	defer srv.Close()

	// Liveness.
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Errorf("request id missing from response headers")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("security headers not applied")
	}

	// A full client_credentials exchange through the real router.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth2/token",
		strings.NewReader(url.Values{"grant_type": {"client_credentials"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("batch-svc:top-secret")))

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", resp.StatusCode)
	}
	var tr oauth2.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.AccessToken == "" || tr.TokenType != "Bearer" || tr.Scope != "reports:read" {
		t.Fatalf("token response: %+v", tr)
	}

	// Metrics endpoint is mounted when enabled.
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestBuildRejectsPublicClientWithSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Clients = []config.Client{{
		ClientID: "bad",
		Type:     "public",
		Secret:   "should-not-have-one",
	}}
	if _, err := app.Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build accepted a public client with a secret")
	}
}

func TestBuildRejectsKeylessTrustedIssuer(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedIssuers = []config.TrustedIssuer{{Issuer: "https://partner.example"}}
	if _, err := app.Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build accepted a trusted issuer without key material")
	}
}
