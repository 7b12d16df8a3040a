package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grantwire/grantwire/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
issuer:
  url: https://auth.example
`)
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want :8080", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" {
		t.Errorf("storage.driver = %q, want memory", c.Storage.Driver)
	}
	if c.Tokens.AccessTTL != "15m" || c.Tokens.RefreshTTL != "720h" {
		t.Errorf("token TTL defaults: %+v", c.Tokens)
	}
	if c.Session.CookieName != "gw_session" {
		t.Errorf("session.cookie_name = %q", c.Session.CookieName)
	}
	if c.Metrics.Path != "/metrics" {
		t.Errorf("metrics.path = %q", c.Metrics.Path)
	}
	if c.Log.Level != "info" {
		t.Errorf("log.level = %q", c.Log.Level)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
server:
  addr: ":9090"
  read_timeout: 5s
issuer:
  url: https://auth.example
  login_url: https://auth.example/login
  consent_url: https://auth.example/consent
  verification_uri: https://auth.example/device
tokens:
  access_ttl: 30m
storage:
  driver: redis
  redis:
    host: cache.internal
    port: 6380
    prefix: gw
session:
  cookie_name: sid
  hmac_secret: sekret
clients:
  - client_id: web-app
    type: confidential
    secret: hunter2
    auth_methods: [client_secret_basic]
    redirect_uris: [https://app.example/cb]
    grant_types: [authorization_code, refresh_token]
    scopes: [openid, profile]
trusted_issuers:
  - issuer: https://partner.example
    hmac_secret: shared
`)
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Addr != ":9090" || c.Server.ReadTimeout != "5s" {
		t.Errorf("server: %+v", c.Server)
	}
	if c.Tokens.AccessTTL != "30m" {
		t.Errorf("tokens.access_ttl = %q", c.Tokens.AccessTTL)
	}
	if c.Storage.Driver != "redis" || c.Storage.Redis.Host != "cache.internal" || c.Storage.Redis.Port != 6380 {
		t.Errorf("storage: %+v", c.Storage)
	}
	if len(c.Clients) != 1 || c.Clients[0].ClientID != "web-app" || len(c.Clients[0].GrantTypes) != 2 {
		t.Errorf("clients: %+v", c.Clients)
	}
	if len(c.TrustedIssuers) != 1 || c.TrustedIssuers[0].Issuer != "https://partner.example" {
		t.Errorf("trusted_issuers: %+v", c.TrustedIssuers)
	}
	if config.Duration(c.Tokens.AccessTTL).Minutes() != 30 {
		t.Errorf("Duration helper: %v", config.Duration(c.Tokens.AccessTTL))
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ISSUER_URL", "https://env.example")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_POSTGRES_DSN", "postgres://env")
	t.Setenv("STORAGE_POSTGRES_MIGRATE", "true")
	t.Setenv("SERVER_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	path := writeConfig(t, `
issuer:
  url: https://file.example
storage:
  driver: memory
`)
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Issuer.URL != "https://env.example" {
		t.Errorf("issuer.url = %q, env must win", c.Issuer.URL)
	}
	if c.Storage.Driver != "postgres" || c.Storage.Postgres.DSN != "postgres://env" || !c.Storage.Postgres.Migrate {
		t.Errorf("storage overrides: %+v", c.Storage)
	}
	if len(c.Server.CORSAllowedOrigins) != 2 || c.Server.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("cors origins: %v", c.Server.CORSAllowedOrigins)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing issuer url",
			body: "app:\n  env: dev\n",
			want: "issuer.url",
		},
		{
			name: "bad duration",
			body: "issuer:\n  url: https://auth.example\ntokens:\n  access_ttl: soon\n",
			want: "tokens.access_ttl",
		},
		{
			name: "unknown driver",
			body: "issuer:\n  url: https://auth.example\nstorage:\n  driver: etcd\n",
			want: "storage driver",
		},
		{
			name: "client without type",
			body: "issuer:\n  url: https://auth.example\nclients:\n  - client_id: a\n",
			want: "public or confidential",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
