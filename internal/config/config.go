package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Issuer struct {
		// URL is the absolute base URL of this authorization server.
		URL        string `yaml:"url"`
		LoginURL   string `yaml:"login_url"`
		ConsentURL string `yaml:"consent_url"`
		// VerificationURI se muestra en las respuestas de device authorization.
		VerificationURI string `yaml:"verification_uri"`
	} `yaml:"issuer"`

	Tokens struct {
		AccessTTL          string `yaml:"access_ttl"`
		RefreshTTL         string `yaml:"refresh_ttl"`
		CodeTTL            string `yaml:"code_ttl"`
		DeviceCodeTTL      string `yaml:"device_code_ttl"`
		DevicePollInterval string `yaml:"device_poll_interval"`
	} `yaml:"tokens"`

	Storage struct {
		// memory | redis | postgres
		Driver   string `yaml:"driver"`
		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
			Migrate         bool   `yaml:"migrate"`
		} `yaml:"postgres"`
		Redis struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	RateLimit struct {
		Enabled bool `yaml:"enabled"`
		// Max requests por caller dentro de Window.
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		// HMACSecret firma la cookie de sesión (HS256).
		HMACSecret string `yaml:"hmac_secret"`
	} `yaml:"session"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Clients registrados estáticamente (se siembran al Store al arrancar).
	Clients []Client `yaml:"clients"`

	// TrustedIssuers son los emisores aceptados por el jwt-bearer grant.
	TrustedIssuers []TrustedIssuer `yaml:"trusted_issuers"`
}

// Client es el registro declarativo de un cliente OAuth2.
type Client struct {
	ClientID     string   `yaml:"client_id"`
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"` // public | confidential
	Secret       string   `yaml:"secret"`
	AuthMethods  []string `yaml:"auth_methods"`
	RedirectURIs []string `yaml:"redirect_uris"`
	GrantTypes   []string `yaml:"grant_types"`
	Scopes       []string `yaml:"scopes"`
	Audience     []string `yaml:"audience"`
	PublicKeyPEM string   `yaml:"public_key_pem"`
}

// TrustedIssuer registra la clave de verificación de un emisor externo.
type TrustedIssuer struct {
	Issuer string `yaml:"issuer"`
	// PublicKeyPEM para RS*/ES*, o HMACSecret para HS*.
	PublicKeyPEM string `yaml:"public_key_pem"`
	HMACSecret   string `yaml:"hmac_secret"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Tokens.AccessTTL == "" {
		c.Tokens.AccessTTL = "15m"
	}
	if c.Tokens.RefreshTTL == "" {
		c.Tokens.RefreshTTL = "720h" // 30d
	}
	if c.Tokens.CodeTTL == "" {
		c.Tokens.CodeTTL = "10m"
	}
	if c.Tokens.DeviceCodeTTL == "" {
		c.Tokens.DeviceCodeTTL = "15m"
	}
	if c.Tokens.DevicePollInterval == "" {
		c.Tokens.DevicePollInterval = "5s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 60
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "gw_session"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea durations y campos obligatorios.
func (c *Config) Validate() error {
	if c.Issuer.URL == "" {
		return fmt.Errorf("config: issuer.url is required")
	}
	durs := map[string]string{
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"server.shutdown_timeout":     c.Server.ShutdownTimeout,
		"tokens.access_ttl":           c.Tokens.AccessTTL,
		"tokens.refresh_ttl":          c.Tokens.RefreshTTL,
		"tokens.code_ttl":             c.Tokens.CodeTTL,
		"tokens.device_code_ttl":      c.Tokens.DeviceCodeTTL,
		"tokens.device_poll_interval": c.Tokens.DevicePollInterval,
		"rate_limit.window":           c.RateLimit.Window,
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		durs["storage.postgres.conn_max_lifetime"] = c.Storage.Postgres.ConnMaxLifetime
	}
	for name, v := range durs {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	switch c.Storage.Driver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	for i, cl := range c.Clients {
		if cl.ClientID == "" {
			return fmt.Errorf("config: clients[%d]: client_id is required", i)
		}
		if cl.Type != "public" && cl.Type != "confidential" {
			return fmt.Errorf("config: clients[%d]: type must be public or confidential", i)
		}
	}
	return nil
}

// Duration devuelve una duration ya validada por Validate.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("ISSUER_URL"); ok {
		c.Issuer.URL = v
	}
	if v, ok := getEnvStr("ISSUER_LOGIN_URL"); ok {
		c.Issuer.LoginURL = v
	}
	if v, ok := getEnvStr("ISSUER_CONSENT_URL"); ok {
		c.Issuer.ConsentURL = v
	}
	if v, ok := getEnvStr("ISSUER_VERIFICATION_URI"); ok {
		c.Issuer.VerificationURI = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}
	if v, ok := getEnvBool("STORAGE_POSTGRES_MIGRATE"); ok {
		c.Storage.Postgres.Migrate = v
	}
	if v, ok := getEnvStr("STORAGE_REDIS_HOST"); ok {
		c.Storage.Redis.Host = v
	}
	if v, ok := getEnvInt("STORAGE_REDIS_PORT"); ok {
		c.Storage.Redis.Port = v
	}
	if v, ok := getEnvStr("STORAGE_REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}
	if v, ok := getEnvInt("STORAGE_REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("SESSION_HMAC_SECRET"); ok {
		c.Session.HMACSecret = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
	if v, ok := getEnvBool("RATE_LIMIT_ENABLED"); ok {
		c.RateLimit.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT_MAX"); ok {
		c.RateLimit.Max = v
	}
}
