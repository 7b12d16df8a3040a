// Package app arma el engine completo a partir de la configuración:
// store, client auth, grants, dispatcher y router HTTP.
package app

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grantwire/grantwire/internal/bootstrap"
	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/config"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/endpoint"
	"github.com/grantwire/grantwire/internal/grant"
	"github.com/grantwire/grantwire/internal/http"
	oauthctrl "github.com/grantwire/grantwire/internal/http/controllers/oauth"
	"github.com/grantwire/grantwire/internal/metrics"
	"github.com/grantwire/grantwire/internal/rate"
	"github.com/grantwire/grantwire/internal/signing"
	"github.com/grantwire/grantwire/internal/storage/memory"
	"github.com/grantwire/grantwire/internal/storage/pg"
	storageredis "github.com/grantwire/grantwire/internal/storage/redis"
)

// Container agrupa los componentes armados del servidor.
type Container struct {
	Store      repository.Store
	Dispatcher *endpoint.Dispatcher
	Handler    nethttp.Handler

	closers []func()
}

// Close libera las conexiones del storage.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build construye el Container completo. La semilla de clients y las
// migraciones (si aplican) corren acá.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}

	store, err := buildStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}
	c.Store = store

	if err := bootstrap.SeedClients(ctx, store.Clients(), cfg.Clients); err != nil {
		return nil, err
	}

	keys, err := buildKeyResolver(cfg.TrustedIssuers)
	if err != nil {
		return nil, err
	}

	tokenEndpoint := strings.TrimRight(cfg.Issuer.URL, "/") + "/oauth2/token"
	auth := clientauth.NewRegistry(store.Clients(), tokenEndpoint)

	issuer := grant.NewIssuer(grant.IssuerConfig{
		Tokens:     store.Tokens(),
		AccessTTL:  config.Duration(cfg.Tokens.AccessTTL),
		RefreshTTL: config.Duration(cfg.Tokens.RefreshTTL),
	})

	grants := grant.NewRegistry(
		grant.NewAuthorizationCode(grant.AuthorizationCodeDeps{
			Codes:  store.Codes(),
			Issuer: issuer,
		}),
		grant.NewRefreshToken(grant.RefreshTokenDeps{Tokens: store.Tokens(), Issuer: issuer}),
		grant.NewClientCredentials(grant.ClientCredentialsDeps{Issuer: issuer}),
		grant.NewDeviceCode(grant.DeviceCodeDeps{DeviceCodes: store.DeviceCodes(), Issuer: issuer}),
		grant.NewJWTBearer(grant.JWTBearerDeps{
			Keys:          keys,
			TokenEndpoint: tokenEndpoint,
			Issuer:        issuer,
		}),
	)

	sessions := &http.CookieSessionResolver{
		CookieName: cfg.Session.CookieName,
		Secret:     []byte(cfg.Session.HMACSecret),
	}

	c.Dispatcher = endpoint.New(endpoint.Deps{
		Store:      store,
		ClientAuth: auth,
		Grants:     grants,
		Sessions:   sessions,
		Config: endpoint.Config{
			IssuerURL:          cfg.Issuer.URL,
			LoginURL:           cfg.Issuer.LoginURL,
			ConsentURL:         cfg.Issuer.ConsentURL,
			VerificationURI:    cfg.Issuer.VerificationURI,
			CodeTTL:            config.Duration(cfg.Tokens.CodeTTL),
			DeviceCodeTTL:      config.Duration(cfg.Tokens.DeviceCodeTTL),
			DevicePollInterval: config.Duration(cfg.Tokens.DevicePollInterval),
		},
	})

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return nil, err
		}
	}

	c.Handler = http.NewRouter(http.RouterDeps{
		OAuth:           oauthctrl.NewController(c.Dispatcher),
		RateLimiter:     buildRateLimiter(cfg, store),
		MetricsRegistry: reg,
		MetricsPath:     cfg.Metrics.Path,
	})
	return c, nil
}

// buildRateLimiter comparte la conexión Redis del storage cuando existe;
// con cualquier otro driver la ventana es por proceso.
func buildRateLimiter(cfg *config.Config, store repository.Store) rate.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	max := cfg.RateLimit.Max
	window := config.Duration(cfg.RateLimit.Window)
	if rs, ok := store.(*storageredis.Store); ok {
		return rate.NewRedisLimiter(rs.Client(), "gw:rl", max, window)
	}
	return rate.NewMemoryLimiter(max, window)
}

func buildStore(ctx context.Context, cfg *config.Config, c *Container) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil

	case "redis":
		s, err := storageredis.New(ctx, storageredis.Config{
			Host:     cfg.Storage.Redis.Host,
			Port:     cfg.Storage.Redis.Port,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = s.Close() })
		return s, nil

	case "postgres":
		s, err := pg.New(ctx, cfg.Storage.Postgres.DSN, pg.Config{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: config.Duration(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		if cfg.Storage.Postgres.Migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
}

func buildKeyResolver(issuers []config.TrustedIssuer) (signing.StaticResolver, error) {
	r := signing.StaticResolver{}
	for _, ti := range issuers {
		switch {
		case ti.HMACSecret != "":
			r[ti.Issuer] = &signing.Key{ID: ti.Issuer, Secret: []byte(ti.HMACSecret)}
		case ti.PublicKeyPEM != "":
			pub, err := signing.ParsePublicKeyPEM(ti.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("app: trusted issuer %q: %w", ti.Issuer, err)
			}
			r[ti.Issuer] = &signing.Key{ID: ti.Issuer, Public: pub}
		default:
			return nil, fmt.Errorf("app: trusted issuer %q has no key material", ti.Issuer)
		}
	}
	return r, nil
}
