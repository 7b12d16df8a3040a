package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	oauthctrl "github.com/grantwire/grantwire/internal/http/controllers/oauth"
	mw "github.com/grantwire/grantwire/internal/http/middlewares"
	"github.com/grantwire/grantwire/internal/rate"
)

// RouterDeps contiene las dependencias del router.
type RouterDeps struct {
	OAuth *oauthctrl.Controller

	// RateLimiter frena los endpoints del protocolo cuando no es nil.
	RateLimiter rate.Limiter

	// MetricsRegistry habilita GET <MetricsPath> cuando no es nil.
	MetricsRegistry *prometheus.Registry
	MetricsPath     string
}

// NewRouter arma el router chi con la cadena de middlewares estándar.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithLogging(),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsRegistry != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, promhttp.HandlerFor(
			deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/oauth2", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(mw.WithRateLimit(deps.RateLimiter))
		}
		r.Get("/authorize", deps.OAuth.Authorize)
		r.Post("/token", deps.OAuth.Token)
		r.Post("/introspect", deps.OAuth.Introspect)
		r.Post("/revoke", deps.OAuth.Revoke)
		r.Post("/device_authorization", deps.OAuth.DeviceAuthorization)
	})

	return r
}
