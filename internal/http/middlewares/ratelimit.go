package middlewares

import (
	"net"
	"net/http"
	"strconv"

	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/rate"
)

// rateKey identifica al caller: client_id del form si vino, sino la IP
// remota. El form ya fue parseado o se parsea acá sin consumir el body
// (token y revoke son application/x-www-form-urlencoded).
func rateKey(r *http.Request) string {
	_ = r.ParseForm()
	if id := r.PostForm.Get("client_id"); id != "" {
		return "client:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// WithRateLimit frena requests por encima de la ventana del limiter con
// un 429. Un error del limiter deja pasar la request: el rate limiting
// nunca debe tirar el endpoint.
func WithRateLimit(l rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), rateKey(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"temporarily_unavailable","error_description":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
