package middlewares

import (
	"net/http"

	"github.com/grantwire/grantwire/internal/observability/logger"
)

// WithRecover captura pánicos del handler y responde 500 con un cuerpo
// genérico de server_error.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.L().Error("panic recovered",
						logger.RequestID(GetRequestID(r.Context())),
						logger.Path(r.URL.Path),
						logger.Any("recover", rec))
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"server_error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
