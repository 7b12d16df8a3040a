package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Protocol-level Prometheus metrics. Defined in a standalone package to
// avoid import cycles between the endpoint dispatcher and HTTP packages.

var (
	GrantsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_grants_issued_total",
		Help: "Token responses emitidos, por grant_type",
	}, []string{"grant_type"})

	ProtocolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_protocol_errors_total",
		Help: "Errores OAuth2 emitidos, por endpoint y código",
	}, []string{"endpoint", "code"})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_tokens_revoked_total",
		Help: "Tokens revocados vía el endpoint de revocación",
	})

	IntrospectionLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_introspection_lookups_total",
		Help: "Introspecciones, por resultado (active/inactive)",
	}, []string{"result"})
)

// Register registers the protocol metrics on the given registry (or
// default if nil). Re-registration is tolerated.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{GrantsIssued, ProtocolErrors, TokensRevoked, IntrospectionLookups} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
