package endpoint

import (
	"context"
	"net/http"
	"strings"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/grant"
	"github.com/grantwire/grantwire/internal/metrics"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/observability/logger"
)

// Token runs the token endpoint: authenticate the client, dispatch to the
// grant registry, shape the wire body.
func (d *Dispatcher) Token(ctx context.Context, req *Request) *Response {
	log := logger.From(ctx).With(logger.Layer("endpoint"), logger.Op("token"))

	grantType := strings.TrimSpace(req.Form.Get("grant_type"))
	if grantType == "" {
		return errorResponse("token", oauth2.E(oauth2.ErrInvalidRequest, "grant_type is required"))
	}

	creds := clientauth.ParseCredentials(req.Header.Get("Authorization"), req.Form)
	client, method, err := d.clientAuth.Authenticate(ctx, creds)
	if err != nil {
		log.Debug("client authentication failed", logger.GrantType(grantType))
		return errorResponse("token", err)
	}
	log = log.With(logger.ClientID(client.ClientID), logger.GrantType(grantType))

	resp, err := d.grants.Handle(ctx, &grant.Request{
		GrantType:  grantType,
		Client:     client,
		AuthMethod: method,
		Params:     req.Form,
	})
	if err != nil {
		oe := oauth2.AsError(err)
		log.Debug("grant failed", logger.ErrorCode(oe.Code))
		return errorResponse("token", oe)
	}

	metrics.GrantsIssued.WithLabelValues(grantType).Inc()
	log.Info("token response issued", logger.AuthMethod(method))
	return jsonResponse(http.StatusOK, resp)
}
