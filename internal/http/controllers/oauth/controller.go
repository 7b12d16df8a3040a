// Package oauth adapta net/http a las operaciones del dispatcher de
// protocolo. Los controllers no contienen lógica OAuth2; solo parsean el
// request y escriben la respuesta normalizada.
package oauth

import (
	"net/http"

	"github.com/grantwire/grantwire/internal/endpoint"
)

type Controller struct {
	dispatcher *endpoint.Dispatcher
}

func NewController(d *endpoint.Dispatcher) *Controller {
	return &Controller{dispatcher: d}
}

type operation func(r *http.Request) *endpoint.Response

func (c *Controller) serve(w http.ResponseWriter, r *http.Request, op operation) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}
	resp := op(r)
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func (c *Controller) request(r *http.Request) *endpoint.Request {
	return &endpoint.Request{
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Header: r.Header,
	}
}

// Authorize maneja GET /oauth2/authorize.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, func(r *http.Request) *endpoint.Response {
		return c.dispatcher.Authorize(r.Context(), c.request(r))
	})
}

// Token maneja POST /oauth2/token.
func (c *Controller) Token(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, func(r *http.Request) *endpoint.Response {
		return c.dispatcher.Token(r.Context(), c.request(r))
	})
}

// Introspect maneja POST /oauth2/introspect.
func (c *Controller) Introspect(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, func(r *http.Request) *endpoint.Response {
		return c.dispatcher.Introspect(r.Context(), c.request(r))
	})
}

// Revoke maneja POST /oauth2/revoke.
func (c *Controller) Revoke(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, func(r *http.Request) *endpoint.Response {
		return c.dispatcher.Revoke(r.Context(), c.request(r))
	})
}

// DeviceAuthorization maneja POST /oauth2/device_authorization.
func (c *Controller) DeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	c.serve(w, r, func(r *http.Request) *endpoint.Response {
		return c.dispatcher.DeviceAuthorization(r.Context(), c.request(r))
	})
}
