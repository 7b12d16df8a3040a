package endpoint

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/grantwire/grantwire/internal/metrics"
	"github.com/grantwire/grantwire/internal/oauth2"
)

func jsonResponse(status int, body any) *Response {
	b, err := json.Marshal(body)
	if err != nil {
		// Marshal of our own response types cannot realistically fail;
		// degrade to a bare server_error if it somehow does.
		b = []byte(`{"error":"server_error"}`)
		status = http.StatusInternalServerError
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	return &Response{Status: status, Header: h, Body: b}
}

// errorResponse renders a taxonomy error as a direct JSON response.
func errorResponse(endpoint string, err error) *Response {
	oe := oauth2.AsError(err)
	metrics.ProtocolErrors.WithLabelValues(endpoint, oe.Code).Inc()
	resp := jsonResponse(oe.Status(), oe)
	if oe.Code == oauth2.ErrInvalidClient {
		// RFC 6749 §5.2: 401 responses carry a challenge.
		resp.Header.Set("WWW-Authenticate", `Basic realm="token"`)
	}
	return resp
}

// redirectResponse builds a 303 to base with the given query parameters
// appended. Only called after the redirect URI was validated against the
// client registration.
func redirectResponse(base string, params map[string]string) *Response {
	u, err := url.Parse(base)
	if err != nil {
		return errorResponse("authorize", oauth2.ErrInternal)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Location", u.String())
	h.Set("Cache-Control", "no-store")
	return &Response{Status: http.StatusSeeOther, Header: h}
}

// errorRedirect sends a taxonomy error to the client's validated
// redirect URI, echoing state.
func errorRedirect(redirectURI, state string, err error) *Response {
	oe := oauth2.AsError(err)
	metrics.ProtocolErrors.WithLabelValues("authorize", oe.Code).Inc()
	return redirectResponse(redirectURI, map[string]string{
		"error":             oe.Code,
		"error_description": oe.Description,
		"state":             state,
	})
}
