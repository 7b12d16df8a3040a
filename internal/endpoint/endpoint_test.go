package endpoint_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/grantwire/grantwire/internal/clientauth"
	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/endpoint"
	"github.com/grantwire/grantwire/internal/grant"
	"github.com/grantwire/grantwire/internal/interaction"
	"github.com/grantwire/grantwire/internal/oauth2"
	"github.com/grantwire/grantwire/internal/security/secrets"
	tokens "github.com/grantwire/grantwire/internal/security/token"
	"github.com/grantwire/grantwire/internal/storage/memory"
)

// staticSessions resolves every request to the same session.
type staticSessions struct {
	session *interaction.Session
}

func (s *staticSessions) Resolve(context.Context, *endpoint.Request) (*interaction.Session, error) {
	return s.session, nil
}

type fixture struct {
	store    *memory.Store
	dispatch *endpoint.Dispatcher
	sessions *staticSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	hash, err := secrets.Hash(secrets.Default, "top-secret")
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	clients := []*repository.Client{
		{
			ClientID:     "web-app",
			Type:         repository.ClientTypeConfidential,
			AuthMethods:  []string{oauth2.AuthMethodSecretBasic, oauth2.AuthMethodSecretPost},
			RedirectURIs: []string{"https://app.example/cb"},
			GrantTypes: []string{
				oauth2.GrantAuthorizationCode,
				oauth2.GrantRefreshToken,
				oauth2.GrantDeviceCode,
			},
			Scopes:     []string{"openid", "profile"},
			SecretHash: hash,
		},
		{
			ClientID:    "other-app",
			Type:        repository.ClientTypeConfidential,
			AuthMethods: []string{oauth2.AuthMethodSecretBasic},
			GrantTypes:  []string{oauth2.GrantClientCredentials},
			Scopes:      []string{"openid"},
			SecretHash:  hash,
		},
	}
	for _, c := range clients {
		if err := store.Clients().Save(ctx, c); err != nil {
			t.Fatalf("seed client: %v", err)
		}
	}

	tokenEndpoint := "https://auth.example/oauth2/token"
	clientAuth := clientauth.NewRegistry(store.Clients(), tokenEndpoint)
	issuer := grant.NewIssuer(grant.IssuerConfig{Tokens: store.Tokens()})
	grants := grant.NewRegistry(
		grant.NewAuthorizationCode(grant.AuthorizationCodeDeps{Codes: store.Codes(), Issuer: issuer}),
		grant.NewRefreshToken(grant.RefreshTokenDeps{Tokens: store.Tokens(), Issuer: issuer}),
		grant.NewClientCredentials(grant.ClientCredentialsDeps{Issuer: issuer}),
	)
	sessions := &staticSessions{}

	dispatch := endpoint.New(endpoint.Deps{
		Store:      store,
		ClientAuth: clientAuth,
		Grants:     grants,
		Sessions:   sessions,
		Config: endpoint.Config{
			IssuerURL:       "https://auth.example",
			LoginURL:        "https://auth.example/login",
			ConsentURL:      "https://auth.example/consent",
			VerificationURI: "https://auth.example/device",
		},
	})
	return &fixture{store: store, dispatch: dispatch, sessions: sessions}
}

func (f *fixture) login(t *testing.T, subject string, scopes []string) {
	t.Helper()
	f.sessions.session = &interaction.Session{Subject: subject}
	if _, err := f.store.Consents().Upsert(context.Background(), subject, "web-app", scopes); err != nil {
		t.Fatalf("seed consent: %v", err)
	}
}

func authHeader(id, secret string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(id+":"+secret)))
	return h
}

func formRequest(h http.Header, form url.Values) *endpoint.Request {
	if h == nil {
		h = http.Header{}
	}
	return &endpoint.Request{Query: url.Values{}, Form: form, Header: h}
}

func location(t *testing.T, resp *endpoint.Response) *url.URL {
	t.Helper()
	if resp.Status != http.StatusSeeOther {
		t.Fatalf("status = %d body=%s, want 303", resp.Status, resp.Body)
	}
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	return u
}

func authorizeQuery() url.Values {
	return url.Values{
		"response_type": {"code"},
		"client_id":     {"web-app"},
		"redirect_uri":  {"https://app.example/cb"},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
	}
}

func TestAuthorizeIssuesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "u1", []string{"openid", "profile"})

	resp := f.dispatch.Authorize(ctx, &endpoint.Request{Query: authorizeQuery()})
	loc := location(t, resp)

	if got := loc.Scheme + "://" + loc.Host + loc.Path; got != "https://app.example/cb" {
		t.Fatalf("redirect target = %s", got)
	}
	if loc.Query().Get("state") != "xyz" {
		t.Fatalf("state not echoed: %s", loc)
	}
	rawCode := loc.Query().Get("code")
	if rawCode == "" {
		t.Fatalf("no code in redirect: %s", loc)
	}

	// The code is persisted by hash and bound to the request.
	code, err := f.store.Codes().Consume(ctx, tokens.SHA256Base64URL(rawCode))
	if err != nil {
		t.Fatalf("consume issued code: %v", err)
	}
	if code.Subject != "u1" || code.ClientID != "web-app" {
		t.Fatalf("code binding: %+v", code)
	}
}

func TestAuthorizeDirectErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Before redirect_uri validation, errors never redirect.
	cases := []struct {
		name string
		mut  func(url.Values)
	}{
		{"unknown client", func(q url.Values) { q.Set("client_id", "ghost") }},
		{"unregistered redirect", func(q url.Values) { q.Set("redirect_uri", "https://evil.example/cb") }},
		{"missing client_id", func(q url.Values) { q.Del("client_id") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := authorizeQuery()
			tc.mut(q)
			resp := f.dispatch.Authorize(ctx, &endpoint.Request{Query: q})
			if resp.Status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.Status)
			}
			if resp.Header.Get("Location") != "" {
				t.Fatalf("unvalidated error must not redirect")
			}
		})
	}
}

func TestAuthorizeRedirectedErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "u1", []string{"openid", "profile"})

	cases := []struct {
		name string
		mut  func(url.Values)
		code string
	}{
		{"bad response_type", func(q url.Values) { q.Set("response_type", "token") }, oauth2.ErrUnsupportedResponseType},
		{"scope not allowed", func(q url.Values) { q.Set("scope", "admin") }, oauth2.ErrInvalidScope},
		{"bad pkce method", func(q url.Values) {
			q.Set("code_challenge", "abc")
			q.Set("code_challenge_method", "S512")
		}, oauth2.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := authorizeQuery()
			tc.mut(q)
			loc := location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: q}))
			if got := loc.Query().Get("error"); got != tc.code {
				t.Fatalf("error = %q, want %q (%s)", got, tc.code, loc)
			}
			if loc.Query().Get("state") != "xyz" {
				t.Fatalf("state not echoed on error redirect")
			}
		})
	}
}

func TestAuthorizeInteraction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// No session: the user agent goes to the login page with the original
	// request preserved.
	loc := location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: authorizeQuery()}))
	if !strings.HasPrefix(loc.String(), "https://auth.example/login") {
		t.Fatalf("expected login redirect, got %s", loc)
	}
	returnTo := loc.Query().Get("return_to")
	if !strings.Contains(returnTo, "/oauth2/authorize") {
		t.Fatalf("return_to does not preserve the request: %q", returnTo)
	}

	// Session but no consent: consent page.
	f.sessions.session = &interaction.Session{Subject: "u1"}
	loc = location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: authorizeQuery()}))
	if !strings.HasPrefix(loc.String(), "https://auth.example/consent") {
		t.Fatalf("expected consent redirect, got %s", loc)
	}

	// prompt=none with no session short-circuits to the client.
	f.sessions.session = nil
	q := authorizeQuery()
	q.Set("prompt", "none")
	loc = location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: q}))
	if loc.Host != "app.example" || loc.Query().Get("error") != oauth2.ErrLoginRequired {
		t.Fatalf("prompt=none: %s", loc)
	}
}

func TestTokenEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, "u1", []string{"openid", "profile"})

	loc := location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: authorizeQuery()}))
	rawCode := loc.Query().Get("code")

	resp := f.dispatch.Token(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"grant_type":   {oauth2.GrantAuthorizationCode},
		"code":         {rawCode},
		"redirect_uri": {"https://app.example/cb"},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Status, resp.Body)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q, want no-store", cc)
	}
	var tr oauth2.TokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.AccessToken == "" || tr.TokenType != "Bearer" || tr.RefreshToken == "" {
		t.Fatalf("token response: %+v", tr)
	}
}

func TestTokenEndpointAuthFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp := f.dispatch.Token(ctx, formRequest(authHeader("web-app", "wrong"), url.Values{
		"grant_type": {oauth2.GrantClientCredentials},
	}))
	if resp.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.Status)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatalf("401 without WWW-Authenticate challenge")
	}
	var oe oauth2.Error
	if err := json.Unmarshal(resp.Body, &oe); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if oe.Code != oauth2.ErrInvalidClient {
		t.Fatalf("error = %q, want invalid_client", oe.Code)
	}
}

func issueTokens(t *testing.T, f *fixture) *oauth2.TokenResponse {
	t.Helper()
	ctx := context.Background()
	f.login(t, "u1", []string{"openid", "profile"})
	loc := location(t, f.dispatch.Authorize(ctx, &endpoint.Request{Query: authorizeQuery()}))
	resp := f.dispatch.Token(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"grant_type":   {oauth2.GrantAuthorizationCode},
		"code":         {loc.Query().Get("code")},
		"redirect_uri": {"https://app.example/cb"},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("issue tokens: %d %s", resp.Status, resp.Body)
	}
	var tr oauth2.TokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &tr
}

func TestIntrospect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := issueTokens(t, f)

	resp := f.dispatch.Introspect(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"token": {tr.AccessToken},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	var ir oauth2.IntrospectionResponse
	if err := json.Unmarshal(resp.Body, &ir); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ir.Active || ir.Sub != "u1" || ir.ClientID != "web-app" {
		t.Fatalf("introspection: %+v", ir)
	}
	if ir.TokenType != repository.TokenKindAccess {
		t.Fatalf("token_type = %q", ir.TokenType)
	}

	// Unknown tokens report only {active:false}.
	resp = f.dispatch.Introspect(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"token": {"no-such-token"},
	}))
	var inactive map[string]any
	if err := json.Unmarshal(resp.Body, &inactive); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != http.StatusOK || inactive["active"] != false {
		t.Fatalf("inactive introspection: %d %s", resp.Status, resp.Body)
	}
	for k := range inactive {
		if k != "active" {
			t.Fatalf("inactive response leaks field %q", k)
		}
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := issueTokens(t, f)

	// Revoking the refresh token kills the chain; the endpoint is 200.
	resp := f.dispatch.Revoke(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"token": {tr.RefreshToken},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	hash := tokens.SHA256Base64URL(tr.RefreshToken)
	if _, err := f.store.Tokens().GetByHash(ctx, repository.TokenKindRefresh, hash); !repository.IsNotFound(err) {
		t.Fatalf("refresh token still active after revocation: %v", err)
	}

	// Second revocation and unknown tokens are still 200.
	for _, token := range []string{tr.RefreshToken, "never-issued"} {
		resp := f.dispatch.Revoke(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
			"token": {token},
		}))
		if resp.Status != http.StatusOK {
			t.Fatalf("revoke %q: status = %d, want 200", token, resp.Status)
		}
	}
}

func TestRevokeForeignToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tr := issueTokens(t, f)

	// other-app revoking web-app's token: 200, but nothing revoked.
	resp := f.dispatch.Revoke(ctx, formRequest(authHeader("other-app", "top-secret"), url.Values{
		"token": {tr.AccessToken},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	hash := tokens.SHA256Base64URL(tr.AccessToken)
	if _, err := f.store.Tokens().GetByHash(ctx, repository.TokenKindAccess, hash); err != nil {
		t.Fatalf("foreign revocation must not touch the token: %v", err)
	}
}

func TestDeviceAuthorizationEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	resp := f.dispatch.DeviceAuthorization(ctx, formRequest(authHeader("web-app", "top-secret"), url.Values{
		"scope": {"openid"},
	}))
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Status, resp.Body)
	}
	var dr oauth2.DeviceAuthorizationResponse
	if err := json.Unmarshal(resp.Body, &dr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dr.DeviceCode == "" || dr.VerificationURI != "https://auth.example/device" {
		t.Fatalf("device response: %+v", dr)
	}
	if len(dr.UserCode) != 9 || dr.UserCode[4] != '-' {
		t.Fatalf("user code %q not in XXXX-XXXX shape", dr.UserCode)
	}
	if dr.Interval <= 0 || dr.ExpiresIn <= 0 {
		t.Fatalf("device response intervals: %+v", dr)
	}

	// The stored record is pending and findable by user code.
	dc, err := f.store.DeviceCodes().GetByUserCode(ctx, dr.UserCode)
	if err != nil {
		t.Fatalf("lookup by user code: %v", err)
	}
	if dc.Status != repository.DeviceStatusPending || dc.ClientID != "web-app" {
		t.Fatalf("stored device code: %+v", dc)
	}
	if got := tokens.SHA256Base64URL(dr.DeviceCode); got != dc.DeviceCodeHash {
		t.Fatalf("device code not stored by hash")
	}

	// A client without the device grant is refused.
	resp = f.dispatch.DeviceAuthorization(ctx, formRequest(authHeader("other-app", "top-secret"), nil))
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("missing grant: status = %d, want 400", resp.Status)
	}
}
