package oauth2

// TokenResponse is the token endpoint success body (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse is the introspection endpoint body (RFC 7662 §2.2).
// When Active is false every other field is omitted: external callers must
// not be able to distinguish absent from revoked or expired.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Nbf       int64  `json:"nbf,omitempty"`
}

// DeviceAuthorizationResponse is the device authorization body (RFC 8628 §3.2).
type DeviceAuthorizationResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// Grant type wire strings understood by the grant registry.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Client authentication method wire strings (OIDC Core §9).
const (
	AuthMethodNone             = "none"
	AuthMethodSecretBasic      = "client_secret_basic"
	AuthMethodSecretPost       = "client_secret_post"
	AuthMethodSecretJWT        = "client_secret_jwt"
	AuthMethodPrivateKeyJWT    = "private_key_jwt"
	ClientAssertionTypeJWTBear = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// Prompt values for the authorization endpoint (OIDC Core §3.1.2.1).
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)
