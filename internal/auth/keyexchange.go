package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// expiryBuffer keeps a safety margin so a token is never used when it could
// expire mid-request.
const expiryBuffer = 5 * time.Minute

// tokenResponse is the OAuth2 client-credentials response shape. The error
// fields appear in non-2xx bodies.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// KeyExchangeStrategy exchanges an API key/secret pair for a bearer token via
// the OAuth2 client-credentials flow FoD exposes at /oauth/token.
type KeyExchangeStrategy struct {
	baseURL   string
	apiKey    string
	apiSecret string
	requester *network.Requester
	logger    *zap.Logger

	accessToken string
	expiry      time.Time

	// now is injectable so expiry-buffer behavior is testable.
	now func() time.Time
}

// NewKeyExchangeStrategy builds a client-credentials strategy against the
// given FoD API base URL.
func NewKeyExchangeStrategy(baseURL, apiKey, apiSecret string, requester *network.Requester, logger *zap.Logger) *KeyExchangeStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyExchangeStrategy{
		baseURL:   provider.NormalizeBaseURL(baseURL),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		requester: requester,
		logger:    logger.Named("auth.keyexchange"),
		now:       time.Now,
	}
}

// Authenticate performs the token exchange and stores the access token plus
// its absolute expiry. A malformed success response is a protocol violation
// and is never retried here.
func (s *KeyExchangeStrategy) Authenticate(ctx context.Context) error {
	if s.apiKey == "" || s.apiSecret == "" {
		return provider.NewError(provider.KindAuth, schemas.ProviderFoD, "API key and secret are required for the token exchange")
	}

	form := url.Values{}
	form.Set("scope", "api-tenant")
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.apiKey)
	form.Set("client_secret", s.apiSecret)

	var resp tokenResponse
	err := s.requester.PostForm(ctx, s.baseURL+"/oauth/token", form, &resp)
	if err != nil {
		var se *network.StatusError
		if errors.As(err, &se) {
			return provider.NewError(provider.KindAuth, schemas.ProviderFoD,
				"token exchange rejected: %s", tokenErrorDetail(se))
		}
		var de *network.DecodeError
		if errors.As(err, &de) {
			return provider.WrapError(provider.KindProtocol, schemas.ProviderFoD, err, "token endpoint returned an unparseable body")
		}
		return provider.WrapError(provider.KindNetwork, schemas.ProviderFoD, err, "token exchange request failed")
	}

	if resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		return provider.NewError(provider.KindProtocol, schemas.ProviderFoD,
			"token endpoint returned success without access_token/expires_in")
	}

	s.accessToken = resp.AccessToken
	s.expiry = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	s.logTokenClaims()

	s.logger.Debug("Token exchange complete",
		zap.Time("expiry", s.expiry),
		zap.String("scope", resp.Scope),
	)
	return nil
}

// Headers returns the bearer authorization header.
func (s *KeyExchangeStrategy) Headers() (http.Header, error) {
	if s.accessToken == "" {
		return nil, provider.NewError(provider.KindAuth, schemas.ProviderFoD, "no access token; Authenticate must succeed first")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.accessToken)
	return h, nil
}

// IsValid returns true only while now is earlier than expiry minus the
// safety buffer.
func (s *KeyExchangeStrategy) IsValid() bool {
	if s.accessToken == "" {
		return false
	}
	return s.now().Before(s.expiry.Add(-expiryBuffer))
}

// Refresh re-runs the exchange; FoD has no separate refresh grant.
func (s *KeyExchangeStrategy) Refresh(ctx context.Context) error {
	return s.Authenticate(ctx)
}

// logTokenClaims surfaces tenant/scope claims from the access token at debug
// level. The token is parsed unverified and only for logging; expiry always
// comes from expires_in.
func (s *KeyExchangeStrategy) logTokenClaims() {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.accessToken, claims); err != nil {
		return
	}
	fields := make([]zap.Field, 0, 2)
	for _, k := range []string{"tid", "scope"} {
		if v, ok := claims[k].(string); ok {
			fields = append(fields, zap.String(k, v))
		}
	}
	if len(fields) > 0 {
		s.logger.Debug("Access token claims", fields...)
	}
}

// tokenErrorDetail prefers the OAuth error_description, then the error code,
// then the raw status text.
func tokenErrorDetail(se *network.StatusError) string {
	var body tokenResponse
	if err := json.Unmarshal([]byte(se.Body), &body); err == nil {
		if body.ErrorDescription != "" {
			return body.ErrorDescription
		}
		if body.ErrorCode != "" {
			return body.ErrorCode
		}
	}
	return se.Status
}
