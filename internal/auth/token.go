package auth

import (
	"context"
	"net/http"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
)

// TokenScheme is the Authorization scheme SSC expects for pre-issued CI
// tokens.
const TokenScheme = "FortifyToken"

// TokenStrategy holds a static pre-issued token. There is no exchange, no
// expiry and no network traffic.
type TokenStrategy struct {
	token string
}

// NewTokenStrategy wraps a pre-issued CI token.
func NewTokenStrategy(token string) *TokenStrategy {
	return &TokenStrategy{token: token}
}

// Authenticate only checks that token material is present.
func (s *TokenStrategy) Authenticate(ctx context.Context) error {
	if s.token == "" {
		return provider.NewError(provider.KindAuth, schemas.ProviderSSC, "CI token is empty")
	}
	return nil
}

// Headers returns the FortifyToken authorization header.
func (s *TokenStrategy) Headers() (http.Header, error) {
	if s.token == "" {
		return nil, provider.NewError(provider.KindAuth, schemas.ProviderSSC, "CI token is empty")
	}
	h := http.Header{}
	h.Set("Authorization", TokenScheme+" "+s.token)
	return h, nil
}

// IsValid reports whether token material is present. Static tokens do not
// expire from this tool's point of view.
func (s *TokenStrategy) IsValid() bool { return s.token != "" }

// Refresh is equivalent to Authenticate for a static token.
func (s *TokenStrategy) Refresh(ctx context.Context) error { return s.Authenticate(ctx) }
