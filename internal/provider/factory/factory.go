// Package factory selects and constructs the provider variant named by the
// configuration, and validates provider completeness before any network call.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
	"github.com/xkilldash9x/vulnbridge/internal/provider/fod"
	"github.com/xkilldash9x/vulnbridge/internal/provider/ssc"
)

// New builds the provider for the configured kind. It fails fast, before any
// network traffic, when the credential fields that kind requires are absent.
func New(cfg *config.ProviderConfig, req *network.Requester, logger *zap.Logger) (provider.Provider, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = DetectKind(cfg)
	}

	switch kind {
	case schemas.ProviderSSC:
		if cfg.CIToken == "" {
			return nil, provider.NewError(provider.KindConfiguration, schemas.ProviderSSC, "SSC requires a CI token")
		}
		return ssc.New(cfg.BaseURL, cfg.CIToken, req, logger), nil
	case schemas.ProviderFoD:
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, provider.NewError(provider.KindConfiguration, schemas.ProviderFoD, "FoD requires both an API key and an API secret")
		}
		return fod.New(cfg.BaseURL, cfg.APIKey, cfg.APISecret, req, logger), nil
	default:
		return nil, provider.NewError(provider.KindConfiguration, kind, "unknown provider kind %q; supported: [%s, %s]", kind, schemas.ProviderSSC, schemas.ProviderFoD)
	}
}

// ValidateConfig returns every violation found, not just the first, so the
// operator gets the complete list in one pass.
func ValidateConfig(cfg *config.ProviderConfig) []string {
	var errs []string

	if cfg.BaseURL == "" {
		errs = append(errs, "base URL is required")
	}
	if cfg.AppName == "" {
		errs = append(errs, "application name is required")
	}
	if cfg.AppVersion == "" {
		errs = append(errs, "application version is required")
	}

	kind := cfg.Kind
	if kind == "" {
		kind = DetectKind(cfg)
	}
	switch kind {
	case schemas.ProviderSSC:
		if cfg.CIToken == "" {
			errs = append(errs, "SSC requires a CI token")
		}
	case schemas.ProviderFoD:
		if cfg.APIKey == "" {
			errs = append(errs, "FoD requires an API key")
		}
		if cfg.APISecret == "" {
			errs = append(errs, "FoD requires an API secret")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown provider kind %q", kind))
	}

	return errs
}

// DetectKind infers the provider kind from which credential fields are
// populated. Configurations that predate the multi-provider design carry only
// a CI token and no kind, so SSC is the backward-compatible default.
func DetectKind(cfg *config.ProviderConfig) schemas.ProviderKind {
	if cfg.CIToken != "" {
		return schemas.ProviderSSC
	}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		return schemas.ProviderFoD
	}
	return schemas.ProviderSSC
}
