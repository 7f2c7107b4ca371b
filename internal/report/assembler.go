// Package report orchestrates a fetch end to end: provider construction,
// pre-flight validation, retrieval, and packaging into the ReportData
// artifact.
package report

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
	"github.com/xkilldash9x/vulnbridge/internal/provider/factory"
)

// Options tunes one assembly run.
type Options struct {
	// SkipValidation bypasses the pre-flight checks and attempts the fetch
	// directly. In this mode any failure is downgraded to a degraded report
	// so a missing live report never blocks the pipeline.
	SkipValidation bool
}

// Assembler drives factory → validate → resolve → fetch, short-circuiting at
// the first unsuccessful step.
type Assembler struct {
	req    *network.Requester
	logger *zap.Logger

	// newProvider is swappable in tests.
	newProvider func(*config.ProviderConfig, *network.Requester, *zap.Logger) (provider.Provider, error)
}

// NewAssembler builds an assembler on a shared requester.
func NewAssembler(req *network.Requester, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		req:         req,
		logger:      logger.Named("assembler"),
		newProvider: factory.New,
	}
}

// Assemble produces the ReportData artifact for one configuration. It is the
// only place a failure may be downgraded: in skip-validation mode the
// original error text is preserved on the degraded report's Diagnostic field,
// never discarded.
func (a *Assembler) Assemble(ctx context.Context, cfg *config.ProviderConfig, opts Options) (*schemas.ReportData, error) {
	if cfg.Kind == "" {
		cfg.Kind = factory.DetectKind(cfg)
	}

	if violations := factory.ValidateConfig(cfg); len(violations) > 0 {
		err := provider.NewError(provider.KindConfiguration, cfg.Kind,
			"configuration incomplete: %s", strings.Join(violations, "; "))
		return a.finish(cfg, nil, err, opts)
	}

	p, err := a.newProvider(cfg, a.req, a.logger)
	if err != nil {
		return a.finish(cfg, nil, err, opts)
	}

	if !opts.SkipValidation {
		if vr := p.ValidateConnection(ctx); !vr.Success {
			err := provider.NewError(provider.KindNetwork, cfg.Kind, "connection validation failed: %s", vr.Error)
			return a.finish(cfg, nil, err, opts)
		}
		vr := p.ValidateApplicationAndVersion(ctx, cfg.AppName, cfg.AppVersion)
		if !vr.Success {
			err := provider.NewError(provider.KindResolution, cfg.Kind, "name resolution failed: %s", vr.Error)
			return a.finish(cfg, nil, err, opts)
		}
		// Keep the resolved id on the configuration for downstream link
		// generation.
		cfg.ResolvedVersionID = vr.VersionID
	}

	rd, err := p.FetchReportData(ctx, cfg.AppName, cfg.AppVersion, cfg.MaxIssues)
	return a.finish(cfg, rd, err, opts)
}

// finish stamps provenance on a successful report, or applies the
// skip-validation downgrade policy to a failed one.
func (a *Assembler) finish(cfg *config.ProviderConfig, rd *schemas.ReportData, err error, opts Options) (*schemas.ReportData, error) {
	if err == nil {
		if cfg.ResolvedVersionID == "" {
			cfg.ResolvedVersionID = rd.ProjectVersionID
		}
		rd.ReportID = uuid.NewString()
		return rd, nil
	}

	if !opts.SkipValidation {
		return nil, err
	}

	a.logger.Warn("Fetch failed, producing a degraded report", zap.Error(err))
	return a.degraded(cfg, err), nil
}

// degraded builds an empty placeholder report that carries the original
// failure text for display.
func (a *Assembler) degraded(cfg *config.ProviderConfig, cause error) *schemas.ReportData {
	return &schemas.ReportData{
		ReportID:    uuid.NewString(),
		Issues:      []schemas.SecurityIssue{},
		AppName:     cfg.AppName,
		AppVersion:  cfg.AppVersion,
		ScanDate:    time.Now().UTC(),
		TotalCount:  0,
		Provider:    cfg.Kind,
		ProviderURL: provider.NormalizeBaseURL(cfg.BaseURL),
		Diagnostic:  cause.Error(),
	}
}
