package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
)

// fakeProvider scripts each step of the pipeline so the orchestration can be
// observed without a server.
type fakeProvider struct {
	kind schemas.ProviderKind

	connResult    schemas.ValidationResult
	resolveResult schemas.ValidationResult
	report        *schemas.ReportData
	fetchErr      error

	connCalls    int
	resolveCalls int
	fetchCalls   int
}

func (f *fakeProvider) Kind() schemas.ProviderKind { return f.kind }

func (f *fakeProvider) ValidateConnection(ctx context.Context) schemas.ValidationResult {
	f.connCalls++
	return f.connResult
}

func (f *fakeProvider) ValidateApplicationAndVersion(ctx context.Context, appName, appVersion string) schemas.ValidationResult {
	f.resolveCalls++
	return f.resolveResult
}

func (f *fakeProvider) FetchReportData(ctx context.Context, appName, appVersion string, maxIssues int) (*schemas.ReportData, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.report, nil
}

func (f *fakeProvider) ProjectURL(applicationID, versionID string) string { return "" }
func (f *fakeProvider) IssueURL(applicationID, versionID, issueID string) string {
	return ""
}

func newTestAssembler(t *testing.T, p *fakeProvider) *Assembler {
	t.Helper()
	req := network.NewRequester(network.NewDefaultClientConfig(), zaptest.NewLogger(t))
	a := NewAssembler(req, zaptest.NewLogger(t))
	a.newProvider = func(*config.ProviderConfig, *network.Requester, *zap.Logger) (provider.Provider, error) {
		return p, nil
	}
	return a
}

func validConfig() *config.ProviderConfig {
	return &config.ProviderConfig{
		Kind:       schemas.ProviderSSC,
		BaseURL:    "https://ssc.example.com",
		AppName:    "MyApp",
		AppVersion: "1.0",
		CIToken:    "tok",
		MaxIssues:  100,
	}
}

func TestAssembleHappyPath(t *testing.T) {
	p := &fakeProvider{
		kind:          schemas.ProviderSSC,
		connResult:    schemas.ValidationResult{Success: true, Provider: schemas.ProviderSSC},
		resolveResult: schemas.ValidationResult{Success: true, ApplicationID: "42", VersionID: "7", Provider: schemas.ProviderSSC},
		report: &schemas.ReportData{
			Issues:           []schemas.SecurityIssue{{ID: "1"}},
			AppName:          "MyApp",
			AppVersion:       "1.0",
			ScanDate:         time.Now().UTC(),
			TotalCount:       1,
			ProjectVersionID: "7",
			Provider:         schemas.ProviderSSC,
		},
	}
	a := newTestAssembler(t, p)
	cfg := validConfig()

	rd, err := a.Assemble(context.Background(), cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, p.connCalls)
	assert.Equal(t, 1, p.resolveCalls)
	assert.Equal(t, 1, p.fetchCalls)

	// The resolved id is placed back on the configuration for link building.
	assert.Equal(t, "7", cfg.ResolvedVersionID)

	id, parseErr := uuid.Parse(rd.ReportID)
	require.NoError(t, parseErr)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, rd.TotalCount)
}

func TestAssembleShortCircuitsOnConnectionFailure(t *testing.T) {
	p := &fakeProvider{
		kind:       schemas.ProviderSSC,
		connResult: schemas.ValidationResult{Success: false, Error: "token expired", Provider: schemas.ProviderSSC},
	}
	a := newTestAssembler(t, p)

	_, err := a.Assemble(context.Background(), validConfig(), Options{})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindNetwork))
	assert.Contains(t, err.Error(), "token expired")

	assert.Equal(t, 1, p.connCalls)
	assert.Zero(t, p.resolveCalls)
	assert.Zero(t, p.fetchCalls)
}

func TestAssembleShortCircuitsOnResolutionFailure(t *testing.T) {
	p := &fakeProvider{
		kind:          schemas.ProviderSSC,
		connResult:    schemas.ValidationResult{Success: true},
		resolveResult: schemas.ValidationResult{Success: false, Error: `application "MyApp" not found`},
	}
	a := newTestAssembler(t, p)

	_, err := a.Assemble(context.Background(), validConfig(), Options{})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindResolution))
	assert.Contains(t, err.Error(), `"MyApp" not found`)
	assert.Zero(t, p.fetchCalls)
}

func TestAssembleSkipValidationBypassesChecks(t *testing.T) {
	p := &fakeProvider{
		kind: schemas.ProviderSSC,
		// Validation would fail, but it must never run.
		connResult: schemas.ValidationResult{Success: false, Error: "unreachable"},
		report: &schemas.ReportData{
			Issues:           []schemas.SecurityIssue{},
			ProjectVersionID: "7",
			Provider:         schemas.ProviderSSC,
		},
	}
	a := newTestAssembler(t, p)
	cfg := validConfig()

	rd, err := a.Assemble(context.Background(), cfg, Options{SkipValidation: true})
	require.NoError(t, err)
	assert.Zero(t, p.connCalls)
	assert.Zero(t, p.resolveCalls)
	assert.Equal(t, 1, p.fetchCalls)
	assert.Empty(t, rd.Diagnostic)
	assert.Equal(t, "7", cfg.ResolvedVersionID)
}

func TestAssembleSkipValidationDegradesOnFetchFailure(t *testing.T) {
	p := &fakeProvider{
		kind:     schemas.ProviderSSC,
		fetchErr: provider.NewError(provider.KindNetwork, schemas.ProviderSSC, "fetching issues at offset 200 failed"),
	}
	a := newTestAssembler(t, p)
	cfg := validConfig()

	rd, err := a.Assemble(context.Background(), cfg, Options{SkipValidation: true})
	require.NoError(t, err)

	// The degraded report is empty but keeps the original failure text.
	assert.Empty(t, rd.Issues)
	assert.Zero(t, rd.TotalCount)
	assert.Contains(t, rd.Diagnostic, "offset 200")
	assert.Equal(t, "MyApp", rd.AppName)
	assert.Equal(t, "1.0", rd.AppVersion)
	assert.Equal(t, schemas.ProviderSSC, rd.Provider)
	assert.Equal(t, "https://ssc.example.com", rd.ProviderURL)
	assert.NotEmpty(t, rd.ReportID)
	assert.False(t, rd.ScanDate.IsZero())
}

func TestAssembleFetchFailurePropagatesWithValidation(t *testing.T) {
	p := &fakeProvider{
		kind:          schemas.ProviderSSC,
		connResult:    schemas.ValidationResult{Success: true},
		resolveResult: schemas.ValidationResult{Success: true, VersionID: "7"},
		fetchErr:      provider.NewError(provider.KindProtocol, schemas.ProviderSSC, "malformed issue record"),
	}
	a := newTestAssembler(t, p)

	_, err := a.Assemble(context.Background(), validConfig(), Options{})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindProtocol))
}

func TestAssembleIncompleteConfig(t *testing.T) {
	a := newTestAssembler(t, &fakeProvider{kind: schemas.ProviderSSC})
	cfg := &config.ProviderConfig{Kind: schemas.ProviderSSC}

	_, err := a.Assemble(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.True(t, provider.IsKind(err, provider.KindConfiguration))
	assert.Contains(t, err.Error(), "base URL is required")
	assert.Contains(t, err.Error(), "CI token")

	// Skip-validation mode still yields a usable placeholder.
	rd, err := a.Assemble(context.Background(), cfg, Options{SkipValidation: true})
	require.NoError(t, err)
	assert.Contains(t, rd.Diagnostic, "configuration incomplete")
}
