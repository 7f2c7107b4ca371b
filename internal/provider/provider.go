// Package provider defines the capability contract shared by the SSC and FoD
// backends plus the structured error taxonomy both implementations surface.
package provider

import (
	"context"
	"strings"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
)

// DefaultMaxIssues caps a fetch when the caller does not supply its own cap.
const DefaultMaxIssues = 10000

// Provider is the common contract over one backend instance. Implementations
// own their credential state and perform strictly sequential I/O; a single
// Provider instance must not be driven by concurrent fetches.
type Provider interface {
	// Kind identifies the backend dialect.
	Kind() schemas.ProviderKind

	// ValidateConnection issues one cheap authenticated request to confirm
	// reachability and credential validity. The returned error text tells
	// authentication failures apart from connectivity failures because the
	// two need different operator remediation.
	ValidateConnection(ctx context.Context) schemas.ValidationResult

	// ValidateApplicationAndVersion resolves human-entered names to the
	// backend's internal identifiers. An exact name match is required even
	// when the backend search is substring-based; on no match the result
	// lists the available names when they can be enumerated.
	ValidateApplicationAndVersion(ctx context.Context, appName, appVersion string) schemas.ValidationResult

	// FetchReportData resolves names, pages through the findings, normalizes
	// each one, and assembles the report. Partial progress is never returned:
	// a failed page fails the whole fetch.
	FetchReportData(ctx context.Context, appName, appVersion string, maxIssues int) (*schemas.ReportData, error)

	// ProjectURL and IssueURL are pure string builders for UI deep links.
	// They perform no network calls.
	ProjectURL(applicationID, versionID string) string
	IssueURL(applicationID, versionID, issueID string) string
}

// NormalizeBaseURL strips trailing slashes so URL assembly never produces
// doubled separators.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
