package schemas

import (
	"encoding/json"
	"time"
)

// ProviderKind identifies which backend system and API dialect a finding or
// report came from.
type ProviderKind string

const (
	// ProviderSSC is the on-premise vulnerability-management server.
	ProviderSSC ProviderKind = "ssc"
	// ProviderFoD is the cloud vulnerability-scanning service.
	ProviderFoD ProviderKind = "fod"
)

// ValidationResult is the outcome of a connectivity or identity check against
// a backend. ApplicationID and VersionID are opaque identifiers and are only
// populated on success; Error is only populated on failure.
type ValidationResult struct {
	Success       bool         `json:"success"`
	ApplicationID string       `json:"applicationId,omitempty"`
	VersionID     string       `json:"versionId,omitempty"`
	Error         string       `json:"error,omitempty"`
	Provider      ProviderKind `json:"provider"`
}

// SecurityIssue is one normalized finding. Severity and Priority carry the
// same resolved bucket name; the duplication is kept for consumers written
// against older report payloads.
type SecurityIssue struct {
	// ID is the provider-local identifier, used for deep links. It may be
	// scan-local; InstanceID is the identifier that is stable across re-scans.
	ID         string `json:"id"`
	InstanceID string `json:"instanceId"`

	Name     string `json:"name"`
	Category string `json:"category"`
	Kingdom  string `json:"kingdom"`

	Severity   string `json:"severity"`
	Priority   string `json:"priority"`
	Likelihood string `json:"likelihood"`
	Confidence string `json:"confidence"`

	// PrimaryLocation already includes the ":<line>" suffix when LineNumber
	// is positive.
	PrimaryLocation string `json:"primaryLocation"`
	LineNumber      int    `json:"lineNumber"`

	FolderGUID  string `json:"folderGuid,omitempty"`
	FolderID    int    `json:"folderId"`
	FolderName  string `json:"folderName"`
	FolderColor string `json:"folderColor"`

	// PriorityScore is the provider's raw ranking value (SSC friority, FoD
	// priorityOrder). It fixes the sort order and is never redisplayed.
	PriorityScore float64 `json:"priority_score"`

	Provider ProviderKind `json:"provider"`

	// RawData is the original provider record, kept verbatim for diagnostics.
	// No business logic may depend on it.
	RawData json.RawMessage `json:"rawData,omitempty"`
}

// ReportData is the aggregate artifact handed to the persistence and
// rendering layers. It is a pure value object: constructed once per fetch and
// never mutated afterwards.
type ReportData struct {
	ReportID string          `json:"reportId"`
	Issues   []SecurityIssue `json:"issues"`

	AppName    string    `json:"appName"`
	AppVersion string    `json:"appVersion"`
	ScanDate   time.Time `json:"scanDate"`

	// TotalCount equals len(Issues) after the maxIssues cap was applied.
	TotalCount int `json:"totalCount"`

	// ProjectVersionID is the resolved version identifier, needed by the UI
	// to build deep links back into the backend.
	ProjectVersionID string `json:"projectVersionId"`

	Provider    ProviderKind `json:"provider"`
	ProviderURL string       `json:"providerUrl"`

	// Diagnostic carries the original error text when the assembler downgrades
	// a failed fetch to an empty report instead of failing the pipeline.
	Diagnostic string `json:"diagnostic,omitempty"`
}
