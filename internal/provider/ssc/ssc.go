// Package ssc implements the provider contract against an on-premise SSC
// server: project/version resolution, filter-set selection, and paginated
// issue retrieval over its REST API.
package ssc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/auth"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/provider"
	"github.com/xkilldash9x/vulnbridge/internal/severity"
)

const (
	// pageSize is fixed; SSC degrades with larger pages.
	pageSize = 100
	// pageDelay is a courtesy pause between pages, not a correctness
	// requirement.
	pageDelay = 100 * time.Millisecond

	// securityAuditorTitle selects the standard filter set whose folders map
	// onto the hardcoded GUID table. Containment is case-sensitive.
	securityAuditorTitle = "Security Auditor"
)

// Client talks to one SSC instance.
type Client struct {
	baseURL string
	auth    auth.Strategy
	req     *network.Requester
	logger  *zap.Logger
	limiter *rate.Limiter

	// pageSize is fixed at construction; tests shrink it to exercise the
	// pagination loop without hundreds of fixture rows.
	pageSize int
}

// New builds an SSC provider around a pre-issued CI token.
func New(baseURL, ciToken string, req *network.Requester, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  provider.NormalizeBaseURL(baseURL),
		auth:     auth.NewTokenStrategy(ciToken),
		req:      req,
		logger:   logger.Named("provider.ssc"),
		limiter:  rate.NewLimiter(rate.Every(pageDelay), 1),
		pageSize: pageSize,
	}
}

// -- SSC wire shapes --

type project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type projectList struct {
	Data  []project `json:"data"`
	Count int       `json:"count"`
}

type version struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type versionList struct {
	Data  []version `json:"data"`
	Count int       `json:"count"`
}

type filterSet struct {
	GUID             string `json:"guid"`
	Title            string `json:"title"`
	DefaultFilterSet bool   `json:"defaultFilterSet"`
}

type filterSetList struct {
	Data []filterSet `json:"data"`
}

type issue struct {
	ID              int64   `json:"id"`
	IssueInstanceID string  `json:"issueInstanceId"`
	IssueName       string  `json:"issueName"`
	Category        string  `json:"category"`
	Kingdom         string  `json:"kingdom"`
	FolderGUID      string  `json:"folderGuid"`
	Friority        float64 `json:"friority"`
	Likelihood      float64 `json:"likelihood"`
	Confidence      float64 `json:"confidence"`
	PrimaryLocation string  `json:"primaryLocation"`
	LineNumber      int     `json:"lineNumber"`
}

// issuePage keeps the raw records alongside the decoded ones so RawData can
// pass the original through untouched.
type issuePage struct {
	Data []json.RawMessage `json:"data"`
}

// Kind implements provider.Provider.
func (c *Client) Kind() schemas.ProviderKind { return schemas.ProviderSSC }

// ValidateConnection lists one project to confirm reachability and that the
// CI token is accepted.
func (c *Client) ValidateConnection(ctx context.Context) schemas.ValidationResult {
	result := schemas.ValidationResult{Provider: schemas.ProviderSSC}

	var out projectList
	if err := c.get(ctx, "/api/v1/projects", url.Values{"start": {"0"}, "limit": {"1"}}, &out); err != nil {
		var se *network.StatusError
		if errors.As(err, &se) && se.IsAuthFailure() {
			result.Error = fmt.Sprintf("authentication failed, verify the CI token: %v", err)
		} else {
			result.Error = fmt.Sprintf("could not reach SSC at %s: %v", c.baseURL, err)
		}
		return result
	}

	result.Success = true
	return result
}

// ValidateApplicationAndVersion resolves a project and version name pair to
// their numeric identifiers, requiring exact matches.
func (c *Client) ValidateApplicationAndVersion(ctx context.Context, appName, appVersion string) schemas.ValidationResult {
	result := schemas.ValidationResult{Provider: schemas.ProviderSSC}

	proj, err := c.resolveProject(ctx, appName)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	ver, err := c.resolveVersion(ctx, proj.ID, appVersion)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ApplicationID = strconv.FormatInt(proj.ID, 10)
	result.VersionID = strconv.FormatInt(ver.ID, 10)
	return result
}

// FetchReportData resolves names, selects a filter set, pages through the
// version's issues and assembles the normalized report.
func (c *Client) FetchReportData(ctx context.Context, appName, appVersion string, maxIssues int) (*schemas.ReportData, error) {
	if maxIssues <= 0 {
		maxIssues = provider.DefaultMaxIssues
	}

	proj, err := c.resolveProject(ctx, appName)
	if err != nil {
		return nil, err
	}
	ver, err := c.resolveVersion(ctx, proj.ID, appVersion)
	if err != nil {
		return nil, err
	}

	fsGUID, err := c.selectFilterSet(ctx, ver.ID)
	if err != nil {
		return nil, err
	}

	issues, err := c.fetchIssues(ctx, ver.ID, fsGUID, maxIssues)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fetch complete",
		zap.String("app", appName),
		zap.String("version", appVersion),
		zap.Int("issues", len(issues)),
	)

	return &schemas.ReportData{
		Issues:           issues,
		AppName:          appName,
		AppVersion:       appVersion,
		ScanDate:         time.Now().UTC(),
		TotalCount:       len(issues),
		ProjectVersionID: strconv.FormatInt(ver.ID, 10),
		Provider:         schemas.ProviderSSC,
		ProviderURL:      c.baseURL,
	}, nil
}

// ProjectURL builds the audit deep link for a resolved version.
func (c *Client) ProjectURL(applicationID, versionID string) string {
	return fmt.Sprintf("%s/html/ssc/version/%s/audit", c.baseURL, versionID)
}

// IssueURL builds the deep link to a single finding.
func (c *Client) IssueURL(applicationID, versionID, issueID string) string {
	return fmt.Sprintf("%s/html/ssc/version/%s/audit?issue=%s", c.baseURL, versionID, url.QueryEscape(issueID))
}

// resolveProject finds the project whose name matches exactly. SSC's q
// parameter is a substring search, so the results are filtered again here; a
// partial match is never accepted as a resolution.
func (c *Client) resolveProject(ctx context.Context, name string) (*project, error) {
	var out projectList
	q := url.Values{
		"q":     {fmt.Sprintf("name:%q", name)},
		"limit": {"200"},
	}
	if err := c.get(ctx, "/api/v1/projects", q, &out); err != nil {
		return nil, c.classify(err, "listing projects")
	}

	for i := range out.Data {
		if out.Data[i].Name == name {
			return &out.Data[i], nil
		}
	}

	available := make([]string, 0, len(out.Data))
	for _, p := range out.Data {
		available = append(available, p.Name)
	}
	if len(available) == 0 {
		// Best-effort enumeration of everything, to guide correction.
		var all projectList
		if err := c.get(ctx, "/api/v1/projects", url.Values{"limit": {"50"}}, &all); err == nil {
			for _, p := range all.Data {
				available = append(available, p.Name)
			}
		}
	}
	if len(available) > 0 {
		return nil, provider.NewError(provider.KindResolution, schemas.ProviderSSC,
			"application %q not found; available: %s", name, strings.Join(available, ", "))
	}
	return nil, provider.NewError(provider.KindResolution, schemas.ProviderSSC, "application %q not found", name)
}

// resolveVersion finds the version with the exact name within a project.
func (c *Client) resolveVersion(ctx context.Context, projectID int64, name string) (*version, error) {
	var out versionList
	path := fmt.Sprintf("/api/v1/projects/%d/versions", projectID)
	if err := c.get(ctx, path, url.Values{"limit": {"200"}}, &out); err != nil {
		return nil, c.classify(err, "listing versions")
	}

	for i := range out.Data {
		if out.Data[i].Name == name {
			return &out.Data[i], nil
		}
	}

	available := make([]string, 0, len(out.Data))
	for _, v := range out.Data {
		available = append(available, v.Name)
	}
	if len(available) > 0 {
		return nil, provider.NewError(provider.KindResolution, schemas.ProviderSSC,
			"version %q not found; available: %s", name, strings.Join(available, ", "))
	}
	return nil, provider.NewError(provider.KindResolution, schemas.ProviderSSC, "version %q not found", name)
}

// selectFilterSet picks the filter set whose folders the classification table
// was built for. Priority: a title containing "Security Auditor", then the
// set flagged as default, then the first one returned. An empty list is a
// degraded state: issues are fetched without a filterset parameter.
func (c *Client) selectFilterSet(ctx context.Context, versionID int64) (string, error) {
	var out filterSetList
	path := fmt.Sprintf("/api/v1/projectVersions/%d/filterSets", versionID)
	if err := c.get(ctx, path, nil, &out); err != nil {
		return "", c.classify(err, "listing filter sets")
	}
	if len(out.Data) == 0 {
		c.logger.Warn("Version has no filter sets, fetching unfiltered", zap.Int64("versionId", versionID))
		return "", nil
	}

	for _, fs := range out.Data {
		if strings.Contains(fs.Title, securityAuditorTitle) {
			return fs.GUID, nil
		}
	}
	for _, fs := range out.Data {
		if fs.DefaultFilterSet {
			return fs.GUID, nil
		}
	}
	return out.Data[0].GUID, nil
}

// fetchIssues pages sequentially until a short page or the cap. A failed page
// fails the whole fetch; partial progress is never returned.
func (c *Client) fetchIssues(ctx context.Context, versionID int64, filterSetGUID string, maxIssues int) ([]schemas.SecurityIssue, error) {
	path := fmt.Sprintf("/api/v1/projectVersions/%d/issues", versionID)
	issues := make([]schemas.SecurityIssue, 0, c.pageSize)

	for start := 0; len(issues) < maxIssues; start += c.pageSize {
		// The limiter paces page requests; the first call does not wait.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, provider.WrapError(provider.KindNetwork, schemas.ProviderSSC, err, "fetch canceled at offset %d", start)
		}

		q := url.Values{
			"start":          {strconv.Itoa(start)},
			"limit":          {strconv.Itoa(c.pageSize)},
			"orderby":        {"-friority"},
			"showhidden":     {"false"},
			"showremoved":    {"false"},
			"showsuppressed": {"false"},
		}
		if filterSetGUID != "" {
			q.Set("filterset", filterSetGUID)
		}

		var page issuePage
		if err := c.get(ctx, path, q, &page); err != nil {
			return nil, c.classify(err, fmt.Sprintf("fetching issues at offset %d", start))
		}

		for _, raw := range page.Data {
			if len(issues) >= maxIssues {
				break
			}
			var is issue
			if err := json.Unmarshal(raw, &is); err != nil {
				return nil, provider.WrapError(provider.KindProtocol, schemas.ProviderSSC, err, "malformed issue record at offset %d", start)
			}
			issues = append(issues, c.normalize(is, raw))
		}

		if len(page.Data) < c.pageSize {
			break
		}
	}

	return issues, nil
}

// normalize maps one SSC record onto the unified schema. The folder GUID
// drives the severity bucket; an unrecognized GUID degrades to Unknown.
func (c *Client) normalize(is issue, raw json.RawMessage) schemas.SecurityIssue {
	bucket := severity.FromFolderGUID(is.FolderGUID)

	location := is.PrimaryLocation
	if is.LineNumber > 0 {
		location = fmt.Sprintf("%s:%d", is.PrimaryLocation, is.LineNumber)
	}

	return schemas.SecurityIssue{
		ID:              strconv.FormatInt(is.ID, 10),
		InstanceID:      is.IssueInstanceID,
		Name:            is.IssueName,
		Category:        is.Category,
		Kingdom:         is.Kingdom,
		Severity:        bucket.Name,
		Priority:        bucket.Name,
		Likelihood:      severity.Likelihood(is.Likelihood),
		Confidence:      severity.Confidence(is.Confidence),
		PrimaryLocation: location,
		LineNumber:      is.LineNumber,
		FolderGUID:      is.FolderGUID,
		FolderID:        bucket.Ordinal,
		FolderName:      bucket.Name,
		FolderColor:     bucket.Color,
		PriorityScore:   is.Friority,
		Provider:        schemas.ProviderSSC,
		RawData:         raw,
	}
}

// get performs an authenticated GET against a path below the base URL.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	headers, err := c.auth.Headers()
	if err != nil {
		return err
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.req.GetJSON(ctx, u, headers, out)
}

// classify maps transport-level failures onto the provider error taxonomy.
func (c *Client) classify(err error, action string) error {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return err
	}
	var se *network.StatusError
	if errors.As(err, &se) {
		if se.IsAuthFailure() {
			return provider.WrapError(provider.KindAuth, schemas.ProviderSSC, err, "%s was rejected", action)
		}
		return provider.WrapError(provider.KindNetwork, schemas.ProviderSSC, err, "%s failed", action)
	}
	var de *network.DecodeError
	if errors.As(err, &de) {
		return provider.WrapError(provider.KindProtocol, schemas.ProviderSSC, err, "%s returned an unexpected body", action)
	}
	return provider.WrapError(provider.KindNetwork, schemas.ProviderSSC, err, "%s failed", action)
}
