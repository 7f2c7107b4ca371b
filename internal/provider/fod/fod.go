// Package fod implements the provider contract against the FoD cloud
// service: key/secret token exchange, application/release resolution, and
// offset-paged vulnerability retrieval.
package fod

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
	pageSize  = 50
	pageDelay = 100 * time.Millisecond
)

// Client talks to one FoD tenant.
type Client struct {
	baseURL string
	auth    auth.Strategy
	req     *network.Requester
	logger  *zap.Logger
	limiter *rate.Limiter

	// pageSize is fixed at construction; tests shrink it to drive the
	// pagination loop with small fixtures.
	pageSize int
}

// New builds an FoD provider around an API key/secret pair. The token
// exchange is deferred until the first call that needs it.
func New(baseURL, apiKey, apiSecret string, req *network.Requester, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := provider.NormalizeBaseURL(baseURL)
	return &Client{
		baseURL:  base,
		auth:     auth.NewKeyExchangeStrategy(base, apiKey, apiSecret, req, logger),
		req:      req,
		logger:   logger.Named("provider.fod"),
		limiter:  rate.NewLimiter(rate.Every(pageDelay), 1),
		pageSize: pageSize,
	}
}

// -- FoD wire shapes --

type application struct {
	ApplicationID   int64  `json:"applicationId"`
	ApplicationName string `json:"applicationName"`
}

type applicationList struct {
	Items      []application `json:"items"`
	TotalCount int           `json:"totalCount"`
}

type release struct {
	ReleaseID   int64  `json:"releaseId"`
	ReleaseName string `json:"releaseName"`
}

type releaseList struct {
	Items      []release `json:"items"`
	TotalCount int       `json:"totalCount"`
}

type vulnerability struct {
	// ID is the numeric identifier the web UI resolves issues by. VulnID is
	// a UUID that is stable across re-scans but useless for links; swapping
	// the two produces broken deep links.
	ID     int64  `json:"id"`
	VulnID string `json:"vulnId"`

	Category string `json:"category"`
	Kingdom  string `json:"kingdom"`

	SeverityString string  `json:"severityString"`
	PriorityOrder  float64 `json:"priorityOrder"`
	Likelihood     float64 `json:"likelihood"`
	Confidence     float64 `json:"confidence"`

	PrimaryLocationFull string `json:"primaryLocationFull"`
	FileName            string `json:"fileName"`
	ShortFileName       string `json:"shortFileName"`
	LineNumber          int    `json:"lineNumber"`
}

type vulnerabilityPage struct {
	Items      []json.RawMessage `json:"items"`
	TotalCount int               `json:"totalCount"`
}

// Kind implements provider.Provider.
func (c *Client) Kind() schemas.ProviderKind { return schemas.ProviderFoD }

// ValidateConnection exchanges the key pair for a token if needed and lists a
// single application.
func (c *Client) ValidateConnection(ctx context.Context) schemas.ValidationResult {
	result := schemas.ValidationResult{Provider: schemas.ProviderFoD}

	var out applicationList
	if err := c.get(ctx, "/api/v3/applications", url.Values{"limit": {"1"}}, &out); err != nil {
		if provider.IsKind(err, provider.KindAuth) {
			result.Error = fmt.Sprintf("authentication failed, verify the API key and secret: %v", err)
		} else {
			var se *network.StatusError
			if errors.As(err, &se) && se.IsAuthFailure() {
				result.Error = fmt.Sprintf("authentication failed, verify the API key and secret: %v", err)
			} else {
				result.Error = fmt.Sprintf("could not reach FoD at %s: %v", c.baseURL, err)
			}
		}
		return result
	}

	result.Success = true
	return result
}

// ValidateApplicationAndVersion resolves application and release names to
// their numeric identifiers, requiring exact matches.
func (c *Client) ValidateApplicationAndVersion(ctx context.Context, appName, appVersion string) schemas.ValidationResult {
	result := schemas.ValidationResult{Provider: schemas.ProviderFoD}

	app, err := c.resolveApplication(ctx, appName)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	rel, err := c.resolveRelease(ctx, app.ApplicationID, appVersion)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ApplicationID = strconv.FormatInt(app.ApplicationID, 10)
	result.VersionID = strconv.FormatInt(rel.ReleaseID, 10)
	return result
}

// FetchReportData resolves names, pages through the release's vulnerabilities
// and assembles the normalized report.
func (c *Client) FetchReportData(ctx context.Context, appName, appVersion string, maxIssues int) (*schemas.ReportData, error) {
	if maxIssues <= 0 {
		maxIssues = provider.DefaultMaxIssues
	}

	app, err := c.resolveApplication(ctx, appName)
	if err != nil {
		return nil, err
	}
	rel, err := c.resolveRelease(ctx, app.ApplicationID, appVersion)
	if err != nil {
		return nil, err
	}

	issues, err := c.fetchVulnerabilities(ctx, rel.ReleaseID, maxIssues)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fetch complete",
		zap.String("app", appName),
		zap.String("release", appVersion),
		zap.Int("issues", len(issues)),
	)

	return &schemas.ReportData{
		Issues:           issues,
		AppName:          appName,
		AppVersion:       appVersion,
		ScanDate:         time.Now().UTC(),
		TotalCount:       len(issues),
		ProjectVersionID: strconv.FormatInt(rel.ReleaseID, 10),
		Provider:         schemas.ProviderFoD,
		ProviderURL:      c.baseURL,
	}, nil
}

// ProjectURL builds the release deep link.
func (c *Client) ProjectURL(applicationID, versionID string) string {
	return fmt.Sprintf("%s/Applications/%s/Releases/%s", c.baseURL, applicationID, versionID)
}

// IssueURL builds the deep link to one vulnerability. The issueID must be the
// numeric record id, never the vuln UUID.
func (c *Client) IssueURL(applicationID, versionID, issueID string) string {
	return fmt.Sprintf("%s/Applications/%s/Releases/%s/Issues/%s", c.baseURL, applicationID, versionID, url.PathEscape(issueID))
}

// resolveApplication finds the application whose name matches exactly. The
// filters parameter is a substring search on FoD's side, so the result set is
// checked again here.
func (c *Client) resolveApplication(ctx context.Context, name string) (*application, error) {
	var out applicationList
	q := url.Values{
		"filters": {"applicationName:" + name},
		"limit":   {"50"},
	}
	if err := c.get(ctx, "/api/v3/applications", q, &out); err != nil {
		return nil, err
	}

	for i := range out.Items {
		if out.Items[i].ApplicationName == name {
			return &out.Items[i], nil
		}
	}

	available := make([]string, 0, len(out.Items))
	for _, a := range out.Items {
		available = append(available, a.ApplicationName)
	}
	if len(available) == 0 {
		var all applicationList
		if err := c.get(ctx, "/api/v3/applications", url.Values{"limit": {"50"}}, &all); err == nil {
			for _, a := range all.Items {
				available = append(available, a.ApplicationName)
			}
		}
	}
	if len(available) > 0 {
		return nil, provider.NewError(provider.KindResolution, schemas.ProviderFoD,
			"application %q not found; available: %s", name, strings.Join(available, ", "))
	}
	return nil, provider.NewError(provider.KindResolution, schemas.ProviderFoD, "application %q not found", name)
}

// resolveRelease finds the release with the exact name within an application.
func (c *Client) resolveRelease(ctx context.Context, appID int64, name string) (*release, error) {
	var out releaseList
	path := fmt.Sprintf("/api/v3/applications/%d/releases", appID)
	if err := c.get(ctx, path, url.Values{"limit": {"50"}}, &out); err != nil {
		return nil, err
	}

	for i := range out.Items {
		if out.Items[i].ReleaseName == name {
			return &out.Items[i], nil
		}
	}

	available := make([]string, 0, len(out.Items))
	for _, r := range out.Items {
		available = append(available, r.ReleaseName)
	}
	if len(available) > 0 {
		return nil, provider.NewError(provider.KindResolution, schemas.ProviderFoD,
			"release %q not found; available: %s", name, strings.Join(available, ", "))
	}
	return nil, provider.NewError(provider.KindResolution, schemas.ProviderFoD, "release %q not found", name)
}

// fetchVulnerabilities pages sequentially with offset/limit until an empty or
// short page, or the cap. Any page failure aborts the whole fetch and names
// the offset it happened at.
func (c *Client) fetchVulnerabilities(ctx context.Context, releaseID int64, maxIssues int) ([]schemas.SecurityIssue, error) {
	path := fmt.Sprintf("/api/v3/releases/%d/vulnerabilities", releaseID)
	issues := make([]schemas.SecurityIssue, 0, c.pageSize)

	for offset := 0; len(issues) < maxIssues; offset += c.pageSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, provider.WrapError(provider.KindNetwork, schemas.ProviderFoD, err, "fetch canceled at offset %d", offset)
		}

		q := url.Values{
			"offset":            {strconv.Itoa(offset)},
			"limit":             {strconv.Itoa(c.pageSize)},
			"orderBy":           {"severity"},
			"orderByDirection":  {"ASC"},
			"includeFixed":      {"false"},
			"includeSuppressed": {"false"},
		}

		var page vulnerabilityPage
		if err := c.get(ctx, path, q, &page); err != nil {
			return nil, wrapAt(err, offset)
		}

		if len(page.Items) == 0 {
			break
		}

		for _, raw := range page.Items {
			if len(issues) >= maxIssues {
				break
			}
			var v vulnerability
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, provider.WrapError(provider.KindProtocol, schemas.ProviderFoD, err, "malformed vulnerability record at offset %d", offset)
			}
			issues = append(issues, c.normalize(v, raw))
		}

		if len(page.Items) < c.pageSize {
			break
		}
	}

	return issues, nil
}

// normalize maps one FoD record onto the unified schema. The ready-made
// severity string drives the bucket; FoD has one classification string, so it
// feeds both the name and category fields.
func (c *Client) normalize(v vulnerability, raw json.RawMessage) schemas.SecurityIssue {
	bucket := severity.FromName(v.SeverityString)

	return schemas.SecurityIssue{
		ID:              strconv.FormatInt(v.ID, 10),
		InstanceID:      v.VulnID,
		Name:            v.Category,
		Category:        v.Category,
		Kingdom:         v.Kingdom,
		Severity:        bucket.Name,
		Priority:        bucket.Name,
		Likelihood:      severity.Likelihood(v.Likelihood),
		Confidence:      severity.Confidence(v.Confidence),
		PrimaryLocation: buildLocation(v),
		LineNumber:      v.LineNumber,
		FolderID:        bucket.Ordinal,
		FolderName:      bucket.Name,
		FolderColor:     bucket.Color,
		PriorityScore:   v.PriorityOrder,
		Provider:        schemas.ProviderFoD,
		RawData:         raw,
	}
}

// buildLocation assembles the source pointer. Preference order is the full
// location, then fileName, then shortFileName; the line suffix is appended
// only when the line number is positive, and a line without any file path
// still yields ":<line>" so the fragment is never silently dropped.
func buildLocation(v vulnerability) string {
	file := v.PrimaryLocationFull
	if file == "" {
		file = v.FileName
	}
	if file == "" {
		file = v.ShortFileName
	}
	if v.LineNumber > 0 {
		return fmt.Sprintf("%s:%d", file, v.LineNumber)
	}
	return file
}

// get performs an authenticated GET, exchanging or refreshing the bearer
// token first when needed.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if !c.auth.IsValid() {
		if err := c.auth.Authenticate(ctx); err != nil {
			return err
		}
	}
	headers, err := c.auth.Headers()
	if err != nil {
		return err
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	if err := c.req.GetJSON(ctx, u, headers, out); err != nil {
		return c.classify(err)
	}
	return nil
}

// classify maps transport-level failures onto the provider error taxonomy.
func (c *Client) classify(err error) error {
	var se *network.StatusError
	if errors.As(err, &se) {
		if se.IsAuthFailure() {
			return provider.WrapError(provider.KindAuth, schemas.ProviderFoD, err, "request was rejected")
		}
		return provider.WrapError(provider.KindNetwork, schemas.ProviderFoD, err, "request failed")
	}
	var de *network.DecodeError
	if errors.As(err, &de) {
		return provider.WrapError(provider.KindProtocol, schemas.ProviderFoD, err, "response had an unexpected shape")
	}
	return provider.WrapError(provider.KindNetwork, schemas.ProviderFoD, err, "request failed")
}

// wrapAt decorates a page failure with the offset it occurred at.
func wrapAt(err error, offset int) error {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return provider.WrapError(pe.Kind, schemas.ProviderFoD, err, "vulnerability page at offset %d failed", offset)
	}
	return provider.WrapError(provider.KindNetwork, schemas.ProviderFoD, err, "vulnerability page at offset %d failed", offset)
}
