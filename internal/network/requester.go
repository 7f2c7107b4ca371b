// File: internal/network/requester.go
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes bounds how much of a response body is read into memory.
// Issue pages are a few hundred KB at most; anything beyond this is a
// misbehaving backend.
const maxResponseBytes = 16 * 1024 * 1024

// StatusError reports a non-2xx response. The body is preserved so callers
// can extract backend-specific diagnostics (e.g. an OAuth error_description).
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("backend returned %s", e.Status)
	}
	return fmt.Sprintf("backend returned %s: %s", e.Status, body)
}

// IsAuthFailure reports whether the status indicates rejected credentials
// rather than a connectivity problem. The two need different operator
// remediation, so callers must be able to tell them apart.
func (e *StatusError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DecodeError reports a 2xx response whose body did not match the expected
// shape. It is never coerced into empty data.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend returned a success status with an unparseable body: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Requester is a thin JSON-over-HTTP(S) client. Each call is a single attempt
// with a bounded timeout; retry policy, if any, belongs to the caller.
type Requester struct {
	client *http.Client
	logger *zap.Logger
}

// NewRequester builds a Requester on top of the shared transport config.
func NewRequester(cfg *ClientConfig, logger *zap.Logger) *Requester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Requester{
		client: NewClient(cfg),
		logger: logger.Named("requester"),
	}
}

// GetJSON issues a GET and decodes the JSON response into out. A non-2xx
// status yields a *StatusError; a malformed success body yields a
// *DecodeError; transport failures are returned as-is.
func (r *Requester) GetJSON(ctx context.Context, rawURL string, headers http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	return r.do(req, out)
}

// PostForm issues an application/x-www-form-urlencoded POST and decodes the
// JSON response into out. Error surfacing matches GetJSON.
func (r *Requester) PostForm(ctx context.Context, rawURL string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return r.do(req, out)
}

func (r *Requester) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", req.URL.Redacted(), err)
	}

	r.logger.Debug("Request complete",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
