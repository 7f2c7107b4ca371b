// Package auth owns credential material for the backend providers and
// produces the outbound Authorization headers. Each strategy instance is
// bound to exactly one provider instance; the assembler drives one fetch at a
// time per provider, so token state is not guarded against overlapping
// callers.
package auth

import (
	"context"
	"net/http"
)

// Strategy establishes and exposes credential state for one backend.
type Strategy interface {
	// Authenticate establishes or refreshes credential state.
	Authenticate(ctx context.Context) error

	// Headers returns the header set to attach to every API call. It fails
	// if called before a successful Authenticate.
	Headers() (http.Header, error)

	// IsValid is a non-blocking liveness check on the credential state.
	IsValid() bool

	// Refresh re-runs the exchange. Strategies without a distinct refresh
	// flow treat this as Authenticate.
	Refresh(ctx context.Context) error
}
