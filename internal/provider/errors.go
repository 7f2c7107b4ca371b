package provider

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
)

// ErrorKind is the closed set of failure classes a provider can surface.
// Callers branch on the kind instead of substring-matching error text.
type ErrorKind int

const (
	// KindConfiguration: missing or contradictory required fields, detected
	// before any network call. Never retried.
	KindConfiguration ErrorKind = iota + 1
	// KindAuth: credentials rejected or the token exchange was malformed.
	// Actionable by the operator (rotate or verify credentials).
	KindAuth
	// KindResolution: application or version name not found, or no exact
	// match existed among partial-match search results.
	KindResolution
	// KindNetwork: timeout, DNS/connect failure, or other transport problem.
	KindNetwork
	// KindProtocol: the backend returned a success status with a body that
	// does not match the expected shape.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuth:
		return "auth"
	case KindResolution:
		return "resolution"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a structured provider failure carrying its kind and the
// originating provider.
type Error struct {
	Kind     ErrorKind
	Provider schemas.ProviderKind
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s error]: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s error]: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a provider error with a formatted message.
func NewError(kind ErrorKind, p schemas.ProviderKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Provider: p, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a provider error around an underlying cause.
func WrapError(kind ErrorKind, p schemas.ProviderKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Provider: p, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is (or wraps) a provider error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
