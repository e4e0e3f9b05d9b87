package llm

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of embedding failure classes. Retry policy dispatches on it.
type ErrorKind int

const (
	// KindAuthentication means the credential is missing or rejected. Never retried.
	KindAuthentication ErrorKind = iota + 1
	// KindRateLimit means the provider asked us to slow down. Retried with backoff.
	KindRateLimit
	// KindTransientNetwork covers timeouts, resets and 5xx responses. Retried with backoff.
	KindTransientNetwork
	// KindModelUnavailable means the model cannot serve this request. Never retried.
	KindModelUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindTransientNetwork:
		return "transient_network"
	case KindModelUnavailable:
		return "model_unavailable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimit || k == KindTransientNetwork
}

// EmbeddingError is the only error type returned by the embedders in this package.
type EmbeddingError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int // HTTP status when known
	Err        error
}

func (e *EmbeddingError) Error() string {
	msg := fmt.Sprintf("%s embedding error (%s)", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrRateLimited) works on any
// wrapped EmbeddingError of that kind.
func (e *EmbeddingError) Is(target error) bool {
	t, ok := target.(*EmbeddingError)
	if !ok || t.Err != nil || t.Provider != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAuthentication   = &EmbeddingError{Kind: KindAuthentication}
	ErrRateLimited      = &EmbeddingError{Kind: KindRateLimit}
	ErrTransientNetwork = &EmbeddingError{Kind: KindTransientNetwork}
	ErrModelUnavailable = &EmbeddingError{Kind: KindModelUnavailable}
)

// KindOf extracts the failure class from err.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err is an EmbeddingError of a retryable kind.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Retryable()
}

func newError(provider string, kind ErrorKind, status int, err error) *EmbeddingError {
	return &EmbeddingError{Kind: kind, Provider: provider, StatusCode: status, Err: err}
}

// kindForStatus maps an HTTP status code from an embedding endpoint onto an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuthentication
	case status == 429:
		return KindRateLimit
	case status == 408 || status >= 500:
		return KindTransientNetwork
	default:
		return KindModelUnavailable
	}
}
