package providers

import (
	"errors"
	"fmt"
)

// ErrorKind buckets provider failures by what the caller should do next.
type ErrorKind int

const (
	// KindTransient covers throttling and capacity failures. Retrying
	// with backoff is expected to succeed eventually.
	KindTransient ErrorKind = iota

	// KindClient covers malformed or rejected requests. Retrying the
	// same call will fail the same way.
	KindClient

	// KindAuth covers rejected or expired credentials.
	KindAuth

	// KindUnavailable covers an unreachable or broken endpoint.
	KindUnavailable
)

// String returns the kind name for logs
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClient:
		return "client"
	case KindAuth:
		return "auth"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error wraps a provider failure with the operation that hit it and the
// classification the reconciler keys its retry decision on.
type Error struct {
	Op   string
	Code string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient provider failure that a
// backoff-and-retry loop should absorb.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindTransient
}

// IsAuth reports whether err means the credentials were rejected.
func IsAuth(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindAuth
}

// IsUnavailable reports whether err means the provider endpoint itself
// could not be reached.
func IsUnavailable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindUnavailable
}
