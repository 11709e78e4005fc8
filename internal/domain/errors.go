package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies run-level failures.
type ErrorCode uint8

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota
	// ErrorCodeConfiguration is for a missing or invalid token, account or flag
	ErrorCodeConfiguration
	// ErrorCodeAccountNotFound is for an account that is neither an org nor a user
	ErrorCodeAccountNotFound
	// ErrorCodeRepositoryFetch is for a failure local to one repository
	ErrorCodeRepositoryFetch
	// ErrorCodeRateLimitExceeded is for a rate limit reset too far in the future
	ErrorCodeRateLimitExceeded
	// ErrorCodeCacheIO is for cache read or write failures
	ErrorCodeCacheIO
	// ErrorCodeNoData is for a run where no repository succeeded
	ErrorCodeNoData
)

// String returns a short label for logs.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeConfiguration:
		return "configuration"
	case ErrorCodeAccountNotFound:
		return "account_not_found"
	case ErrorCodeRepositoryFetch:
		return "repository_fetch"
	case ErrorCodeRateLimitExceeded:
		return "rate_limit_exceeded"
	case ErrorCodeCacheIO:
		return "cache_io"
	case ErrorCodeNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// ErrStatsNotReady is returned when GitHub keeps answering 202 for contributor stats.
var ErrStatsNotReady = errors.New("stats not ready")

// Error is a code-carrying error with an optional wrapped cause.
type Error struct {
	code ErrorCode
	msg  string
	orig error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	var rf *RepositoryFetchError
	if errors.As(err, &rf) {
		return ErrorCodeRepositoryFetch
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// RepositoryFetchError is a failure confined to a single repository.
type RepositoryFetchError struct {
	Repository string
	Reason     string
	Err        error
}

func (e *RepositoryFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Repository, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Repository, e.Reason)
}

func (e *RepositoryFetchError) Unwrap() error { return e.Err }
