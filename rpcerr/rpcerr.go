// Package rpcerr holds the error taxonomy every call result is classified into.
//
// Callers should branch on the class, not on message text:
//
//	ConnectionError  transport could not be opened, or the call failed at the transport
//	TimeoutError     no reply within the window of a single-reply call
//	ParseError       reply body did not match the expected shape
//	DomainError      server completed a single-reply call without a value
//	RouteError       route name violates the metadata precondition
//	ThrottledError   client-side rate limit rejected the call before it was sent
package rpcerr

import (
	"errors"

	"github.com/zeebo/errs"
)

var (
	ConnectionError = errs.Class("connection")
	TimeoutError    = errs.Class("timeout")
	ParseError      = errs.Class("parse")
	DomainError     = errs.Class("domain")
	RouteError      = errs.Class("route")
	ThrottledError  = errs.Class("throttled")
)

// ErrNoValue is wrapped in a DomainError when a single-reply call completes empty.
var ErrNoValue = errors.New("completed without a value")

func IsConnection(err error) bool { return ConnectionError.Has(err) }
func IsTimeout(err error) bool    { return TimeoutError.Has(err) }
func IsParse(err error) bool      { return ParseError.Has(err) }
func IsDomain(err error) bool     { return DomainError.Has(err) }
func IsRoute(err error) bool      { return RouteError.Has(err) }
func IsThrottled(err error) bool  { return ThrottledError.Has(err) }

// Retryable reports whether repeating the same call could plausibly succeed.
func Retryable(err error) bool {
	return IsTimeout(err) || IsConnection(err)
}

// Kind names the class of err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeout(err):
		return "timeout"
	case IsDomain(err):
		return "domain"
	case IsParse(err):
		return "parse"
	case IsThrottled(err):
		return "throttled"
	case IsRoute(err):
		return "route"
	case IsConnection(err):
		return "connection"
	default:
		return "other"
	}
}
