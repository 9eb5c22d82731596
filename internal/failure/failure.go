// Package failure classifies the ways a run against the booking site can fail,
// so callers can tell a dead session apart from a single missing report.
package failure

import (
	"context"
	"errors"
	"net"
)

type Kind int

const (
	Unknown Kind = iota
	// Authentication is fatal to a run: bad credentials, missing token or an unrecognized response.
	Authentication
	// DirectoryFetch is non-fatal, names fall back to placeholders.
	DirectoryFetch
	// ReportGeneration means no report id could be resolved.
	ReportGeneration
	// ControlResolution means no viewer control id could be resolved.
	ControlResolution
	// Stream means the pdf export did not complete (bad status or cancelled).
	Stream
	// BalanceFetch is non-fatal, sentinel values are substituted.
	BalanceFetch
	// Export is non-fatal, it is only logged.
	Export
)

func (k Kind) String() string {
	switch k {
	case Authentication:
		return "authentication"
	case DirectoryFetch:
		return "directory-fetch"
	case ReportGeneration:
		return "report-generation"
	case ControlResolution:
		return "control-resolution"
	case Stream:
		return "stream"
	case BalanceFetch:
		return "balance-fetch"
	case Export:
		return "export"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this kind must abort the whole run.
func (k Kind) Fatal() bool {
	return k == Authentication
}

// ErrCancelled is wrapped by failures caused by the user stopping the run.
var ErrCancelled = errors.New("cancelled")

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " failure"
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. A nil err still yields a non-nil failure.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost failure in the chain, or Unknown.
func KindOf(err error) Kind {
	var failure *Error
	if errors.As(err, &failure) {
		return failure.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether retrying the same step could succeed: transport
// errors and timeouts are, protocol and extraction failures are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
