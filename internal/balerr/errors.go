// Package balerr defines the error taxonomy shared by every component:
// config validation, proxy dialing, health probing, and admission control
// all raise one of a small fixed set of kinds so that logs, status reports
// and doctor diagnostics can classify failures without string matching.
package balerr

import (
	"errors"
	"fmt"
	"time"

	"github.com/mir00r/bal/internal/domain"
)

// Kind identifies one of the seven error categories the core raises.
type Kind string

const (
	// ConfigInvalid is a schema or bound violation, rejected at parse/swap.
	ConfigInvalid Kind = "config_invalid"
	// BindFailed means the listen socket could not be created; fatal at startup.
	BindFailed Kind = "bind_failed"
	// ProbeFailed is a per-backend health-probe failure; never surfaced to a client.
	ProbeFailed Kind = "probe_failed"
	// ConnectFailed is an outbound dial failure during request handling.
	ConnectFailed Kind = "connect_failed"
	// NoBackendAvailable means the eligible set was empty at dispatch time.
	NoBackendAvailable Kind = "no_backend_available"
	// Overloaded is an admission-control rejection.
	Overloaded Kind = "overloaded"
	// ShutdownRequested is cooperative termination, not a failure.
	ShutdownRequested Kind = "shutdown_requested"
)

// Error is the structured error type raised across the core. It carries
// enough context for a log line's "event" field and for doctor/status
// classification without needing to parse the message string. Outcome
// reuses domain.ProbeOutcome directly rather than a second parallel type,
// since it classifies the same last_probe_outcome concept the Backend
// Entry tracks.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Outcome   domain.ProbeOutcome
	Timestamp time.Time
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether a failure of this kind is meaningful to retry
// locally (connect against the next candidate, probe on the next tick).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ProbeFailed, ConnectFailed:
		return true
	default:
		return false
	}
}

// New creates an Error without an underlying cause.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Timestamp: time.Now()}
}

// Wrap creates an Error carrying an underlying cause. Returns nil if err is nil.
func Wrap(err error, kind Kind, component, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Message: message, Cause: err, Timestamp: time.Now()}
}

// WithOutcome attaches a probe outcome classification and returns the receiver.
func (e *Error) WithOutcome(o domain.ProbeOutcome) *Error {
	e.Outcome = o
	return e
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
