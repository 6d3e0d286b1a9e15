// Package upstream holds the error type and circuit breaker shared by the
// adapters that talk to external services and local tools.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an adapter failure.
type Kind int

const (
	// KindUpstream is a remote service that answered with an error or could not be reached.
	KindUpstream Kind = iota
	// KindTool is a local executable that exited non-zero or produced unreadable output.
	KindTool
	// KindTimeout is a call that ran past its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindTimeout:
		return "timeout"
	default:
		return "upstream"
	}
}

// maxBodyExcerpt bounds how much of an upstream body is kept on an error.
const maxBodyExcerpt = 512

// Error is returned by every adapter. StatusCode is the HTTP status for
// remote services and the exit code for tools.
type Error struct {
	Kind       Kind
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Service, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Excerpt trims b to a loggable size.
func Excerpt(b []byte) string {
	if len(b) > maxBodyExcerpt {
		return string(b[:maxBodyExcerpt]) + "..."
	}
	return string(b)
}

// StatusError builds an upstream error from a non-2xx response.
func StatusError(service string, status int, body []byte) *Error {
	return &Error{Kind: KindUpstream, Service: service, StatusCode: status, Body: Excerpt(body)}
}

// ToolError builds an error for a local tool that failed.
func ToolError(service string, exitCode int, stderr []byte, err error) *Error {
	return &Error{Kind: KindTool, Service: service, StatusCode: exitCode, Body: Excerpt(stderr), Err: err}
}

// Classify wraps a transport-level failure, marking deadline and network
// timeouts as KindTimeout. Errors that are already *Error pass through.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	if IsTimeout(err) {
		return &Error{Kind: KindTimeout, Service: service, Err: err}
	}
	return &Error{Kind: KindUpstream, Service: service, Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout, or an
// *Error of KindTimeout.
func IsTimeout(err error) bool {
	var ue *Error
	if errors.As(err, &ue) && ue.Kind == KindTimeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// KindOf returns the kind of err, or false if err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind, true
	}
	return 0, false
}
