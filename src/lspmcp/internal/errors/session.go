package errors

import (
	"fmt"
	"strings"
	"time"

	"go.lsp.dev/jsonrpc2"
)

// SpawnFailedError indicates that the analyzer binary is missing or could not be run.
type SpawnFailedError struct {
	Command string
	Err     error
}

// Error is an implementation of the error interface.
func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("starting analyzer %q: %v", e.Command, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SpawnFailedError) Unwrap() error {
	return e.Err
}

// SessionDeadError indicates that the analyzer subprocess has terminated.
type SessionDeadError struct {
	Project string
	Reason  error
}

// Error is an implementation of the error interface.
func (e *SessionDeadError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("analyzer session for %q is dead", e.Project)
	}
	return fmt.Sprintf("analyzer session for %q is dead: %v", e.Project, e.Reason)
}

// Unwrap returns the reason the session terminated.
func (e *SessionDeadError) Unwrap() error {
	return e.Reason
}

// TimeoutError indicates that no response arrived within the request budget.
type TimeoutError struct {
	Method string
	After  time.Duration
}

// Error is an implementation of the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %v", e.Method, e.After)
}

// ProtocolError indicates an error response from the analyzer, or a message with an unexpected shape.
type ProtocolError struct {
	Method  string
	Code    jsonrpc2.Code
	Message string
}

// Error is an implementation of the error interface.
func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Method)
	b.WriteString(": ")
	if e.Code != 0 {
		fmt.Fprintf(&b, "code %d: ", e.Code)
	}
	b.WriteString(e.Message)
	return b.String()
}

// NewProtocolError converts an error returned on the wire into a ProtocolError.
func NewProtocolError(method string, err error) *ProtocolError {
	var wire *jsonrpc2.Error
	if As(err, &wire) {
		return &ProtocolError{Method: method, Code: wire.Code, Message: wire.Message}
	}
	return &ProtocolError{Method: method, Message: err.Error()}
}
