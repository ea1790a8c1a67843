package errors

import (
	"fmt"
	"strings"
)

// Kind names used when reporting tool failures to the caller.
const (
	KindUnknownTool      = "UnknownTool"
	KindInvalidArguments = "InvalidArguments"
	KindUpstream         = "Upstream"

	CauseSpawnFailed  = "SpawnFailed"
	CauseSessionDead  = "SessionDead"
	CauseTimeout      = "Timeout"
	CauseProtocol     = "ProtocolError"
	CauseNotFound     = "NotFound"
	CauseUnclassified = "Internal"
)

// UnknownToolError indicates a call for a tool that is not in the catalogue.
type UnknownToolError struct {
	Name string
}

// Error is an implementation of the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// InvalidArgumentsError indicates tool arguments that do not conform to the tool's schema.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

// Error is an implementation of the error interface.
func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %q: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// UpstreamError wraps a failure that happened while answering a tool call with the analyzer.
type UpstreamError struct {
	Tool    string
	Project string
	Path    string
	Err     error
}

// Error is an implementation of the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s on %q: %v", e.Tool, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Cause classifies the root failure behind an upstream error.
func Cause(e error) string {
	switch {
	case IsSpawnFailed(e):
		return CauseSpawnFailed
	case IsSessionDead(e):
		return CauseSessionDead
	case IsTimeout(e):
		return CauseTimeout
	case IsProtocol(e):
		return CauseProtocol
	case IsProjectNotFound(e), IsOutsideProject(e):
		return CauseNotFound
	default:
		return CauseUnclassified
	}
}

// Kind classifies an error returned from a tool invocation.
func Kind(e error) string {
	switch {
	case IsUnknownTool(e):
		return KindUnknownTool
	case IsInvalidArguments(e):
		return KindInvalidArguments
	default:
		return KindUpstream
	}
}
