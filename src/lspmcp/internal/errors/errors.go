package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderr.As(err, target)
}

var (
	// ErrNoProjects reports that the bridge was started without any project roots.
	ErrNoProjects = New("no projects configured")
	// ErrSessionClosed is the death reason for a session that was shut down on purpose.
	ErrSessionClosed = New("session closed")
)

// IsSpawnFailed reports whether the analyzer could not be started.
func IsSpawnFailed(e error) bool {
	var target *SpawnFailedError
	return stderr.As(e, &target)
}

// IsSessionDead reports whether the analyzer session terminated.
func IsSessionDead(e error) bool {
	var target *SessionDeadError
	return stderr.As(e, &target)
}

// IsTimeout reports whether a request ran out of time.
func IsTimeout(e error) bool {
	var target *TimeoutError
	return stderr.As(e, &target)
}

// IsProtocol reports whether the analyzer answered with an error or a malformed message.
func IsProtocol(e error) bool {
	var target *ProtocolError
	return stderr.As(e, &target)
}

// IsUnknownTool reports whether the caller asked for a tool that is not in the catalogue.
func IsUnknownTool(e error) bool {
	var target *UnknownToolError
	return stderr.As(e, &target)
}

// IsInvalidArguments reports whether the caller supplied malformed tool arguments.
func IsInvalidArguments(e error) bool {
	var target *InvalidArgumentsError
	return stderr.As(e, &target)
}

// IsUpstream reports whether the error was raised while talking to the analyzer.
func IsUpstream(e error) bool {
	var target *UpstreamError
	return stderr.As(e, &target)
}

// IsBadRequest reports whether the error was caused by the caller rather than the analyzer.
func IsBadRequest(e error) bool {
	return IsUnknownTool(e) || IsInvalidArguments(e)
}

// Retryable reports whether repeating the same request may succeed.
func Retryable(e error) bool {
	return IsTimeout(e) || IsSessionDead(e)
}
