// Package clierr defines the machine-recoverable error taxonomy shared by
// every layer of the CLI. Agents drive mcpq in a loop, so each error carries
// a stable type code, an optional detail line, and a recovery suggestion.
package clierr

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies one error class. Types are stable strings; they appear in
// user-facing output and agents match on them.
type Type string

const (
	ConfigNotFound         Type = "CONFIG_NOT_FOUND"
	ConfigInvalidJSON      Type = "CONFIG_INVALID_JSON"
	ConfigValidationFailed Type = "CONFIG_VALIDATION_FAILED"
	MissingEnvVar          Type = "MISSING_ENV_VAR"

	ServerNotFound Type = "SERVER_NOT_FOUND"

	ServerConnectionFailed Type = "SERVER_CONNECTION_FAILED"

	ToolNotFound        Type = "TOOL_NOT_FOUND"
	ToolDisabled        Type = "TOOL_DISABLED"
	ToolExecutionFailed Type = "TOOL_EXECUTION_FAILED"

	AmbiguousCommand     Type = "AMBIGUOUS_COMMAND"
	UnknownSubcommand    Type = "UNKNOWN_SUBCOMMAND"
	MissingArgument      Type = "MISSING_ARGUMENT"
	TooManyArguments     Type = "TOO_MANY_ARGUMENTS"
	UnknownOption        Type = "UNKNOWN_OPTION"
	InvalidTarget        Type = "INVALID_TARGET"
	InvalidJSONArguments Type = "INVALID_JSON_ARGUMENTS"

	OAuthConfigError Type = "OAUTH_CONFIG_ERROR"
	OAuthFlowError   Type = "OAUTH_FLOW_ERROR"
	AuthRequired     Type = "AUTH_REQUIRED"
)

// Exit codes per the CLI contract.
const (
	ExitSuccess     = 0
	ExitClientError = 1
	ExitServerError = 2
	ExitNetwork     = 3
	ExitAuth        = 4
	ExitInterrupted = 130
	ExitTerminated  = 143
)

// Error is the user-facing error shape. It renders as
//
//	Error [<TYPE>]: <message>
//	  Details: <...>
//	  Suggestion: <...>
//
// with Details and Suggestion lines present only when non-empty.
type Error struct {
	Type       Type
	Message    string
	Details    string
	Suggestion string
	Err        error
}

// New creates an Error of the given type.
func New(typ Type, format string, args ...interface{}) *Error {
	return &Error{Type: typ, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given type around a cause.
func Wrap(typ Type, err error, format string, args ...interface{}) *Error {
	return &Error{Type: typ, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails attaches a detail line and returns the error for chaining.
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion attaches a recovery suggestion and returns the error.
func (e *Error) WithSuggestion(format string, args ...interface{}) *Error {
	e.Suggestion = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("Error [%s]: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Format renders the full multi-line shape written to stderr.
func (e *Error) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s\n", e.Type, e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, "  Details: %s\n", e.Details)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  Suggestion: %s\n", e.Suggestion)
	}
	return b.String()
}

// ExitCode maps the error type to the process exit code contract.
func (e *Error) ExitCode() int {
	switch e.Type {
	case ServerConnectionFailed:
		return ExitNetwork
	case OAuthConfigError, OAuthFlowError, AuthRequired:
		return ExitAuth
	case ToolExecutionFailed:
		return ExitServerError
	default:
		return ExitClientError
	}
}

// FromError returns err as a *Error, wrapping unknown errors under the
// given fallback type.
func FromError(err error, fallback Type) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Type: fallback, Message: err.Error(), Err: err}
}

// IsType reports whether err carries the given taxonomy type.
func IsType(err error, typ Type) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == typ
	}
	return false
}
