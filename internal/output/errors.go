package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	// CredentialsCleared marks auth failures that wiped the stored
	// credentials, so a composition layer (CLI funnel, session hook)
	// can route the user back to login.
	CredentialsCleared bool
	Cause              error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:    CodeAuth,
		Message: msg,
		Hint:    "Run: clq auth login",
	}
}

// ErrAuthRequired is the terminal error for a 401 received on a request
// that was already retried after a refresh. Credentials have been cleared
// by the time it is returned.
func ErrAuthRequired() *Error {
	return &Error{
		Code:               CodeAuth,
		Message:            "Authentication required",
		Hint:               "Run: clq auth login",
		HTTPStatus:         401,
		CredentialsCleared: true,
	}
}

// ErrSessionExpired is the terminal error when no refresh token exists or
// the refresh call itself failed. Credentials have been cleared.
func ErrSessionExpired() *Error {
	return &Error{
		Code:               CodeAuth,
		Message:            "Session expired. Please login again.",
		Hint:               "Run: clq auth login",
		HTTPStatus:         401,
		CredentialsCleared: true,
	}
}

func ErrNetwork(cause error) *Error {
	return &Error{
		Code:    CodeNetwork,
		Message: "Network error occurred",
		Hint:    cause.Error(),
		Cause:   cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
	}
}

// ErrAPIFromBody builds the error for a non-ok HTTP response body. The
// backend reports messages in a detail field, either a plain string or a
// list of validation errors; anything else falls back to the status line.
func ErrAPIFromBody(status int, body []byte) *Error {
	if msg := detailMessage(body); msg != "" {
		return ErrAPI(status, msg)
	}
	return ErrAPI(status, fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)))
}

func detailMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(payload.Detail, &s) == nil {
		return s
	}

	// Validation errors arrive as a list of {loc, msg, type}.
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(payload.Detail, &items) == nil {
		var msgs []string
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}
