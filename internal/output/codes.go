// Package output provides JSON output formatting and error handling.
package output

// Exit codes for the clq binary.
const (
	ExitOK      = 0 // Success
	ExitUsage   = 1 // Invalid arguments or flags
	ExitAuth    = 2 // Not authenticated or session expired
	ExitNetwork = 3 // Connection/DNS/timeout error
	ExitAPI     = 4 // Server returned error
)

// Error codes for JSON envelope.
const (
	CodeUsage   = "usage"
	CodeAuth    = "auth_required"
	CodeNetwork = "network"
	CodeAPI     = "api_error"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeAuth:
		return ExitAuth
	case CodeNetwork:
		return ExitNetwork
	case CodeAPI:
		return ExitAPI
	default:
		return ExitAPI
	}
}
