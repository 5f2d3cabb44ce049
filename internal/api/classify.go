package api

import "encoding/base64"

// AuthStrategy selects how a request derives its Authorization header.
type AuthStrategy int

const (
	// AuthNone attaches nothing; credentials travel in the request body.
	AuthNone AuthStrategy = iota

	// AuthBasicStaging attaches basic auth from the configured staging
	// credentials, or nothing when none are configured.
	AuthBasicStaging

	// AuthBearerPreferred attaches the stored access token as a bearer
	// token, falling back to AuthBasicStaging behavior without one.
	AuthBearerPreferred
)

// Classify maps an endpoint path to its authentication strategy. Login
// carries credentials in the body, register and refresh are reachable
// without a user session, and everything else wants the bearer token.
func Classify(path string) AuthStrategy {
	switch path {
	case "/auth/login":
		return AuthNone
	case "/auth/register", "/auth/refresh":
		return AuthBasicStaging
	default:
		return AuthBearerPreferred
	}
}

// Authorization derives the header value for a strategy. An empty result
// means no Authorization header is attached at all.
func Authorization(strategy AuthStrategy, token, stagingUser, stagingPass string) string {
	switch strategy {
	case AuthNone:
		return ""
	case AuthBasicStaging:
		return basicAuth(stagingUser, stagingPass)
	default:
		if token != "" {
			return "Bearer " + token
		}
		return basicAuth(stagingUser, stagingPass)
	}
}

func basicAuth(user, pass string) string {
	if user == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
