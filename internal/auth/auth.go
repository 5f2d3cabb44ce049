// Package auth manages session credentials for the CarbonLedger API:
// login, registration, token refresh, and the persisted credential store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
	"github.com/carbonledger/clq/internal/version"
)

// Manager owns the credential lifecycle. It performs its own HTTP calls
// for login/register/refresh so the request executor's 401 handling can
// delegate here without recursing through itself.
type Manager struct {
	cfg        *config.Config
	store      CredentialStore
	httpClient *http.Client

	// OnSessionExpired is invoked after credentials have been cleared by
	// an unrecoverable auth failure. The result is ignored; the hook is
	// how a composition layer routes the user back to login.
	OnSessionExpired func()

	sf singleflight.Group
	mu sync.Mutex
}

// NewManager creates an auth manager around an injected credential store.
func NewManager(cfg *config.Config, store CredentialStore, httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		httpClient: httpClient,
	}
}

// Store returns the underlying credential store.
func (m *Manager) Store() CredentialStore {
	return m.store
}

// AccessToken returns the current access token, or "" when anonymous.
// A CLQ_TOKEN-injected token takes precedence over stored credentials.
// Store read failures degrade to anonymous rather than erroring: requests
// then fall through to staging or unauthenticated access.
func (m *Manager) AccessToken() string {
	if m.cfg.Token != "" {
		return m.cfg.Token
	}
	creds, err := m.store.Load()
	if err != nil {
		return ""
	}
	return creds.AccessToken
}

// IsAuthenticated reports whether an access token is available.
func (m *Manager) IsAuthenticated() bool {
	return m.AccessToken() != ""
}

// CachedUser returns the user object persisted at login, or nil.
func (m *Manager) CachedUser() json.RawMessage {
	creds, err := m.store.Load()
	if err != nil {
		return nil
	}
	return creds.User
}

// sessionResponse is the shape shared by login, register, and refresh.
type sessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	User         json.RawMessage `json:"user"`
}

// Login exchanges email/password for a session and persists it.
// The returned payload is the server's user object.
func (m *Manager) Login(ctx context.Context, email, password string) (json.RawMessage, error) {
	body := map[string]string{"email": email, "password": password}

	// Credentials travel in the body; no Authorization header is derived.
	sess, err := m.sessionCall(ctx, "/auth/login", body, false)
	if err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, output.ErrAPI(0, "login response missing access token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	creds := &Credentials{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		User:         sess.User,
	}
	if err := m.store.Save(creds); err != nil {
		return nil, fmt.Errorf("saving credentials: %w", err)
	}
	return sess.User, nil
}

// Register creates an account via the staging-authenticated register
// endpoint. When the response carries tokens, the session is persisted
// like a login.
func (m *Manager) Register(ctx context.Context, payload any) (json.RawMessage, error) {
	sess, err := m.sessionCall(ctx, "/auth/register", payload, true)
	if err != nil {
		return nil, err
	}

	if sess.AccessToken != "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		creds := &Credentials{
			AccessToken:  sess.AccessToken,
			RefreshToken: sess.RefreshToken,
			User:         sess.User,
		}
		if err := m.store.Save(creds); err != nil {
			return nil, fmt.Errorf("saving credentials: %w", err)
		}
	}
	return sess.User, nil
}

// Logout removes stored credentials. Logging out while logged out is fine.
func (m *Manager) Logout() error {
	return m.store.Clear()
}

// RefreshAccessToken performs the bounded refresh cycle and returns the
// new access token. staleToken is the token the caller saw fail with 401;
// when another caller already refreshed past it, the stored token is
// returned without a second network call. Concurrent callers share one
// in-flight refresh.
//
// On any failure (no refresh token, refresh call errors, non-2xx) the
// credentials are cleared and ErrSessionExpired is returned. There is no
// second attempt.
func (m *Manager) RefreshAccessToken(ctx context.Context, staleToken string) (string, error) {
	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		return m.refreshOnce(ctx, staleToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refreshOnce(ctx context.Context, staleToken string) (string, error) {
	m.mu.Lock()
	creds, loadErr := m.store.Load()
	m.mu.Unlock()

	if loadErr != nil || creds.RefreshToken == "" {
		// Nothing to refresh with. No network call is made.
		m.ClearSession()
		return "", output.ErrSessionExpired()
	}

	// A refresh that completed after the caller's 401 already replaced the
	// token; hand the fresh one back instead of burning the refresh token
	// again.
	if staleToken != "" && creds.AccessToken != "" && creds.AccessToken != staleToken {
		return creds.AccessToken, nil
	}

	sess, err := m.sessionCall(ctx, "/auth/refresh", map[string]string{
		"refresh_token": creds.RefreshToken,
	}, true)
	if err != nil {
		// Refresh failed: the session is over regardless of why.
		m.ClearSession()
		expired := output.ErrSessionExpired()
		expired.Cause = err
		return "", expired
	}
	if sess.AccessToken == "" {
		m.ClearSession()
		return "", output.ErrSessionExpired()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	creds.AccessToken = sess.AccessToken
	// The refresh token is replaced only when the server issues a new one.
	if sess.RefreshToken != "" {
		creds.RefreshToken = sess.RefreshToken
	}
	if len(sess.User) > 0 {
		creds.User = sess.User
	}
	if err := m.store.Save(creds); err != nil {
		return "", fmt.Errorf("saving refreshed credentials: %w", err)
	}
	return creds.AccessToken, nil
}

// ClearSession wipes stored credentials and notifies the session-expired
// hook. Safe to call when nothing is stored.
func (m *Manager) ClearSession() {
	_ = m.store.Clear()
	if m.OnSessionExpired != nil {
		m.OnSessionExpired()
	}
}

// sessionCall POSTs a JSON body to an auth endpoint and decodes the
// session-shaped response. withStagingAuth attaches the configured
// staging basic credentials when present.
func (m *Manager) sessionCall(ctx context.Context, path string, payload any, withStagingAuth bool) (*sessionResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := config.NormalizeBaseURL(m.cfg.BaseURL) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if withStagingAuth && m.cfg.StagingUsername != "" {
		req.SetBasicAuth(m.cfg.StagingUsername, m.cfg.StagingPassword)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiErrorFromResponse(resp)
	}

	var sess sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, output.ErrAPI(resp.StatusCode, "invalid response body")
	}
	return &sess, nil
}

// apiErrorFromResponse reads a non-2xx body and extracts the backend's
// detail message, falling back to the status line.
func apiErrorFromResponse(resp *http.Response) *output.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return output.ErrAPIFromBody(resp.StatusCode, body)
}
