// Package api provides the HTTP client for the CarbonLedger API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
	"github.com/carbonledger/clq/internal/version"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 1 << 20

// Attempt marks whether a request is the first execution of a logical call
// or the single retry allowed after a token refresh. The retry branch has
// no further retry path.
type Attempt int

const (
	AttemptFirst Attempt = iota
	AttemptRetry
)

func (a Attempt) String() string {
	if a == AttemptRetry {
		return "retry"
	}
	return "first"
}

// RequestOptions shapes a single request.
type RequestOptions struct {
	// Body is JSON-encoded when RawBody is nil.
	Body any

	// RawBody is sent verbatim, for multipart payloads. The caller
	// supplies the matching Content-Type through Headers.
	RawBody []byte

	// Headers replace the default headers when non-nil. An empty non-nil
	// map suppresses the JSON Content-Type entirely, which is how
	// multipart callers keep their boundary header intact. The derived
	// Authorization header is always set last and cannot be overridden.
	Headers map[string]string
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Client is an HTTP client for the CarbonLedger API.
type Client struct {
	httpClient *http.Client
	auth       *auth.Manager
	cfg        *config.Config
	logger     *slog.Logger
	hooks      Hooks
}

// NewClient creates an API client. A nil httpClient gets a pooled default
// with no request timeout.
func NewClient(cfg *config.Config, authMgr *auth.Manager, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		httpClient: httpClient,
		auth:       authMgr,
		cfg:        cfg,
	}
}

// SetLogger installs a debug logger. A nil logger disables logging.
func (c *Client) SetLogger(l *slog.Logger) {
	c.logger = l
}

// SetHooks installs lifecycle hooks. A nil value disables them.
func (c *Client) SetHooks(h Hooks) {
	c.hooks = h
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, &RequestOptions{Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, &RequestOptions{Body: body})
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, &RequestOptions{Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do performs a request against the configured API. On a first-attempt 401
// it refreshes the access token and retries the original request exactly
// once; every other failure maps onto the structured error taxonomy.
func (c *Client) Do(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	return c.execute(ctx, method, path, opts, AttemptFirst)
}

func (c *Client) execute(ctx context.Context, method, path string, opts *RequestOptions, attempt Attempt) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	url := c.cfg.BaseURL + path

	var bodyReader io.Reader
	switch {
	case opts.RawBody != nil:
		bodyReader = bytes.NewReader(opts.RawBody)
	case opts.Body != nil:
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	info := RequestInfo{Method: method, URL: url, Attempt: attempt}
	if c.hooks != nil {
		ctx = c.hooks.OnRequestStart(ctx, info)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-Id", uuid.NewString())
	if opts.Headers == nil {
		req.Header.Set("Content-Type", "application/json")
	} else {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	// Authorization is derived last; caller headers never override it.
	token := c.auth.AccessToken()
	if h := Authorization(Classify(path), token, c.cfg.StagingUsername, c.cfg.StagingPassword); h != "" {
		req.Header.Set("Authorization", h)
	}

	c.logDebug("api request", "method", method, "url", url, "attempt", attempt.String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := output.ErrNetwork(err)
		c.finish(ctx, info, RequestResult{Duration: time.Since(start), Error: netErr})
		return nil, netErr
	}
	defer resp.Body.Close()

	c.logDebug("api response", "status", resp.StatusCode, "url", url)
	c.finish(ctx, info, RequestResult{StatusCode: resp.StatusCode, Duration: time.Since(start)})

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return &Response{Data: json.RawMessage(`{}`), StatusCode: resp.StatusCode, Headers: resp.Header}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, output.ErrNetwork(err)
		}
		return &Response{Data: data, StatusCode: resp.StatusCode, Headers: resp.Header}, nil

	case resp.StatusCode == http.StatusUnauthorized && attempt == AttemptFirst:
		refreshStart := time.Now()
		_, refreshErr := c.auth.RefreshAccessToken(ctx, token)
		if c.hooks != nil {
			c.hooks.OnRefresh(ctx, refreshErr, time.Since(refreshStart))
		}
		if refreshErr != nil {
			return nil, refreshErr
		}
		if c.hooks != nil {
			c.hooks.OnRetry(ctx, info)
		}
		return c.execute(ctx, method, path, opts, AttemptRetry)

	case resp.StatusCode == http.StatusUnauthorized:
		// Second 401 for this logical call. Credentials are wiped and the
		// session-expiry hook routes the user back to login.
		c.auth.ClearSession()
		return nil, output.ErrAuthRequired()

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, output.ErrAPIFromBody(resp.StatusCode, body)
	}
}

// getData and postData are the plumbing behind the per-resource wrappers,
// which add nothing beyond URL and body shaping.

func (c *Client) getData(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) postData(ctx context.Context, path string, body any) (json.RawMessage, error) {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) finish(ctx context.Context, info RequestInfo, result RequestResult) {
	if c.hooks != nil {
		c.hooks.OnRequestEnd(ctx, info, result)
	}
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
