package api

import (
	"context"
	"time"
)

// RequestInfo describes an HTTP request about to be executed.
type RequestInfo struct {
	Method  string
	URL     string
	Attempt Attempt
}

// RequestResult describes how a request finished. StatusCode is zero when
// the transport failed before producing a response.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
}

// Hooks receives client lifecycle events. Implementations must be safe
// for concurrent use; all methods are called synchronously on the request
// path and should return quickly.
type Hooks interface {
	// OnRequestStart is called before a request is sent. The returned
	// context is used for the rest of the request.
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context

	// OnRequestEnd is called after a request completes or fails.
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)

	// OnRetry is called before the single post-refresh retry of a request
	// that failed with 401.
	OnRetry(ctx context.Context, info RequestInfo)

	// OnRefresh is called after a token refresh attempt completes.
	OnRefresh(ctx context.Context, err error, duration time.Duration)
}
