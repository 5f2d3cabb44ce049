package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/carbonledger/clq/internal/api"
)

// sensitiveParams are query parameter names that should be scrubbed from trace output.
// This list is intentionally specific to avoid hiding useful debug info.
var sensitiveParams = map[string]bool{
	"access_token":  true, // OAuth tokens
	"refresh_token": true, // OAuth refresh
	"token":         true, // Generic tokens
	"api_key":       true, // API keys
	"apikey":        true, // API keys (no underscore)
	"password":      true, // Passwords
	"passwd":        true, // Passwords (short form)
	"secret":        true, // Generic secrets
	"client_secret": true, // OAuth client secret
	"private_key":   true, // Private keys
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return &TraceWriter{
		writer:    os.Stderr,
		startTime: time.Now(),
	}
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s] -> GET /reports
// Sensitive query parameters are redacted.
func (t *TraceWriter) WriteRequestStart(info api.RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	safeURL := scrubURL(info.URL)
	if info.Attempt == api.AttemptRetry {
		fmt.Fprintf(t.writer, "[%.3fs] -> %s %s (retry)\n", elapsed, info.Method, safeURL)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs] -> %s %s\n", elapsed, info.Method, safeURL)
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s] <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(info api.RequestInfo, result api.RequestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()

	if result.Error != nil {
		fmt.Fprintf(t.writer, "[%.3fs] <- ERROR: %v\n", elapsed, result.Error)
		return
	}

	fmt.Fprintf(t.writer, "[%.3fs] <- %d (%dms)\n", elapsed, result.StatusCode, result.Duration.Milliseconds())
}

// WriteRetry writes a trace line for the post-refresh retry of a request.
// Format: [0.234s] RETRY GET /reports
func (t *TraceWriter) WriteRetry(info api.RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] RETRY %s %s\n", elapsed, info.Method, scrubURL(info.URL))
}

// WriteRefresh writes a trace line for a token refresh attempt.
// Format: [0.234s] REFRESH ok (32ms) or [0.234s] REFRESH failed: session expired
func (t *TraceWriter) WriteRefresh(err error, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()

	if err != nil {
		fmt.Fprintf(t.writer, "[%.3fs] REFRESH failed: %v\n", elapsed, err)
		return
	}

	fmt.Fprintf(t.writer, "[%.3fs] REFRESH ok (%dms)\n", elapsed, duration.Milliseconds())
}

// WriteSummary writes a one-line session summary.
// Format: 3 requests (1 failed), 1 refreshes, 1 retries, 345ms total
func (t *TraceWriter) WriteSummary(m SessionMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.writer, "%d requests (%d failed), %d refreshes, %d retries, %dms total\n",
		m.TotalRequests, m.FailedRequests, m.Refreshes, m.Retries, m.TotalLatency.Milliseconds())
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Don't leak potentially sensitive malformed URLs
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
