package observability

import (
	"context"
	"sync"
	"time"

	"github.com/carbonledger/clq/internal/api"
)

// Verify CLIHooks implements api.Hooks at compile time.
var _ api.Hooks = (*CLIHooks)(nil)

// CLIHooks implements api.Hooks for CLI observability.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Requests (log HTTP requests)
//   - 2: Requests + auth events (add token refresh and retry lines)
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// OnRequestStart is called before an HTTP request is sent.
func (h *CLIHooks) OnRequestStart(ctx context.Context, info api.RequestInfo) context.Context {
	h.mu.Lock()
	level := h.level
	writer := h.writer
	h.mu.Unlock()

	if level >= 1 && writer != nil {
		writer.WriteRequestStart(info)
	}

	return ctx
}

// OnRequestEnd is called after an HTTP request completes.
func (h *CLIHooks) OnRequestEnd(ctx context.Context, info api.RequestInfo, result api.RequestResult) {
	h.mu.Lock()
	collector := h.collector
	writer := h.writer
	level := h.level
	h.mu.Unlock()

	if collector != nil {
		collector.RecordRequest(RequestMetrics{
			Method:     info.Method,
			URL:        info.URL,
			Attempt:    info.Attempt,
			StatusCode: result.StatusCode,
			Duration:   result.Duration,
			Error:      result.Error,
		})
	}

	if level >= 1 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

// OnRetry is called before the post-refresh retry of a request.
func (h *CLIHooks) OnRetry(ctx context.Context, info api.RequestInfo) {
	h.mu.Lock()
	collector := h.collector
	writer := h.writer
	level := h.level
	h.mu.Unlock()

	if collector != nil {
		collector.RecordRetry()
	}

	if level >= 2 && writer != nil {
		writer.WriteRetry(info)
	}
}

// OnRefresh is called after a token refresh attempt completes.
func (h *CLIHooks) OnRefresh(ctx context.Context, err error, duration time.Duration) {
	h.mu.Lock()
	collector := h.collector
	writer := h.writer
	level := h.level
	h.mu.Unlock()

	if collector != nil {
		collector.RecordRefresh(RefreshMetrics{Duration: duration, Error: err})
	}

	if level >= 2 && writer != nil {
		writer.WriteRefresh(err, duration)
	}
}
