// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/carbonledger/clq/internal/api"
	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/observability"
	"github.com/carbonledger/clq/internal/output"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Auth   *auth.Manager
	API    *api.Client
	Output *output.Writer

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	sessionExpired atomic.Bool
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON    bool
	Quiet   bool
	IDsOnly bool
	Count   bool
	Format  string

	// Context flags
	Profile  string
	Facility string
	BaseURL  string

	// Behavior flags
	Verbose int // 0=off, 1=requests, 2=requests+auth events (stacks with -v -v or -vv)
	Debug   bool
	Stats   bool
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config) *App {
	// Shared HTTP client for both the auth manager and the API client so
	// they reuse one connection pool.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Credential store bound to the target origin. A token injected via
	// CLQ_TOKEN bypasses persistence entirely so an env token can never
	// clobber a stored session.
	var store auth.CredentialStore
	if cfg.Token != "" {
		store = auth.NullStore{}
	} else {
		store = auth.NewStore(cfg.BaseURL, config.GlobalConfigDir(), cfg.NoKeyring)
	}

	authMgr := auth.NewManager(cfg, store, httpClient)

	// Create observability components
	// Collector always runs to gather stats; hooks control output verbosity
	// Level 0 initially; ApplyFlags sets the actual level from -v flags
	collector := observability.NewSessionCollector()
	traceWriter := observability.NewTraceWriter()
	hooks := observability.NewCLIHooks(0, collector, traceWriter)

	apiClient := api.NewClient(cfg, authMgr, httpClient)
	apiClient.SetHooks(hooks)

	// Determine output format from config (default to json)
	format := output.FormatJSON
	switch cfg.Format {
	case "quiet":
		format = output.FormatQuiet
	case "ids":
		format = output.FormatIDs
	case "count":
		format = output.FormatCount
	}

	app := &App{
		Config:    cfg,
		Auth:      authMgr,
		API:       apiClient,
		Collector: collector,
		Hooks:     hooks,
		Output: output.New(output.Options{
			Format: format,
			Writer: os.Stdout,
		}),
	}

	// The client wipes credentials on a post-refresh 401. Remember that it
	// happened so the error funnel can point the user back to login even
	// when a command wraps or replaces the original error.
	authMgr.OnSessionExpired = func() {
		app.sessionExpired.Store(true)
	}

	return app
}

// SessionExpired reports whether credentials were cleared during this run.
func (a *App) SessionExpired() bool {
	return a.sessionExpired.Load()
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	// Apply output format from flags (order matters: specific modes first)
	if a.Flags.IDsOnly {
		a.Output = output.New(output.Options{
			Format: output.FormatIDs,
			Writer: os.Stdout,
		})
	} else if a.Flags.Count {
		a.Output = output.New(output.Options{
			Format: output.FormatCount,
			Writer: os.Stdout,
		})
	} else if a.Flags.Quiet {
		a.Output = output.New(output.Options{
			Format: output.FormatQuiet,
			Writer: os.Stdout,
		})
	} else if a.Flags.JSON {
		a.Output = output.New(output.Options{
			Format: output.FormatJSON,
			Writer: os.Stdout,
		})
	}

	// Determine verbosity level from flags and the persisted debug setting
	verboseLevel := a.Flags.Verbose
	if a.Flags.Debug && verboseLevel < 2 {
		verboseLevel = 2
	}
	if a.Config != nil && a.Config.Debug != nil && *a.Config.Debug && verboseLevel < 2 {
		verboseLevel = 2
	}

	// Apply verbose level to hooks for trace output
	if a.Hooks != nil {
		a.Hooks.SetLevel(verboseLevel)
	}

	// Apply verbose mode - enable debug logging via slog
	if verboseLevel > 0 {
		debugLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		a.API.SetLogger(debugLogger)
	}
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", statsPayload(a.Collector.Summary())))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	// Print the error response first
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}

	// A session expiry may be swallowed by whatever error the command
	// surfaced. Point the user back to login unless the printed error
	// already did.
	if a.SessionExpired() && !output.AsError(err).CredentialsCleared && !a.isMachineOutput() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'clq auth login' to sign in again.")
	}

	// Print stats to stderr if enabled, but not in machine-consumable modes
	// (quiet, ids-only, count are meant for programmatic consumption)
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		stats := a.Collector.Summary()
		a.printStatsToStderr(&stats)
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
// Checks both flags and config-driven format settings.
func (a *App) isMachineOutput() bool {
	// Flag-driven machine output modes
	if a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count {
		return true
	}
	// Config-driven machine formats (format: "quiet" etc. in config file)
	if a.Config != nil {
		switch a.Config.Format {
		case "quiet", "ids", "count":
			return true
		}
	}
	return false
}

// statsPayload shapes session metrics for the response envelope.
func statsPayload(m observability.SessionMetrics) map[string]any {
	return map[string]any{
		"requests":   m.TotalRequests,
		"failed":     m.FailedRequests,
		"retries":    m.Retries,
		"refreshes":  m.Refreshes,
		"latency_ms": m.TotalLatency.Milliseconds(),
	}
}

// printStatsToStderr outputs a compact stats line to stderr.
func (a *App) printStatsToStderr(stats *observability.SessionMetrics) {
	if stats == nil {
		return
	}

	var parts []string

	// Duration
	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	// Requests
	if stats.TotalRequests > 0 {
		if stats.TotalRequests == 1 {
			parts = append(parts, "1 request")
		} else {
			parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
		}
	}

	// Retries
	if stats.Retries > 0 {
		if stats.Retries == 1 {
			parts = append(parts, "1 retry")
		} else {
			parts = append(parts, fmt.Sprintf("%d retries", stats.Retries))
		}
	}

	// Refreshes
	if stats.Refreshes > 0 {
		if stats.Refreshes == 1 {
			parts = append(parts, "1 refresh")
		} else {
			parts = append(parts, fmt.Sprintf("%d refreshes", stats.Refreshes))
		}
	}

	// Failed requests
	if stats.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedRequests))
	}

	if len(parts) > 0 {
		fmt.Fprintf(os.Stderr, "\nStats: %s\n", strings.Join(parts, " | "))
	}
}

// RequireFacility returns the configured facility ID or a usage error.
// Facility IDs are opaque to the CLI; only presence is checked.
func (a *App) RequireFacility() (string, error) {
	if a.Config == nil || a.Config.FacilityID == "" {
		return "", output.ErrUsageHint("Facility ID required",
			"Set one with --facility, CLQ_FACILITY_ID, or 'clq config set facility_id <id>'")
	}
	return a.Config.FacilityID, nil
}

// IsInteractive returns true if stdin and stdout are attached to a terminal.
func (a *App) IsInteractive() bool {
	// Not interactive if any non-interactive output mode is set
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count {
		return false
	}

	// Check if stdout is a terminal
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}

	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
