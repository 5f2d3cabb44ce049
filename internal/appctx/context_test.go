package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
)

// testApp builds an App against a throwaway config dir so tests never
// touch the real keyring or credential file.
func testApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
	cfg := config.Default()
	cfg.NoKeyring = true
	return NewApp(cfg)
}

func TestNewApp(t *testing.T) {
	t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
	cfg := config.Default()
	cfg.NoKeyring = true
	app := NewApp(cfg)

	if app == nil {
		t.Fatal("NewApp returned nil")
	}
	if app.Config != cfg {
		t.Error("Config not set correctly")
	}
	if app.Auth == nil {
		t.Error("Auth manager not initialized")
	}
	if app.API == nil {
		t.Error("API client not initialized")
	}
	if app.Output == nil {
		t.Error("Output writer not initialized")
	}
	if app.Collector == nil {
		t.Error("Collector not initialized")
	}
	if app.Hooks == nil {
		t.Error("Hooks not initialized")
	}
}

func TestNewAppEnvTokenSkipsCredentialStore(t *testing.T) {
	t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
	cfg := config.Default()
	cfg.NoKeyring = true
	cfg.Token = "env-token"
	app := NewApp(cfg)

	if _, ok := app.Auth.Store().(auth.NullStore); !ok {
		t.Errorf("expected NullStore when a token is injected, got %T", app.Auth.Store())
	}
}

func TestWithAppAndFromContext(t *testing.T) {
	app := testApp(t)

	ctx := context.Background()
	ctxWithApp := WithApp(ctx, app)

	retrieved := FromContext(ctxWithApp)
	if retrieved != app {
		t.Error("FromContext did not retrieve the same app")
	}
}

func TestFromContextEmpty(t *testing.T) {
	ctx := context.Background()
	app := FromContext(ctx)
	if app != nil {
		t.Error("expected nil from empty context")
	}
}

func TestApplyFlagsFormats(t *testing.T) {
	tests := []struct {
		name    string
		setFlag func(*App)
	}{
		{"idsOnly", func(a *App) { a.Flags.IDsOnly = true }},
		{"count", func(a *App) { a.Flags.Count = true }},
		{"quiet", func(a *App) { a.Flags.Quiet = true }},
		{"json", func(a *App) { a.Flags.JSON = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(t)
			tt.setFlag(app)
			app.ApplyFlags()

			if app.Output == nil {
				t.Error("Output should be set after ApplyFlags")
			}
		})
	}
}

func TestApplyFlagsVerbose(t *testing.T) {
	app := testApp(t)
	app.Flags.Verbose = 1 // -v

	app.ApplyFlags()

	if got := app.Hooks.Level(); got != 1 {
		t.Errorf("expected hook level 1, got %d", got)
	}
}

func TestApplyFlagsDebugRaisesVerbosity(t *testing.T) {
	app := testApp(t)
	app.Flags.Debug = true

	app.ApplyFlags()

	if got := app.Hooks.Level(); got != 2 {
		t.Errorf("expected hook level 2 with --debug, got %d", got)
	}
}

func TestApplyFlagsConfigDebugRaisesVerbosity(t *testing.T) {
	app := testApp(t)
	debug := true
	app.Config.Debug = &debug

	app.ApplyFlags()

	if got := app.Hooks.Level(); got != 2 {
		t.Errorf("expected hook level 2 with debug config, got %d", got)
	}
}

func TestApplyFlagsVerboseBeatsDebugFloor(t *testing.T) {
	app := testApp(t)
	app.Flags.Verbose = 2
	app.Flags.Debug = true

	app.ApplyFlags()

	if got := app.Hooks.Level(); got != 2 {
		t.Errorf("expected hook level 2, got %d", got)
	}
}

func TestIsInteractiveWithMachineModes(t *testing.T) {
	tests := []struct {
		name    string
		setFlag func(*App)
	}{
		{"json", func(a *App) { a.Flags.JSON = true }},
		{"quiet", func(a *App) { a.Flags.Quiet = true }},
		{"idsOnly", func(a *App) { a.Flags.IDsOnly = true }},
		{"count", func(a *App) { a.Flags.Count = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(t)
			tt.setFlag(app)

			if app.IsInteractive() {
				t.Error("should not be interactive in machine output mode")
			}
		})
	}
}

func TestNewAppWithFormatConfig(t *testing.T) {
	tests := []struct {
		format string
	}{
		{"json"},
		{"quiet"},
		{"ids"},
		{"count"},
		{""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
			cfg := config.Default()
			cfg.NoKeyring = true
			cfg.Format = tt.format
			app := NewApp(cfg)
			if app.Output == nil {
				t.Error("Output should be set")
			}
		})
	}
}

func TestGlobalFlagsDefaults(t *testing.T) {
	var flags GlobalFlags

	// All booleans should default to false
	if flags.JSON {
		t.Error("JSON should default to false")
	}
	if flags.Quiet {
		t.Error("Quiet should default to false")
	}
	if flags.IDsOnly {
		t.Error("IDsOnly should default to false")
	}
	if flags.Count {
		t.Error("Count should default to false")
	}
	if flags.Debug {
		t.Error("Debug should default to false")
	}
	if flags.Stats {
		t.Error("Stats should default to false")
	}
	if flags.Verbose != 0 {
		t.Error("Verbose should default to 0")
	}

	// All strings should default to empty
	if flags.Profile != "" {
		t.Error("Profile should default to empty")
	}
	if flags.Facility != "" {
		t.Error("Facility should default to empty")
	}
	if flags.BaseURL != "" {
		t.Error("BaseURL should default to empty")
	}
}

// Test app.OK includes stats in the envelope when --stats flag is set
func TestAppOKWithStats(t *testing.T) {
	tests := []struct {
		name        string
		stats       bool
		expectStats bool
	}{
		{"stats off", false, false},
		{"stats on", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(t)

			var buf bytes.Buffer
			app.Output = output.New(output.Options{
				Format: output.FormatJSON,
				Writer: &buf,
			})
			app.Flags.Stats = tt.stats

			if err := app.OK(map[string]string{"test": "data"}); err != nil {
				t.Fatalf("OK() failed: %v", err)
			}

			var resp map[string]any
			if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse JSON output: %v", err)
			}

			meta, hasMeta := resp["meta"].(map[string]any)
			hasStats := hasMeta && meta["stats"] != nil

			if hasStats != tt.expectStats {
				t.Errorf("stats presence = %v, want %v", hasStats, tt.expectStats)
			}
		})
	}
}

// Test app.OK with nil collector doesn't panic
func TestAppOKWithNilCollector(t *testing.T) {
	app := testApp(t)
	app.Collector = nil
	app.Flags.Stats = true

	var buf bytes.Buffer
	app.Output = output.New(output.Options{
		Format: output.FormatJSON,
		Writer: &buf,
	})

	if err := app.OK(map[string]string{"test": "data"}); err != nil {
		t.Errorf("OK with nil collector failed: %v", err)
	}
}

func TestAppErrWritesEnvelope(t *testing.T) {
	app := testApp(t)

	var buf bytes.Buffer
	app.Output = output.New(output.Options{
		Format: output.FormatJSON,
		Writer: &buf,
	})

	if err := app.Err(output.ErrAPI(500, "backend exploded")); err != nil {
		t.Fatalf("Err() failed: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if ok, _ := resp["ok"].(bool); ok {
		t.Error("expected ok=false in error envelope")
	}
	if resp["error"] != "backend exploded" {
		t.Errorf("unexpected error message: %v", resp["error"])
	}
}

// Test isMachineOutput detects flag-driven machine output modes
func TestIsMachineOutputFlags(t *testing.T) {
	tests := []struct {
		name     string
		setFlag  func(*App)
		expected bool
	}{
		{"default", func(a *App) {}, false},
		{"quiet flag", func(a *App) { a.Flags.Quiet = true }, true},
		{"ids-only flag", func(a *App) { a.Flags.IDsOnly = true }, true},
		{"count flag", func(a *App) { a.Flags.Count = true }, true},
		{"json flag", func(a *App) { a.Flags.JSON = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(t)
			tt.setFlag(app)

			if got := app.isMachineOutput(); got != tt.expected {
				t.Errorf("isMachineOutput() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// Test isMachineOutput detects config-driven machine formats
func TestIsMachineOutputConfigFormat(t *testing.T) {
	tests := []struct {
		format   string
		expected bool
	}{
		{"", false},
		{"json", false},
		{"quiet", true},
		{"ids", true},
		{"count", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
			cfg := config.Default()
			cfg.NoKeyring = true
			cfg.Format = tt.format
			app := NewApp(cfg)

			if got := app.isMachineOutput(); got != tt.expected {
				t.Errorf("isMachineOutput() with config format %q = %v, want %v", tt.format, got, tt.expected)
			}
		})
	}
}

func TestSessionExpiredFlag(t *testing.T) {
	app := testApp(t)

	if app.SessionExpired() {
		t.Error("SessionExpired should start false")
	}

	app.Auth.OnSessionExpired()

	if !app.SessionExpired() {
		t.Error("SessionExpired should be true after the hook fires")
	}
}

func TestRequireFacility(t *testing.T) {
	tests := []struct {
		name       string
		facilityID string
		wantErr    bool
	}{
		{"no facility configured", "", true},
		{"facility set", "fac-204", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := testApp(t)
			app.Config.FacilityID = tt.facilityID

			id, err := app.RequireFacility()
			if tt.wantErr {
				if err == nil {
					t.Fatal("RequireFacility() should return error")
				}
				if !strings.Contains(err.Error(), "Facility ID required") {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RequireFacility() should succeed: %v", err)
			}
			if id != tt.facilityID {
				t.Errorf("expected %q, got %q", tt.facilityID, id)
			}
		})
	}
}

func TestStatsPayloadShape(t *testing.T) {
	app := testApp(t)
	got := statsPayload(app.Collector.Summary())

	for _, key := range []string{"requests", "failed", "retries", "refreshes", "latency_ms"} {
		if _, ok := got[key]; !ok {
			t.Errorf("stats payload missing %q", key)
		}
	}
}
