package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/clq/internal/api"
	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
)

// setupConfigTestApp creates a minimal test app for config command tests.
// CLQ_CONFIG_DIR points at a temp dir and the working directory moves to
// another temp dir so local config writes are isolated.
func setupConfigTestApp(t *testing.T, cfg *config.Config) (*appctx.App, *bytes.Buffer) {
	t.Helper()

	t.Setenv("CLQ_CONFIG_DIR", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if cfg == nil {
		cfg = &config.Config{
			BaseURL: "https://api.carbonledger.app",
			Sources: make(map[string]string),
		}
	}
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]string)
	}
	cfg.NoKeyring = true

	buf := &bytes.Buffer{}
	authMgr := auth.NewManager(cfg, auth.NewMemStore(), nil)
	apiClient := api.NewClient(cfg, authMgr, nil)

	app := &appctx.App{
		Config: cfg,
		Auth:   authMgr,
		API:    apiClient,
		Output: output.New(output.Options{
			Format: output.FormatJSON,
			Writer: buf,
		}),
		Flags: appctx.GlobalFlags{
			JSON: true,
		},
	}
	return app, buf
}

// executeConfigCommand executes a cobra command with the given app context and args.
func executeConfigCommand(cmd *cobra.Command, app *appctx.App, args ...string) error {
	cmd.SetArgs(args)
	ctx := appctx.WithApp(context.Background(), app)
	cmd.SetContext(ctx)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

// readLocalConfigFile reads .carbonledger/config.json from the current directory.
func readLocalConfigFile(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(".carbonledger", "config.json"))
	require.NoError(t, err)

	var configData map[string]any
	require.NoError(t, json.Unmarshal(data, &configData))
	return configData
}

// --- atomicWriteJSON tests ---

func TestAtomicWriteJSONOverwriteExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	require.NoError(t, atomicWriteJSON(path, map[string]any{"v": 1}))

	// Overwrite (exercises the Windows pre-remove path)
	require.NoError(t, atomicWriteJSON(path, map[string]any{"v": 2}),
		"overwrite of existing file must succeed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, float64(2), parsed["v"])
}

func TestAtomicWriteJSONPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "secret.json")

	require.NoError(t, atomicWriteJSON(path, map[string]any{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(),
		"file should have restricted permissions")
}

func TestAtomicWriteJSONNoStaleTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	require.NoError(t, atomicWriteJSON(path, map[string]any{}))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != "config.json" {
			t.Errorf("stale temp file left behind: %s", e.Name())
		}
	}
}

// --- parseBoolFlag tests ---

func TestParseBoolFlag(t *testing.T) {
	tests := []struct {
		input string
		value bool
		ok    bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"1", true, true},
		{"yes", true, true},
		{"on", true, true},
		{"false", false, true},
		{"0", false, true},
		{"no", false, true},
		{"off", false, true},
		{" true ", true, true},
		{"maybe", false, false},
		{"", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			value, ok := parseBoolFlag(tt.input)
			assert.Equal(t, tt.ok, ok, "parseBoolFlag(%q) ok", tt.input)
			if tt.ok {
				assert.Equal(t, tt.value, value, "parseBoolFlag(%q) value", tt.input)
			}
		})
	}
}

// --- config set tests ---

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "bogus_key", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid config key")
	assert.Contains(t, err.Error(), "facility_id")
}

func TestConfigSetAuthorityKeyRequiresGlobal(t *testing.T) {
	authorityCases := []string{"base_url", "staging_username", "staging_password", "default_profile"}

	for _, key := range authorityCases {
		t.Run(key, func(t *testing.T) {
			app, _ := setupConfigTestApp(t, nil)

			cmd := newConfigSetCmd()
			err := executeConfigCommand(cmd, app, key, "value")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "only honored in global config")
		})
	}
}

func TestConfigSetFacilityIDLocal(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "facility_id", "fac-42")
	require.NoError(t, err)

	configData := readLocalConfigFile(t)
	assert.Equal(t, "fac-42", configData["facility_id"])

	out := buf.String()
	assert.Contains(t, out, `"scope": "local"`)
	assert.Contains(t, out, `"status": "set"`)
}

func TestConfigSetBaseURLGlobal(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "--global", "base_url", "staging.carbonledger.app")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(config.GlobalConfigDir(), "config.json"))
	require.NoError(t, err)

	var configData map[string]any
	require.NoError(t, json.Unmarshal(data, &configData))
	assert.Equal(t, "https://staging.carbonledger.app", configData["base_url"],
		"bare host should be normalized to https")
}

func TestConfigSetBaseURLRejectsInsecure(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "--global", "base_url", "http://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure http://")
}

func TestConfigSetBoolKey(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "no_keyring", "yes")
	require.NoError(t, err)

	configData := readLocalConfigFile(t)
	assert.Equal(t, true, configData["no_keyring"])

	out := buf.String()
	assert.Contains(t, out, `"value": "true"`)
}

func TestConfigSetBoolKeyRejectsGarbage(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "debug", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be true/false")
}

func TestConfigSetFormatValidation(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	err := executeConfigCommand(newConfigSetCmd(), app, "format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be json, quiet, ids, or count")

	err = executeConfigCommand(newConfigSetCmd(), app, "format", "quiet")
	require.NoError(t, err)

	configData := readLocalConfigFile(t)
	assert.Equal(t, "quiet", configData["format"])
}

func TestConfigSetDefaultProfileValidatesAgainstProfiles(t *testing.T) {
	app, _ := setupConfigTestApp(t, nil)

	// Global config has one profile
	require.NoError(t, os.MkdirAll(config.GlobalConfigDir(), 0700))
	require.NoError(t, atomicWriteJSON(
		filepath.Join(config.GlobalConfigDir(), "config.json"),
		map[string]any{
			"profiles": map[string]any{
				"staging": map[string]any{"base_url": "https://staging.carbonledger.app"},
			},
		}))

	err := executeConfigCommand(newConfigSetCmd(), app, "--global", "default_profile", "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "staging")

	err = executeConfigCommand(newConfigSetCmd(), app, "--global", "default_profile", "staging")
	require.NoError(t, err)
}

func TestConfigSetStagingPasswordMasked(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigSetCmd()
	err := executeConfigCommand(cmd, app, "--global", "staging_password", "hunter2")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"value": "(set)"`)
	assert.NotContains(t, out, "hunter2")

	// The file itself stores the real value
	data, err := os.ReadFile(filepath.Join(config.GlobalConfigDir(), "config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hunter2")
}

// --- config unset tests ---

func TestConfigUnsetMissingFile(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigUnsetCmd()
	err := executeConfigCommand(cmd, app, "facility_id")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "not_found"`)
}

func TestConfigUnsetKeyNotSet(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	require.NoError(t, os.MkdirAll(".carbonledger", 0700))
	require.NoError(t, os.WriteFile(filepath.Join(".carbonledger", "config.json"),
		[]byte(`{"format": "quiet"}`), 0600))

	cmd := newConfigUnsetCmd()
	err := executeConfigCommand(cmd, app, "facility_id")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "not_set"`)
}

func TestConfigUnsetRemovesKey(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	require.NoError(t, os.MkdirAll(".carbonledger", 0700))
	require.NoError(t, os.WriteFile(filepath.Join(".carbonledger", "config.json"),
		[]byte(`{"facility_id": "fac-1", "format": "quiet"}`), 0600))

	cmd := newConfigUnsetCmd()
	err := executeConfigCommand(cmd, app, "facility_id")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "unset"`)

	configData := readLocalConfigFile(t)
	assert.NotContains(t, configData, "facility_id")
	assert.Equal(t, "quiet", configData["format"], "other keys should remain")
}

// --- config init tests ---

func TestConfigInitCreatesLocalFile(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigInitCmd()
	err := executeConfigCommand(cmd, app)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(".carbonledger", "config.json"))
	assert.Contains(t, buf.String(), `"created": true`)
}

func TestConfigInitExistingFile(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	require.NoError(t, executeConfigCommand(newConfigInitCmd(), app))

	buf.Reset()
	require.NoError(t, executeConfigCommand(newConfigInitCmd(), app))
	assert.Contains(t, buf.String(), `"exists": true`)
}

// --- config show tests ---

func TestConfigShowReportsValuesAndSources(t *testing.T) {
	debug := true
	cfg := &config.Config{
		BaseURL:         "https://api.carbonledger.app",
		FacilityID:      "fac-1",
		StagingUsername: "gateway",
		StagingPassword: "secret",
		Format:          "json",
		Debug:           &debug,
		ActiveProfile:   "staging",
		Sources: map[string]string{
			"base_url":    "global",
			"facility_id": "env",
		},
	}
	app, buf := setupConfigTestApp(t, cfg)

	cmd := newConfigShowCmd()
	err := executeConfigCommand(cmd, app)
	require.NoError(t, err)

	var result struct {
		Data map[string]map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))

	assert.Equal(t, "https://api.carbonledger.app", result.Data["base_url"]["value"])
	assert.Equal(t, "global", result.Data["base_url"]["source"])
	assert.Equal(t, "fac-1", result.Data["facility_id"]["value"])
	assert.Equal(t, "env", result.Data["facility_id"]["source"])
	assert.Equal(t, "(set)", result.Data["staging_password"]["value"],
		"staging password should be masked")
	assert.Equal(t, "default", result.Data["staging_username"]["source"],
		"missing source should fall back to default")
	assert.Equal(t, "true", result.Data["debug"]["value"])
	assert.Equal(t, "runtime", result.Data["active_profile"]["source"])

	assert.NotContains(t, buf.String(), "secret")
}

func TestConfigShowOmitsUnsetKeys(t *testing.T) {
	app, buf := setupConfigTestApp(t, nil)

	cmd := newConfigShowCmd()
	err := executeConfigCommand(cmd, app)
	require.NoError(t, err)

	var result struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))

	assert.Contains(t, result.Data, "base_url")
	assert.NotContains(t, result.Data, "facility_id")
	assert.NotContains(t, result.Data, "token")
	assert.NotContains(t, result.Data, "debug")
}

// --- config facility tests ---

func TestConfigFacilityNoFacilities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/facilities", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := &config.Config{
		BaseURL: server.URL,
		Sources: make(map[string]string),
	}
	app, _ := setupConfigTestApp(t, cfg)

	cmd := newConfigFacilityCmd()
	err := executeConfigCommand(cmd, app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No facilities available")
}
