package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/hostutil"
	"github.com/carbonledger/clq/internal/output"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage clq configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > local > repo > global > system > defaults

Config locations:
  - System: /etc/carbonledger/config.json
  - Global: ~/.config/carbonledger/config.json
  - Repo:   <git-root>/.carbonledger/config.json
  - Local:  .carbonledger/config.json

Authority keys (base_url, staging credentials, profiles, default_profile)
are only honored from system and global config. Local and repo config can
set per-directory defaults like facility_id and format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigFacilityCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	configData := make(map[string]any)

	keys := []struct {
		key     string
		value   string
		include bool
	}{
		{"base_url", app.Config.BaseURL, app.Config.BaseURL != ""},
		{"facility_id", app.Config.FacilityID, app.Config.FacilityID != ""},
		{"staging_username", app.Config.StagingUsername, app.Config.StagingUsername != ""},
		{"staging_password", "(set)", app.Config.StagingPassword != ""},
		{"format", app.Config.Format, app.Config.Format != ""},
		{"default_profile", app.Config.DefaultProfile, app.Config.DefaultProfile != ""},
		{"no_keyring", fmt.Sprintf("%t", app.Config.NoKeyring), app.Config.Sources["no_keyring"] != "" || app.Config.NoKeyring},
		{"debug", fmt.Sprintf("%t", app.Config.Debug != nil && *app.Config.Debug), app.Config.Debug != nil},
		{"token", "(set)", app.Config.Token != ""},
	}

	for _, k := range keys {
		if k.include {
			source := app.Config.Sources[k.key]
			if source == "" {
				source = "default"
			}
			configData[k.key] = map[string]string{
				"value":  k.value,
				"source": source,
			}
		}
	}

	if app.Config.ActiveProfile != "" {
		configData["active_profile"] = map[string]string{
			"value":  app.Config.ActiveProfile,
			"source": "runtime",
		}
	}

	return app.OK(configData, output.WithSummary("Effective configuration"))
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize local config file",
		Long:  "Create a local .carbonledger/config.json file in the current directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			configDir := ".carbonledger"
			configFile := filepath.Join(configDir, "config.json")

			if _, err := os.Stat(configFile); err == nil {
				return app.OK(map[string]any{
					"exists": true,
					"path":   configFile,
				}, output.WithSummary(fmt.Sprintf("Config file already exists: %s", configFile)))
			}

			if err := os.MkdirAll(configDir, 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if err := os.WriteFile(configFile, []byte("{}\n"), 0600); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			return app.OK(map[string]any{
				"created": true,
				"path":    configFile,
			}, output.WithSummary(fmt.Sprintf("Created: %s", configFile)))
		},
	}
}

// authorityKeys are only honored from system/global config, so writing them
// locally would silently do nothing. Force --global for these.
var authorityKeys = map[string]bool{
	"base_url":         true,
	"staging_username": true,
	"staging_password": true,
	"default_profile":  true,
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the local or global config file.

Valid keys: base_url, facility_id, staging_username, staging_password,
            format, default_profile, no_keyring, debug

Authority keys (base_url, staging credentials, default_profile) can only
be set with --global.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			key := args[0]
			value := args[1]

			validKeys := map[string]bool{
				"base_url":         true,
				"facility_id":      true,
				"staging_username": true,
				"staging_password": true,
				"format":           true,
				"default_profile":  true,
				"no_keyring":       true,
				"debug":            true,
			}
			if !validKeys[key] {
				names := make([]string, 0, len(validKeys))
				for k := range validKeys {
					names = append(names, k)
				}
				sort.Strings(names)
				return output.ErrUsage(fmt.Sprintf("Invalid config key %q. Valid keys: %s", key, strings.Join(names, ", ")))
			}

			if authorityKeys[key] && !global {
				return output.ErrUsageHint(
					fmt.Sprintf("%s is only honored in global config", key),
					fmt.Sprintf("Use: clq config set --global %s <value>", key))
			}

			var configPath string
			var scope string

			if global {
				scope = "global"
				configPath = filepath.Join(config.GlobalConfigDir(), "config.json")
			} else {
				scope = "local"
				configPath = filepath.Join(".carbonledger", "config.json")
			}

			configDir := filepath.Dir(configPath)
			if err := os.MkdirAll(configDir, 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Load existing config or start fresh if missing/invalid
			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			}

			// Validate default_profile against configured profiles
			if key == "default_profile" {
				profiles, _ := configData["profiles"].(map[string]any)
				if len(profiles) > 0 {
					if _, ok := profiles[value]; !ok {
						names := make([]string, 0, len(profiles))
						for name := range profiles {
							names = append(names, name)
						}
						sort.Strings(names)
						return output.ErrUsage(fmt.Sprintf("profile %q not found (available: %s)", value, strings.Join(names, ", ")))
					}
				}
			}

			// Set value with type-specific validation
			valueOut := value
			switch key {
			case "no_keyring", "debug":
				boolVal, ok := parseBoolFlag(value)
				if !ok {
					return output.ErrUsage(fmt.Sprintf("%s must be true/false (or 1/0)", key))
				}
				configData[key] = boolVal
				valueOut = fmt.Sprintf("%t", boolVal)
			case "format":
				switch value {
				case "json", "quiet", "ids", "count":
					configData[key] = value
				default:
					return output.ErrUsage("format must be json, quiet, ids, or count")
				}
			case "base_url":
				normalized := config.NormalizeBaseURL(value)
				if err := hostutil.RequireSecureURL(normalized); err != nil {
					return output.ErrUsage(err.Error())
				}
				configData[key] = normalized
				valueOut = normalized
			default:
				configData[key] = value
			}

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			displayValue := valueOut
			if key == "staging_password" {
				displayValue = "(set)"
			}

			return app.OK(map[string]any{
				"key":    key,
				"value":  displayValue,
				"scope":  scope,
				"path":   configPath,
				"status": "set",
			}, output.WithSummary(fmt.Sprintf("Set %s = %s (%s)", key, displayValue, scope)))
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Set in global config (~/.config/carbonledger/)")
	// Note: local is the default, so no --local flag needed

	return cmd
}

func newConfigUnsetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Unset a configuration value",
		Long:  "Remove a configuration value from the local or global config file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			key := args[0]

			var configPath string
			var scope string

			if global {
				scope = "global"
				configPath = filepath.Join(config.GlobalConfigDir(), "config.json")
			} else {
				scope = "local"
				configPath = filepath.Join(".carbonledger", "config.json")
			}

			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			} else {
				return app.OK(map[string]any{
					"key":    key,
					"status": "not_found",
				}, output.WithSummary(fmt.Sprintf("Config file not found: %s", configPath)))
			}

			if _, exists := configData[key]; !exists {
				return app.OK(map[string]any{
					"key":    key,
					"status": "not_set",
				}, output.WithSummary(fmt.Sprintf("Key not set: %s", key)))
			}

			delete(configData, key)

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"key":    key,
				"scope":  scope,
				"status": "unset",
			}, output.WithSummary(fmt.Sprintf("Unset %s (%s)", key, scope)))
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Unset from global config")

	return cmd
}

func newConfigFacilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "facility",
		Short: "Select default facility",
		Long:  "Interactively select a facility and set it as the default in local config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			data, err := app.API.ListFacilities(cmd.Context())
			if err != nil {
				return err
			}

			var facilities []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.Unmarshal(data, &facilities); err != nil {
				return fmt.Errorf("failed to parse facilities: %w", err)
			}

			if len(facilities) == 0 {
				return output.ErrAPI(0, "No facilities available")
			}

			fmt.Println("Available facilities:")
			fmt.Println()
			for i, f := range facilities {
				fmt.Printf("%d. %s (%s)\n", i+1, f.Name, f.ID)
			}
			fmt.Println()

			fmt.Printf("Select facility (1-%d): ", len(facilities))
			var selection int
			if _, err := fmt.Scanf("%d", &selection); err != nil || selection < 1 || selection > len(facilities) {
				return output.ErrUsage("Invalid selection")
			}

			selected := facilities[selection-1]

			configPath := filepath.Join(".carbonledger", "config.json")
			if err := os.MkdirAll(".carbonledger", 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			}

			configData["facility_id"] = selected.ID

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"facility_id":   selected.ID,
				"facility_name": selected.Name,
				"status":        "set",
			}, output.WithSummary(fmt.Sprintf("Set facility_id = %s (%s)", selected.ID, selected.Name)))
		},
	}
}

func parseBoolFlag(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// atomicWriteJSON writes configData as indented JSON to path using a temp
// file + rename. Files are created with 0600 permissions.
func atomicWriteJSON(path string, configData map[string]any) error {
	data, err := json.MarshalIndent(configData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Unix: rename atomically replaces the destination.
	// Windows: rename fails when destination exists, so remove and retry.
	if err := os.Rename(tmpPath, path); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(path)
			return os.Rename(tmpPath, path)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
