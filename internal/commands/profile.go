package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/hostutil"
	"github.com/carbonledger/clq/internal/output"
)

// NewProfileCmd creates the profile command group.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage named profiles",
		Long: `Manage named profiles that bundle a server with per-environment defaults.

Profiles let you switch between environments (production, staging, a local
backend) without retyping --base-url and --facility every time.

Examples:
  clq profile list                      # List all profiles
  clq profile show staging              # Show profile details
  clq profile create staging --base-url staging.carbonledger.app
  clq profile set-default staging       # Use it when no --profile is given
  clq --profile staging auth login      # Authenticate against its server`,
	}

	cmd.AddCommand(
		newProfileListCmd(),
		newProfileShowCmd(),
		newProfileCreateCmd(),
		newProfileDeleteCmd(),
		newProfileSetDefaultCmd(),
	)

	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		Long:  "List all configured profiles with their base URL and defaults.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if len(app.Config.Profiles) == 0 {
				return app.OK([]any{}, output.WithSummary("No profiles configured"))
			}

			names := make([]string, 0, len(app.Config.Profiles))
			for name := range app.Config.Profiles {
				names = append(names, name)
			}
			sort.Strings(names)

			profiles := make([]map[string]any, 0, len(names))
			for _, name := range names {
				p := app.Config.Profiles[name]
				entry := map[string]any{
					"name":     name,
					"base_url": p.BaseURL,
				}
				if p.FacilityID != "" {
					entry["facility_id"] = p.FacilityID
				}
				if p.Format != "" {
					entry["format"] = p.Format
				}
				if app.Config.DefaultProfile == name {
					entry["default"] = true
				}
				if app.Config.ActiveProfile == name {
					entry["active"] = true
				}
				profiles = append(profiles, entry)
			}

			return app.OK(profiles, output.WithSummary(fmt.Sprintf("%d profile(s)", len(profiles))))
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show profile details",
		Long:  "Show configuration and authentication status for a profile.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			var name string
			if len(args) > 0 {
				name = args[0]
			} else if app.Config.ActiveProfile != "" {
				name = app.Config.ActiveProfile
			} else if app.Config.DefaultProfile != "" {
				name = app.Config.DefaultProfile
			} else {
				return output.ErrUsage("Profile name required (no active or default profile)")
			}

			p, ok := app.Config.Profiles[name]
			if !ok {
				return output.ErrUsage(fmt.Sprintf("Profile %q not found", name))
			}

			result := map[string]any{
				"name":     name,
				"base_url": p.BaseURL,
			}
			if p.FacilityID != "" {
				result["facility_id"] = p.FacilityID
			}
			if p.Format != "" {
				result["format"] = p.Format
			}
			if p.StagingUsername != "" {
				result["staging_username"] = p.StagingUsername
			}
			if app.Config.DefaultProfile == name {
				result["default"] = true
			}

			// Credentials are keyed by origin, so check the store bound to
			// this profile's server. Reuse the session store's keyring
			// decision to avoid probing the keyring again.
			origin := config.NormalizeBaseURL(p.BaseURL)
			noKeyring := app.Config.NoKeyring
			if s, ok := app.Auth.Store().(*auth.Store); ok && !s.UsingKeyring() {
				noKeyring = true
			}
			store := auth.NewStore(origin, config.GlobalConfigDir(), noKeyring)
			creds, err := store.Load()
			if err == nil && creds.AccessToken != "" {
				result["authenticated"] = true
				result["has_refresh_token"] = creds.RefreshToken != ""
			} else {
				result["authenticated"] = false
			}

			return app.OK(result, output.WithSummary(fmt.Sprintf("Profile: %s", name)))
		},
	}
}

func newProfileCreateCmd() *cobra.Command {
	var baseURL string
	var facilityID string
	var format string
	var stagingUsername string
	var stagingPassword string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new profile",
		Long: `Create a new named profile in the global config.

The first profile created becomes the default. Creating a profile does not
authenticate; run 'clq --profile <name> auth login' afterward.

Examples:
  clq profile create production
  clq profile create staging --base-url staging.carbonledger.app --facility fac-7
  clq profile create local --base-url http://localhost:8000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			name := args[0]

			// Profile names end up in config keys and error messages
			if !isValidProfileName(name) {
				return output.ErrUsage(fmt.Sprintf("Invalid profile name %q: use only letters, numbers, hyphens, and underscores", name))
			}

			if app.Config.Profiles != nil {
				if _, exists := app.Config.Profiles[name]; exists {
					return output.ErrUsage(fmt.Sprintf("Profile %q already exists", name))
				}
			}

			if baseURL == "" {
				baseURL = "https://api.carbonledger.app"
			}
			baseURL = config.NormalizeBaseURL(baseURL)
			if err := hostutil.RequireSecureURL(baseURL); err != nil {
				return output.ErrUsage(err.Error())
			}

			if format != "" && format != "json" && format != "quiet" && format != "ids" && format != "count" {
				return output.ErrUsage("format must be json, quiet, ids, or count")
			}

			configPath := filepath.Join(config.GlobalConfigDir(), "config.json")
			if err := os.MkdirAll(config.GlobalConfigDir(), 0700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			}

			profilesMap, _ := configData["profiles"].(map[string]any)
			if profilesMap == nil {
				profilesMap = make(map[string]any)
			}

			profileEntry := map[string]any{
				"base_url": baseURL,
			}
			if facilityID != "" {
				profileEntry["facility_id"] = facilityID
			}
			if format != "" {
				profileEntry["format"] = format
			}
			if stagingUsername != "" {
				profileEntry["staging_username"] = stagingUsername
			}
			if stagingPassword != "" {
				profileEntry["staging_password"] = stagingPassword
			}
			profilesMap[name] = profileEntry
			configData["profiles"] = profilesMap

			// First profile becomes the default
			isDefault := len(profilesMap) == 1
			if isDefault {
				configData["default_profile"] = name
			}

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			// Keep the in-memory config consistent for anything that runs
			// after this command in the same process
			if app.Config.Profiles == nil {
				app.Config.Profiles = make(map[string]*config.ProfileConfig)
			}
			app.Config.Profiles[name] = &config.ProfileConfig{
				BaseURL:         baseURL,
				FacilityID:      facilityID,
				Format:          format,
				StagingUsername: stagingUsername,
				StagingPassword: stagingPassword,
			}
			if isDefault {
				app.Config.DefaultProfile = name
			}

			result := map[string]any{
				"name":     name,
				"base_url": baseURL,
			}
			if facilityID != "" {
				result["facility_id"] = facilityID
			}
			if isDefault {
				result["default"] = true
			}

			return app.OK(result, output.WithSummary(fmt.Sprintf("Created profile %q", name)))
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default: https://api.carbonledger.app)")
	cmd.Flags().StringVar(&facilityID, "facility", "", "Default facility ID for this profile")
	cmd.Flags().StringVar(&format, "format", "", "Default output format for this profile")
	cmd.Flags().StringVar(&stagingUsername, "staging-username", "", "Staging gateway username")
	cmd.Flags().StringVar(&stagingPassword, "staging-password", "", "Staging gateway password")

	return cmd
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Long: `Remove a profile from the global config.

Credentials are stored per server origin, not per profile, and are left
untouched. To also log out of the profile's server, run
'clq --profile <name> auth logout' before deleting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			name := args[0]

			if app.Config.Profiles == nil {
				return output.ErrUsage(fmt.Sprintf("Profile %q not found", name))
			}
			if _, ok := app.Config.Profiles[name]; !ok {
				return output.ErrUsage(fmt.Sprintf("Profile %q not found", name))
			}

			configPath := filepath.Join(config.GlobalConfigDir(), "config.json")
			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			}

			if profilesMap, ok := configData["profiles"].(map[string]any); ok {
				delete(profilesMap, name)
				if len(profilesMap) == 0 {
					delete(configData, "profiles")
				}
			}

			// Clear default_profile if it pointed at this profile
			if dp, ok := configData["default_profile"].(string); ok && dp == name {
				delete(configData, "default_profile")
			}

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			delete(app.Config.Profiles, name)
			if app.Config.DefaultProfile == name {
				app.Config.DefaultProfile = ""
			}

			return app.OK(map[string]any{
				"name":   name,
				"status": "deleted",
			}, output.WithSummary(fmt.Sprintf("Deleted profile %q", name)))
		},
	}
}

func newProfileSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <name>",
		Short: "Set the default profile",
		Long:  "Set which profile is used when no --profile flag is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			name := args[0]

			if app.Config.Profiles == nil {
				return output.ErrUsage(fmt.Sprintf("Profile %q not found", name))
			}
			if _, ok := app.Config.Profiles[name]; !ok {
				return output.ErrUsage(fmt.Sprintf("Profile %q not found", name))
			}

			configPath := filepath.Join(config.GlobalConfigDir(), "config.json")
			configData := make(map[string]any)
			if data, err := os.ReadFile(configPath); err == nil { //nolint:gosec // G304: Path is from trusted config location
				_ = json.Unmarshal(data, &configData)
			}

			configData["default_profile"] = name

			if err := atomicWriteJSON(configPath, configData); err != nil {
				return err
			}

			app.Config.DefaultProfile = name

			return app.OK(map[string]any{
				"name":   name,
				"status": "set_default",
			}, output.WithSummary(fmt.Sprintf("Default profile set to %q", name)))
		},
	}
}

// validProfileName matches letters, numbers, hyphens, and underscores.
var validProfileName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

func isValidProfileName(name string) bool {
	return validProfileName.MatchString(name)
}
