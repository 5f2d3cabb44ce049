// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/carbonledger/clq/internal/hostutil"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL    string `json:"base_url"`
	FacilityID string `json:"facility_id"`

	// Staging basic-auth credentials, used for endpoints reachable
	// without a user session (register, refresh, anonymous access).
	StagingUsername string `json:"staging_username"`
	StagingPassword string `json:"staging_password"`

	// Profile settings (named environment bundles)
	Profiles       map[string]*ProfileConfig `json:"profiles,omitempty"`
	DefaultProfile string                    `json:"default_profile,omitempty"`
	ActiveProfile  string                    `json:"-"` // Set at runtime, not persisted

	// Credential store settings
	NoKeyring bool `json:"no_keyring"`

	// Output settings
	Format string `json:"format"`

	// Behavior preferences (persisted via config set, overridable by flags)
	Debug *bool `json:"debug,omitempty"`

	// Token is an access token injected via CLQ_TOKEN, bypassing the
	// credential store entirely. Never read from config files.
	Token string `json:"-"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-"`
}

// ProfileConfig holds configuration for a named profile.
type ProfileConfig struct {
	BaseURL         string `json:"base_url"`
	FacilityID      string `json:"facility_id,omitempty"`
	StagingUsername string `json:"staging_username,omitempty"`
	StagingPassword string `json:"staging_password,omitempty"`
	Format          string `json:"format,omitempty"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceRepo    Source = "repo"
	SourceLocal   Source = "local"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	Facility string
	Profile  string
	Format   string
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL: "https://api.carbonledger.app",
		Format:  "json",
		Sources: make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > local > repo > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	// Pull a .env file from the working directory into the process
	// environment first. Existing variables are never overridden, so real
	// env still beats .env.
	_ = godotenv.Load()

	cfg := Default()

	// Load from file layers (system -> global -> repo -> local)
	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	repoPath := repoConfigPath()
	if repoPath != "" {
		loadFromFile(cfg, repoPath, SourceRepo)
	}

	// Load all local configs from root to current (closer overrides)
	// This allows nested directories to override parent directories
	localPaths := localConfigPaths(repoPath)
	for _, path := range localPaths {
		loadFromFile(cfg, path, SourceLocal)
	}

	// Load from environment
	LoadFromEnv(cfg)

	// Apply flag overrides
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	// Authority keys (base_url, staging credentials, profiles,
	// default_profile) control where tokens are sent and what credentials
	// travel with them. Local/repo config must NOT set these: a malicious
	// config in a cloned repo or parent directory could redirect
	// authenticated traffic.
	untrusted := source == SourceLocal || source == SourceRepo

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring base_url %q from %s config at %s (authority keys are not trusted from local/repo config)\n", v, source, path)
		} else {
			cfg.BaseURL = v
			cfg.Sources["base_url"] = string(source)
		}
	}
	if v := getStringOrNumber(fileCfg, "facility_id"); v != "" {
		cfg.FacilityID = v
		cfg.Sources["facility_id"] = string(source)
	}
	if v, ok := fileCfg["staging_username"].(string); ok && v != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring staging_username from %s config at %s (authority keys are not trusted from local/repo config)\n", source, path)
		} else {
			cfg.StagingUsername = v
			cfg.Sources["staging_username"] = string(source)
		}
	}
	if v, ok := fileCfg["staging_password"].(string); ok && v != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring staging_password from %s config at %s (authority keys are not trusted from local/repo config)\n", source, path)
		} else {
			cfg.StagingPassword = v
			cfg.Sources["staging_password"] = string(source)
		}
	}
	if v, ok := fileCfg["no_keyring"].(bool); ok {
		cfg.NoKeyring = v
		cfg.Sources["no_keyring"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if v, ok := fileCfg["debug"].(bool); ok {
		cfg.Debug = &v
		cfg.Sources["debug"] = string(source)
	}
	if v, ok := fileCfg["default_profile"].(string); ok && v != "" {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring default_profile %q from %s config at %s (authority keys are not trusted from local/repo config)\n", v, source, path)
		} else {
			cfg.DefaultProfile = v
			cfg.Sources["default_profile"] = string(source)
		}
	}
	if v, ok := fileCfg["profiles"].(map[string]any); ok {
		if untrusted {
			fmt.Fprintf(os.Stderr, "warning: ignoring profiles from %s config at %s (authority keys are not trusted from local/repo config)\n", source, path)
		} else {
			if cfg.Profiles == nil {
				cfg.Profiles = make(map[string]*ProfileConfig)
			}
			for name, profileData := range v {
				if profileMap, ok := profileData.(map[string]any); ok {
					profileCfg := &ProfileConfig{}
					if baseURL, ok := profileMap["base_url"].(string); ok && baseURL != "" {
						profileCfg.BaseURL = baseURL
					} else {
						// Skip profiles with empty or missing base_url
						continue
					}
					if facilityID := getStringOrNumber(profileMap, "facility_id"); facilityID != "" {
						profileCfg.FacilityID = facilityID
					}
					if user, ok := profileMap["staging_username"].(string); ok {
						profileCfg.StagingUsername = user
					}
					if pass, ok := profileMap["staging_password"].(string); ok {
						profileCfg.StagingPassword = pass
					}
					if format, ok := profileMap["format"].(string); ok {
						profileCfg.Format = format
					}
					cfg.Profiles[name] = profileCfg
				}
			}
			cfg.Sources["profiles"] = string(source)
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
// Exported so root.go can re-apply after profile overlay.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CLQ_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("CLQ_FACILITY_ID"); v != "" {
		cfg.FacilityID = v
		cfg.Sources["facility_id"] = string(SourceEnv)
	}
	if v := os.Getenv("CLQ_STAGING_USERNAME"); v != "" {
		cfg.StagingUsername = v
		cfg.Sources["staging_username"] = string(SourceEnv)
	}
	if v := os.Getenv("CLQ_STAGING_PASSWORD"); v != "" {
		cfg.StagingPassword = v
		cfg.Sources["staging_password"] = string(SourceEnv)
	}
	if v := os.Getenv("CLQ_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
	if v := os.Getenv("CLQ_NO_KEYRING"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.NoKeyring = b
			cfg.Sources["no_keyring"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("CLQ_DEBUG"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Debug = &b
			cfg.Sources["debug"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("CLQ_TOKEN"); v != "" {
		cfg.Token = v
		cfg.Sources["token"] = string(SourceEnv)
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
// Unrecognized values are ignored to preserve three-state pointer semantics.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// getStringOrNumber extracts a value that may be either a string or number in JSON.
func getStringOrNumber(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers are unmarshaled as float64
		return strings.TrimSuffix(strings.TrimSuffix(
			strings.TrimSuffix(fmt.Sprintf("%.0f", val), ".0"),
			".00"),
			".")
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return ""
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
// Exported so root.go can re-apply after profile overlay.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.Facility != "" {
		cfg.FacilityID = o.Facility
		cfg.Sources["facility_id"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
}

// ApplyProfile overlays profile values onto the config.
//
// This is the first pass of a two-pass precedence system:
//
//	Pass 1 (this method): Profile values unconditionally overwrite config fields.
//	Pass 2 (caller):      LoadFromEnv + ApplyOverrides re-apply env vars and CLI
//	                       flags, which take final precedence over profile values.
//
// The caller in root.go MUST call LoadFromEnv and ApplyOverrides after this
// method to maintain the precedence chain: flags > env > profile > file > defaults.
func (cfg *Config) ApplyProfile(name string) error {
	if cfg.Profiles == nil {
		return fmt.Errorf("no profiles configured")
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found", name)
	}

	cfg.ActiveProfile = name

	// Unconditionally set profile values. Env/flag overrides are re-applied
	// by the caller afterward to restore correct precedence.
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
		cfg.Sources["base_url"] = "profile"
	}
	if p.FacilityID != "" {
		cfg.FacilityID = p.FacilityID
		cfg.Sources["facility_id"] = "profile"
	}
	if p.StagingUsername != "" {
		cfg.StagingUsername = p.StagingUsername
		cfg.Sources["staging_username"] = "profile"
	}
	if p.StagingPassword != "" {
		cfg.StagingPassword = p.StagingPassword
		cfg.Sources["staging_password"] = "profile"
	}
	if p.Format != "" {
		cfg.Format = p.Format
		cfg.Sources["format"] = "profile"
	}

	return nil
}

// Path helpers

func systemConfigPath() string {
	return "/etc/carbonledger/config.json"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.json")
}

func repoConfigPath() string {
	// Walk up to find .git directory, then look for .carbonledger/config.json.
	// Bounded by $HOME: only search within the home directory tree.
	// If CWD is outside $HOME (e.g., /tmp), no repo config is trusted.
	dir, err := os.Getwd()
	if err != nil {
		return "" // fail closed: can't determine CWD
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "" // fail closed: can't resolve symlinks for trust boundary
	}
	dir = resolved
	home, _ := os.UserHomeDir()
	if resolved, err := filepath.EvalSymlinks(home); err == nil {
		home = resolved
	}

	// If CWD is not inside $HOME, don't trust any repo config.
	// This prevents a malicious .git in /tmp/ from anchoring the repo root.
	if home != "" && !isInsideDir(dir, home) {
		return ""
	}

	for {
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			cfgPath := filepath.Join(dir, ".carbonledger", "config.json")
			if _, err := os.Stat(cfgPath); err == nil {
				return cfgPath
			}
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		// Don't walk above home directory
		if home != "" && dir == home {
			return ""
		}
		dir = parent
	}
}

// isInsideDir reports whether child is the same as or a subdirectory of parent.
// Both paths must be absolute and already cleaned/resolved.
func isInsideDir(child, parent string) bool {
	if child == parent {
		return true
	}
	// Ensure parent has a trailing separator for prefix matching
	prefix := parent
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(child, prefix)
}

// localConfigPaths returns .carbonledger/config.json paths within the trust
// boundary, excluding the repo config path (already loaded as SourceRepo).
// Paths are returned in order from furthest ancestor to closest, so closer configs override.
//
// Trust boundary:
//   - Inside a git repo: only paths at or below the repo root
//   - Outside a git repo: only the current working directory (no parent traversal)
func localConfigPaths(repoConfigPath string) []string {
	dir, err := os.Getwd()
	if err != nil {
		return nil // fail closed: can't determine CWD
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil // fail closed: can't resolve symlinks for trust boundary
	}
	dir = resolved
	var paths []string

	// Determine trust boundary (resolve symlinks for reliable comparison
	// since os.Getwd returns the resolved path on platforms like macOS)
	var boundary string
	if repoConfigPath != "" {
		// Inside a repo: trust boundary is the repo root
		boundary = filepath.Dir(filepath.Dir(repoConfigPath)) // .carbonledger/config.json -> repo root
	} else {
		// No repo: only trust current directory
		boundary = dir
	}
	if resolved, err := filepath.EvalSymlinks(boundary); err == nil {
		boundary = resolved
	}

	// Collect paths walking up, stopping at the trust boundary
	for {
		cfgPath := filepath.Join(dir, ".carbonledger", "config.json")
		if _, err := os.Stat(cfgPath); err == nil {
			// Skip if this is the repo config (already loaded)
			if cfgPath != repoConfigPath {
				paths = append(paths, cfgPath)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir || dir == boundary {
			break
		}
		dir = parent
	}

	// Reverse so paths go from boundary to current (closer overrides)
	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}

	return paths
}

// GlobalConfigDir returns the global config directory path.
// CLQ_CONFIG_DIR overrides the XDG-derived location entirely.
func GlobalConfigDir() string {
	if dir := os.Getenv("CLQ_CONFIG_DIR"); dir != "" {
		return dir
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "carbonledger")
}

// NormalizeBaseURL expands bare hosts to full URLs and strips trailing
// slashes so request paths can be appended directly.
func NormalizeBaseURL(url string) string {
	return hostutil.NormalizeBase(url)
}
