package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
	"github.com/carbonledger/clq/internal/version"
)

// Check represents a single diagnostic check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "fail", "skip", "warn"
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorResult holds the complete diagnostic results.
type DoctorResult struct {
	Checks  []Check `json:"checks"`
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Warned  int     `json:"warned"`
	Skipped int     `json:"skipped"`
}

// Summary returns a human-readable summary of the results.
func (r *DoctorResult) Summary() string {
	if r.Failed == 0 && r.Warned == 0 && r.Passed > 0 {
		if r.Skipped > 0 {
			return fmt.Sprintf("All %d checks passed, %d skipped", r.Passed, r.Skipped)
		}
		return fmt.Sprintf("All %d checks passed", r.Passed)
	}
	parts := []string{}
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", r.Warned, pluralize(r.Warned, "warning", "warnings")))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	return strings.Join(parts, ", ")
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check CLI health and diagnose issues",
		Long: `Run diagnostic checks on authentication, configuration, and API connectivity.

The doctor command helps troubleshoot common issues by checking:
  - CLI version (and whether updates are available)
  - Configuration files (existence and validity)
  - Stored credentials and token expiry
  - API connectivity
  - Facility access
  - Shell completion status

Examples:
  clq doctor       # Run all diagnostic checks
  clq -v doctor    # Include extra detail in check messages`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			verbose := app.Flags.Verbose > 0 || app.Flags.Debug

			checks := runDoctorChecks(cmd.Context(), app, verbose)
			result := summarizeChecks(checks)

			return app.OK(result, output.WithSummary(result.Summary()))
		},
	}
}

// runDoctorChecks executes all diagnostic checks.
func runDoctorChecks(ctx context.Context, app *appctx.App, verbose bool) []Check {
	checks := []Check{}

	checks = append(checks, checkVersion(verbose))

	if verbose {
		checks = append(checks, checkRuntime())
	}

	checks = append(checks, checkConfigFiles(app, verbose)...)

	credCheck := checkCredentials(app)
	checks = append(checks, credCheck)

	if credCheck.Status == "pass" {
		checks = append(checks, checkToken(ctx, app, verbose))
	} else {
		checks = append(checks, Check{
			Name:    "Token",
			Status:  "skip",
			Message: "Skipped (no credentials)",
			Hint:    "Run: clq auth login",
		})
	}

	// The health endpoint needs no session, so connectivity is always
	// testable even when the credential checks failed.
	connCheck := checkAPIConnectivity(ctx, app, verbose)
	checks = append(checks, connCheck)

	switch {
	case app.Config.FacilityID == "":
		checks = append(checks, Check{
			Name:    "Facility Access",
			Status:  "skip",
			Message: "Skipped (no facility configured)",
			Hint:    "Set one with --facility, CLQ_FACILITY_ID, or 'clq config set facility_id <id>'",
		})
	case connCheck.Status == "fail":
		checks = append(checks, Check{
			Name:    "Facility Access",
			Status:  "skip",
			Message: "Skipped (API unreachable)",
		})
	case credCheck.Status != "pass":
		checks = append(checks, Check{
			Name:    "Facility Access",
			Status:  "skip",
			Message: "Skipped (not authenticated)",
		})
	default:
		checks = append(checks, checkFacilityAccess(ctx, app, verbose))
	}

	checks = append(checks, checkShellCompletion(verbose))

	return checks
}

// checkVersion checks the CLI version.
func checkVersion(verbose bool) Check {
	check := Check{
		Name:   "CLI Version",
		Status: "pass",
	}

	v := version.Version
	if v == "dev" {
		check.Message = "dev (built from source)"
		if verbose {
			check.Message += fmt.Sprintf(" [commit: %s, date: %s]", version.Commit, version.Date)
		}
		return check
	}

	check.Message = v

	// Best-effort update check; offline is not a failure
	latest, err := fetchLatestVersion()
	if err == nil && latest != "" && latest != v {
		check.Status = "warn"
		check.Message = fmt.Sprintf("%s (update available: %s)", v, latest)
		check.Hint = "See https://github.com/carbonledger/clq/releases"
	}

	return check
}

// fetchLatestVersion attempts to fetch the latest release version from GitHub.
func fetchLatestVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.github.com/repos/carbonledger/clq/releases/latest", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	return strings.TrimPrefix(release.TagName, "v"), nil
}

// checkRuntime returns Go runtime information.
func checkRuntime() Check {
	return Check{
		Name:    "Runtime",
		Status:  "pass",
		Message: fmt.Sprintf("Go %s (%s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

// checkConfigFiles checks for configuration file existence and validity.
func checkConfigFiles(app *appctx.App, verbose bool) []Check {
	checks := []Check{}

	globalPath := filepath.Join(config.GlobalConfigDir(), "config.json")
	if _, err := os.Stat(globalPath); err == nil {
		checks = append(checks, validateConfigFile(globalPath, "Global Config", verbose))
	} else {
		checks = append(checks, Check{
			Name:    "Global Config",
			Status:  "warn",
			Message: "Not found (using defaults)",
			Hint:    fmt.Sprintf("Create %s to persist settings", globalPath),
		})
	}

	localPath := filepath.Join(".carbonledger", "config.json")
	if _, err := os.Stat(localPath); err == nil {
		checks = append(checks, validateConfigFile(localPath, "Local Config", verbose))
	} else if verbose {
		checks = append(checks, Check{
			Name:    "Local Config",
			Status:  "skip",
			Message: "Not found",
			Hint:    "Run 'clq config init' for directory-specific settings",
		})
	}

	// Show effective config values in verbose mode
	if verbose && app.Config != nil {
		details := []string{}
		effective := []struct {
			name  string
			value string
		}{
			{"base_url", app.Config.BaseURL},
			{"facility_id", app.Config.FacilityID},
			{"format", app.Config.Format},
		}
		for _, e := range effective {
			if e.value == "" {
				continue
			}
			src := app.Config.Sources[e.name]
			if src == "" {
				src = "default"
			}
			details = append(details, fmt.Sprintf("%s=%s [%s]", e.name, e.value, src))
		}
		if len(details) > 0 {
			checks = append(checks, Check{
				Name:    "Effective Config",
				Status:  "pass",
				Message: strings.Join(details, ", "),
			})
		}
	}

	return checks
}

// validateConfigFile checks if a config file is valid JSON.
func validateConfigFile(path, name string, verbose bool) Check {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return Check{
			Name:    name,
			Status:  "fail",
			Message: fmt.Sprintf("Cannot read: %s", path),
			Hint:    fmt.Sprintf("Check file permissions: %v", err),
		}
	}

	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Check{
			Name:    name,
			Status:  "fail",
			Message: fmt.Sprintf("Invalid JSON: %s", path),
			Hint:    fmt.Sprintf("JSON error: %v", err),
		}
	}

	msg := path
	if verbose {
		msg = fmt.Sprintf("%s (%d keys)", path, len(cfg))
	}
	return Check{
		Name:    name,
		Status:  "pass",
		Message: msg,
	}
}

// checkCredentials checks for stored credentials.
func checkCredentials(app *appctx.App) Check {
	check := Check{Name: "Credentials"}

	if app.Config.Token != "" {
		check.Status = "pass"
		check.Message = "Using CLQ_TOKEN environment variable"
		return check
	}

	if !app.Auth.IsAuthenticated() {
		check.Status = "fail"
		check.Message = "No credentials found"
		check.Hint = "Run: clq auth login"
		return check
	}

	check.Status = "pass"
	if s, ok := app.Auth.Store().(*auth.Store); ok && !s.UsingKeyring() {
		check.Message = filepath.Join(config.GlobalConfigDir(), "credentials.json")
	} else {
		check.Message = "Stored in system keyring"
	}
	return check
}

// checkToken checks access token expiry.
func checkToken(ctx context.Context, app *appctx.App, verbose bool) Check {
	check := Check{Name: "Token"}

	claims, err := auth.PeekClaims(app.Auth.AccessToken())
	if err != nil {
		// CLQ_TOKEN may carry something other than a JWT; the server is
		// the authority on whether it works.
		check.Status = "pass"
		check.Message = "Opaque token (validity decided by the server)"
		return check
	}

	if claims.ExpiresAt.IsZero() {
		check.Status = "pass"
		check.Message = "Valid (no expiry claim)"
		return check
	}

	expiresIn := time.Until(claims.ExpiresAt)
	if expiresIn < 0 {
		if app.Config.Token != "" {
			check.Status = "fail"
			check.Message = "CLQ_TOKEN is expired"
			check.Hint = "Export a fresh token, or unset CLQ_TOKEN to use the stored session"
			return check
		}
		if _, err := app.Auth.RefreshAccessToken(ctx, app.Auth.AccessToken()); err != nil {
			check.Status = "fail"
			check.Message = "Token expired and refresh failed"
			check.Hint = "Run: clq auth login"
			return check
		}
		check.Status = "pass"
		check.Message = "Valid (auto-refreshed)"
		return check
	}

	if expiresIn < 5*time.Minute {
		check.Status = "warn"
		check.Message = fmt.Sprintf("Token expires in %s", expiresIn.Round(time.Second))
		check.Hint = "The token auto-refreshes on the next API call"
		return check
	}

	check.Status = "pass"
	if verbose {
		check.Message = fmt.Sprintf("Valid (expires in %s)", expiresIn.Round(time.Minute))
	} else {
		check.Message = "Valid"
	}
	return check
}

// checkAPIConnectivity tests connectivity via the health endpoint.
func checkAPIConnectivity(ctx context.Context, app *appctx.App, verbose bool) Check {
	check := Check{Name: "API Connectivity"}

	start := time.Now()
	_, err := app.API.Health(ctx)
	latency := time.Since(start)

	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Cannot reach %s", app.Config.BaseURL)
		check.Hint = fmt.Sprintf("Error: %v", err)
		return check
	}

	check.Status = "pass"
	if verbose {
		check.Message = fmt.Sprintf("%s reachable (%dms)", app.Config.BaseURL, latency.Milliseconds())
	} else {
		check.Message = fmt.Sprintf("%s reachable", app.Config.BaseURL)
	}
	return check
}

// checkFacilityAccess verifies access to the configured facility.
func checkFacilityAccess(ctx context.Context, app *appctx.App, verbose bool) Check {
	check := Check{Name: "Facility Access"}

	start := time.Now()
	facility, err := app.API.GetFacility(ctx, app.Config.FacilityID)
	latency := time.Since(start)

	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Cannot access facility %s", app.Config.FacilityID)
		check.Hint = fmt.Sprintf("Error: %v", err)
		return check
	}

	check.Status = "pass"
	msg := fmt.Sprintf("Facility %s accessible", app.Config.FacilityID)
	if name := fieldSummary(facility, "name", ""); name != "" {
		msg = fmt.Sprintf("Facility %s (%s) accessible", app.Config.FacilityID, name)
	}
	if verbose {
		msg += fmt.Sprintf(" (%dms)", latency.Milliseconds())
	}
	check.Message = msg
	return check
}

// checkShellCompletion checks if shell completion is installed.
func checkShellCompletion(verbose bool) Check {
	check := Check{Name: "Shell Completion"}

	shell := detectShell()
	if shell == "" {
		check.Status = "skip"
		check.Message = "Could not detect shell"
		return check
	}

	var completionInstalled bool
	var completionPath string

	switch shell {
	case "bash":
		paths := []string{
			"/etc/bash_completion.d/clq",
			"/usr/local/etc/bash_completion.d/clq",
			filepath.Join(os.Getenv("HOME"), ".local/share/bash-completion/completions/clq"),
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				completionInstalled = true
				completionPath = p
				break
			}
		}
	case "zsh":
		paths := []string{
			"/usr/local/share/zsh/site-functions/_clq",
			filepath.Join(os.Getenv("HOME"), ".zsh/completions/_clq"),
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				completionInstalled = true
				completionPath = p
				break
			}
		}
		if !completionInstalled && zshrcHasCompletionEval() {
			completionInstalled = true
			completionPath = "~/.zshrc (via eval)"
		}
	case "fish":
		completionPath = filepath.Join(os.Getenv("HOME"), ".config/fish/completions/clq.fish")
		if _, err := os.Stat(completionPath); err == nil {
			completionInstalled = true
		}
	}

	if completionInstalled {
		check.Status = "pass"
		msg := fmt.Sprintf("%s (installed)", shell)
		if verbose && completionPath != "" {
			msg = fmt.Sprintf("%s (%s)", shell, completionPath)
		}
		check.Message = msg
	} else {
		check.Status = "warn"
		check.Message = fmt.Sprintf("%s (not installed)", shell)
		check.Hint = fmt.Sprintf("Run: clq completion %s --help", shell)
	}

	return check
}

// detectShell returns the user's shell from $SHELL env var.
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return ""
	}
	base := filepath.Base(shell)
	switch base {
	case "bash", "zsh", "fish":
		return base
	}
	return ""
}

// zshrcHasCompletionEval checks if ~/.zshrc contains an eval-based
// completion install (e.g., eval "$(clq completion zsh)").
func zshrcHasCompletionEval() bool {
	home := os.Getenv("HOME")
	if home == "" {
		return false
	}
	f, err := os.Open(filepath.Join(home, ".zshrc")) //nolint:gosec // G304: trusted path
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "clq completion zsh") {
			return true
		}
	}
	return false
}

// summarizeChecks counts results by status.
func summarizeChecks(checks []Check) *DoctorResult {
	result := &DoctorResult{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case "pass":
			result.Passed++
		case "fail":
			result.Failed++
		case "warn":
			result.Warned++
		case "skip":
			result.Skipped++
		}
	}
	return result
}

// pluralize returns singular or plural form based on count.
func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
