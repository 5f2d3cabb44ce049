// Package commands implements the CLI commands.
package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/auth"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Manage CarbonLedger authentication including login, registration, logout, and status.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthRegisterCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with CarbonLedger",
		Long:  "Sign in with email and password. Prompts for missing values when run interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			var err error
			if email, password, err = resolveLoginInput(app, email, password); err != nil {
				return err
			}

			user, err := app.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			summary := "Logged in"
			if who := displayName(user); who != "" {
				summary = "Logged in as " + who
			}
			return app.OK(user, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new CarbonLedger account",
		Long: `Create a new account and sign in.

Registration goes through the staging gateway, so staging credentials
must be configured (CLQ_STAGING_USERNAME / CLQ_STAGING_PASSWORD or the
staging_username / staging_password config keys).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			var err error
			if email, password, err = resolveLoginInput(app, email, password); err != nil {
				return err
			}

			payload := map[string]string{
				"email":    email,
				"password": password,
			}
			if name != "" {
				payload["full_name"] = name
			}

			user, err := app.Auth.Register(cmd.Context(), payload)
			if err != nil {
				return err
			}

			summary := "Account created"
			if who := displayName(user); who != "" {
				summary = "Account created for " + who
			}
			return app.OK(user, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Full name")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long:  "Remove stored authentication credentials for the current origin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := app.Auth.Logout(); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the current authentication status and token information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			origin := config.NormalizeBaseURL(app.Config.BaseURL)

			// Token injected via CLQ_TOKEN bypasses the credential store
			if app.Config.Token != "" {
				status := map[string]any{
					"authenticated": true,
					"origin":        origin,
					"source":        "CLQ_TOKEN",
				}
				addClaims(status, app.Config.Token)
				return app.OK(status, output.WithSummary("Authenticated via CLQ_TOKEN env var"))
			}

			creds, err := app.Auth.Store().Load()
			if err != nil {
				return app.OK(map[string]any{
					"authenticated": false,
					"origin":        origin,
				}, output.WithSummary("Not authenticated"))
			}

			status := map[string]any{
				"authenticated":     true,
				"origin":            origin,
				"source":            "session",
				"has_refresh_token": creds.RefreshToken != "",
			}
			if s, ok := app.Auth.Store().(*auth.Store); ok {
				status["keyring"] = s.UsingKeyring()
			}
			addClaims(status, creds.AccessToken)

			summary := "Authenticated"
			if email, ok := status["email"].(string); ok {
				summary = "Authenticated as " + email
			}
			return app.OK(status, output.WithSummary(summary))
		},
	}
}

// addClaims decorates an auth status payload with whatever can be read
// from the token without verification.
func addClaims(status map[string]any, token string) {
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return
	}
	if claims.Subject != "" {
		status["user_id"] = claims.Subject
	}
	if claims.Email != "" {
		status["email"] = claims.Email
	}
	if !claims.ExpiresAt.IsZero() {
		status["expires_in"] = time.Until(claims.ExpiresAt).Round(time.Second).String()
		status["expired"] = claims.Expired()
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long:  "Force a refresh of the access token using the stored refresh token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if _, err := app.Auth.RefreshAccessToken(cmd.Context(), app.Auth.AccessToken()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Token refreshed successfully"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the access token",
		Long: `Print the current access token to stdout for use with other tools.

If CLQ_TOKEN is set, it is returned directly. Otherwise the stored
session token is used.

Examples:
  export CLQ_TOKEN=$(clq auth token)
  curl -H "Authorization: Bearer $(clq auth token)" ...

Output modes:
  clq auth token           # Raw token (default, for shell substitution)
  clq auth token --json    # JSON envelope with token in data field`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			token := app.Auth.AccessToken()
			if token == "" {
				return output.ErrAuth("Not authenticated")
			}

			// Raw output by default so shell substitution works without jq.
			if app.Flags.JSON {
				return app.OK(map[string]string{"token": token})
			}

			fmt.Println(token)
			return nil
		},
	}
}

// resolveLoginInput fills in email and password, prompting on a terminal
// when either is missing.
func resolveLoginInput(app *appctx.App, email, password string) (string, string, error) {
	if email != "" && password != "" {
		return email, password, nil
	}

	if !app.IsInteractive() {
		return "", "", output.ErrUsageHint("Email and password required",
			"Pass --email and --password, or run interactively")
	}

	var err error
	if email == "" {
		if email, err = promptLine("Email: "); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return "", "", err
		}
	}

	if email == "" || password == "" {
		return "", "", output.ErrUsage("Email and password required")
	}
	return email, password, nil
}

func promptLine(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// displayName extracts a human-readable identity from a user payload.
func displayName(user json.RawMessage) string {
	var u struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	}
	if err := json.Unmarshal(user, &u); err != nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	return u.FullName
}
