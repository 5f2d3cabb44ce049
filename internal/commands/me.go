package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/output"
)

// NewMeCmd creates the me command for showing the current user profile.
func NewMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show current user profile",
		Long:  "Display information about the currently authenticated user.",
		RunE:  runMe,
	}
}

func runMe(cmd *cobra.Command, args []string) error {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return fmt.Errorf("app not initialized")
	}

	if !app.Auth.IsAuthenticated() {
		return output.ErrAuth("Not authenticated. Run: clq auth login")
	}

	user, err := app.API.Me(cmd.Context())
	if err != nil {
		return err
	}

	summary := "Signed in"
	if name := displayName(user); name != "" {
		summary = "Signed in as " + name
	}

	return app.OK(user, output.WithSummary(summary))
}
