package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Core Commands",
			Commands: []CommandInfo{
				{Name: "reports", Category: "core", Description: "Manage emissions reports", Actions: []string{"list", "show", "create", "submit", "delete", "attach", "attachments"}},
				{Name: "facilities", Category: "core", Description: "View facilities", Actions: []string{"list", "show"}},
				{Name: "emissions", Category: "core", Description: "Manage emission records", Actions: []string{"list", "record"}},
				{Name: "audit", Category: "core", Description: "View the audit trail"},
			},
		},
		{
			Name: "Auth & Config",
			Commands: []CommandInfo{
				{Name: "auth", Category: "auth", Description: "Authenticate with CarbonLedger", Actions: []string{"login", "register", "logout", "status", "refresh", "token"}},
				{Name: "config", Category: "auth", Description: "Manage configuration", Actions: []string{"show", "init", "set", "unset", "facility"}},
				{Name: "profile", Category: "auth", Description: "Manage configuration profiles", Actions: []string{"list", "show", "create", "delete", "set-default"}},
				{Name: "me", Category: "auth", Description: "Show current user profile"},
				{Name: "doctor", Category: "auth", Description: "Check CLI health and diagnose issues"},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "api", Category: "additional", Description: "Raw API access", Actions: []string{"get", "post", "put", "patch", "delete"}},
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completions", Actions: []string{"bash", "zsh", "fish", "powershell"}},
				{Name: "help", Category: "additional", Description: "Show help"},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	categories := commandCategories()
	total := 0
	for _, cat := range categories {
		total += len(cat.Commands)
	}
	names := make([]string, 0, total)
	for _, cat := range categories {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available clq commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			return app.OK(commandCategories(),
				output.WithSummary("All available clq commands"))
		},
	}
}
