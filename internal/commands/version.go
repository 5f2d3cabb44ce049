package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/version"
)

// NewVersionCmd creates the version command. The root command skips app
// setup for version, so this prints without the app context.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": version.Version,
				"commit":  version.Commit,
				"date":    version.Date,
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
