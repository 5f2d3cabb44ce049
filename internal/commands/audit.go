package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/api"
	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/dateparse"
	"github.com/carbonledger/clq/internal/output"
)

// NewAuditCmd creates the audit command for browsing the audit trail.
func NewAuditCmd() *cobra.Command {
	var action string
	var actor string
	var since string
	var until string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Browse the audit trail",
		Long: `List audit trail entries.

Every mutating operation on the platform leaves an audit entry. Filters
narrow the listing by action, actor, and time window. Dates accept
natural language ("yesterday", "last week", "3 days ago", "soq") as
well as ISO 8601:

  clq audit --action report.submit
  clq audit --actor ana@example.com --since 2026-01-01
  clq audit --since "start of month" --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if limit < 0 {
				return output.ErrUsage("--limit must be positive")
			}

			filter := api.AuditFilter{
				Action: action,
				Actor:  actor,
				Limit:  limit,
			}
			if since != "" {
				filter.Since = dateparse.Parse(since)
			}
			if until != "" {
				filter.Until = dateparse.Parse(until)
			}

			entries, err := app.API.ListAudit(cmd.Context(), filter)
			if err != nil {
				return err
			}

			return app.OK(entries,
				output.WithSummary(itemsSummary(entries, "audit entry", "audit entries")))
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Filter by action (e.g. report.submit)")
	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor (user ID or email)")
	cmd.Flags().StringVar(&since, "since", "", "Only entries on or after this date (natural language or YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Only entries on or before this date (natural language or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries to return")

	return cmd
}
