package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/evidence"
	"github.com/carbonledger/clq/internal/output"
)

// NewReportsCmd creates the reports command for managing emissions reports.
func NewReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Manage emissions reports",
		Long: `List, inspect, and manage emissions reports.

Reports aggregate a facility's emission records for a reporting period.
Draft reports can be edited and deleted; submitted reports are locked.`,
	}

	cmd.AddCommand(
		newReportsListCmd(),
		newReportsShowCmd(),
		newReportsCreateCmd(),
		newReportsSubmitCmd(),
		newReportsDeleteCmd(),
		newReportsAttachCmd(),
		newReportsAttachmentsCmd(),
	)

	return cmd
}

func newReportsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List emissions reports",
		Long:  "List all emissions reports visible to the current user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			reports, err := app.API.ListReports(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(reports,
				output.WithSummary(itemsSummary(reports, "report", "reports")))
		},
	}
}

func newReportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show report details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			report, err := app.API.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return app.OK(report,
				output.WithSummary(fieldSummary(report, "period", "Report "+args[0])))
		},
	}
}

func newReportsCreateCmd() *cobra.Command {
	var data string
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an emissions report",
		Long: `Create a new emissions report.

The report body can be passed inline or loaded from a JSON or YAML file:

  clq reports create --data '{"facility_id":"fac-1","period":"2026-Q1"}'
  clq reports create --payload report.yaml
  cat report.json | clq reports create --payload -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			body, err := loadPayload(data, payloadPath)
			if err != nil {
				return err
			}

			report, err := app.API.CreateReport(cmd.Context(), body)
			if err != nil {
				return err
			}

			summary := "Report created"
			if period := fieldSummary(report, "period", ""); period != "" {
				summary = "Report created for " + period
			}

			return app.OK(report, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Report body as inline JSON")
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Path to a JSON or YAML report body ('-' for stdin)")

	return cmd
}

func newReportsSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a report for review",
		Long:  "Submit a draft report for review. Submitted reports can no longer be edited.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			report, err := app.API.SubmitReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return app.OK(report,
				output.WithSummary(fmt.Sprintf("Report %s submitted", args[0])))
		},
	}
}

func newReportsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := app.API.DeleteReport(cmd.Context(), args[0]); err != nil {
				return err
			}

			result := map[string]any{
				"deleted": true,
				"id":      args[0],
			}

			return app.OK(result,
				output.WithSummary(fmt.Sprintf("Deleted report %s", args[0])))
		},
	}
}

func newReportsAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <report-id> <file>",
		Short: "Attach an evidence file to a report",
		Long: `Upload a supporting document to a report.

Evidence files are typically meter readings, fuel invoices, or utility
statements backing the reported figures.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := evidence.ValidateFile(args[1]); err != nil {
				return output.ErrUsage(err.Error())
			}

			attachment, err := app.API.AttachEvidence(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			return app.OK(attachment,
				output.WithSummary(fmt.Sprintf("Attached %s to report %s", filepath.Base(args[1]), args[0])))
		},
	}
}

func newReportsAttachmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attachments <report-id>",
		Short: "List a report's evidence files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			attachments, err := app.API.ListAttachments(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return app.OK(attachments,
				output.WithSummary(itemsSummary(attachments, "attachment", "attachments")))
		},
	}
}
