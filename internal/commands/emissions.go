package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/api"
	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/output"
)

// NewEmissionsCmd creates the emissions command for working with emission records.
func NewEmissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emissions",
		Short: "Work with emission records",
		Long: `List and record emission entries for a facility.

Commands in this group operate on a single facility. The facility is
resolved from --facility, the CLQ_FACILITY_ID environment variable, or
the configured facility_id, in that order.`,
	}

	cmd.AddCommand(
		newEmissionsListCmd(),
		newEmissionsRecordCmd(),
	)

	return cmd
}

func newEmissionsListCmd() *cobra.Command {
	var scope string
	var period string
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List emission records",
		Long: `List emission records for the current facility.

Results can be narrowed by scope, reporting period, and category:

  clq emissions list --scope 1
  clq emissions list --period 2026-Q1 --category electricity`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			facilityID, err := app.RequireFacility()
			if err != nil {
				return err
			}

			if scope != "" && scope != "1" && scope != "2" && scope != "3" {
				return output.ErrUsage("--scope must be 1, 2, or 3")
			}

			filter := api.EmissionFilter{
				Scope:    scope,
				Period:   period,
				Category: category,
			}

			emissions, err := app.API.ListEmissions(cmd.Context(), facilityID, filter)
			if err != nil {
				return err
			}

			return app.OK(emissions,
				output.WithSummary(itemsSummary(emissions, "emission record", "emission records")))
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Filter by GHG scope (1, 2, or 3)")
	cmd.Flags().StringVar(&period, "period", "", "Filter by reporting period (e.g. 2026-Q1)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by emission category")

	return cmd
}

func newEmissionsRecordCmd() *cobra.Command {
	var data string
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record an emission entry",
		Long: `Record a new emission entry for the current facility.

The entry body is passed through to the backend unchanged; unit
conversion and CO2e math happen server-side.

  clq emissions record --data '{"scope":"1","category":"diesel","amount":120.5,"unit":"l"}'
  clq emissions record --payload entry.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			facilityID, err := app.RequireFacility()
			if err != nil {
				return err
			}

			body, err := loadPayload(data, payloadPath)
			if err != nil {
				return err
			}

			entry, err := app.API.RecordEmission(cmd.Context(), facilityID, body)
			if err != nil {
				return err
			}

			summary := "Emission recorded"
			if category := fieldSummary(entry, "category", ""); category != "" {
				summary = "Recorded " + category + " emission"
			}

			return app.OK(entry, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Entry body as inline JSON")
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Path to a JSON or YAML entry body ('-' for stdin)")

	return cmd
}
