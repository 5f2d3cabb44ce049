package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/output"
)

// NewFacilitiesCmd creates the facilities command for browsing reporting sites.
func NewFacilitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "Browse facilities",
		Long: `List and inspect the facilities you report for.

A facility is a physical site (plant, office, warehouse) that emission
records and reports are scoped to.`,
	}

	cmd.AddCommand(
		newFacilitiesListCmd(),
		newFacilitiesShowCmd(),
	)

	return cmd
}

func newFacilitiesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List facilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			facilities, err := app.API.ListFacilities(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(facilities,
				output.WithSummary(itemsSummary(facilities, "facility", "facilities")))
		},
	}
}

func newFacilitiesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show facility details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			facility, err := app.API.GetFacility(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return app.OK(facility,
				output.WithSummary(fieldSummary(facility, "name", "Facility "+args[0])))
		},
	}
}
