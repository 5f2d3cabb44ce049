package commands

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/output"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long:  "Make raw API requests to any CarbonLedger endpoint. Useful for operations not covered by dedicated commands.",
	}

	cmd.AddCommand(
		newAPIGetCmd(),
		newAPIPostCmd(),
		newAPIPutCmd(),
		newAPIPatchCmd(),
		newAPIDeleteCmd(),
	)

	return cmd
}

func newAPIGetCmd() *cobra.Command {
	var jqFilter string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET request to API",
		Long:  "Make a raw GET request to any CarbonLedger API endpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			path := parsePath(args[0])
			resp, err := app.API.Get(cmd.Context(), path)
			if err != nil {
				return err
			}

			data, err := applyJQ(resp.Data, jqFilter)
			if err != nil {
				return err
			}

			return app.OK(data, output.WithSummary(apiSummary(resp.Data)))
		},
	}

	cmd.Flags().StringVar(&jqFilter, "jq", "", "Filter the response with a jq expression")

	return cmd
}

func newAPIPostCmd() *cobra.Command {
	var data, jqFilter string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "POST request to API",
		Long:  "Make a raw POST request to any CarbonLedger API endpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			body, err := parseBodyArg(data)
			if err != nil {
				return err
			}

			path := parsePath(args[0])
			resp, err := app.API.Post(cmd.Context(), path, body)
			if err != nil {
				return err
			}

			out, err := applyJQ(resp.Data, jqFilter)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("POST %s: %s", path, apiSummary(resp.Data))
			return app.OK(out, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	cmd.Flags().StringVar(&jqFilter, "jq", "", "Filter the response with a jq expression")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newAPIPutCmd() *cobra.Command {
	var data, jqFilter string

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "PUT request to API",
		Long:  "Make a raw PUT request to any CarbonLedger API endpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			body, err := parseBodyArg(data)
			if err != nil {
				return err
			}

			path := parsePath(args[0])
			resp, err := app.API.Put(cmd.Context(), path, body)
			if err != nil {
				return err
			}

			out, err := applyJQ(resp.Data, jqFilter)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("PUT %s: %s", path, apiSummary(resp.Data))
			return app.OK(out, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	cmd.Flags().StringVar(&jqFilter, "jq", "", "Filter the response with a jq expression")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newAPIPatchCmd() *cobra.Command {
	var data, jqFilter string

	cmd := &cobra.Command{
		Use:   "patch <path>",
		Short: "PATCH request to API",
		Long:  "Make a raw PATCH request to any CarbonLedger API endpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			body, err := parseBodyArg(data)
			if err != nil {
				return err
			}

			path := parsePath(args[0])
			resp, err := app.API.Patch(cmd.Context(), path, body)
			if err != nil {
				return err
			}

			out, err := applyJQ(resp.Data, jqFilter)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("PATCH %s: %s", path, apiSummary(resp.Data))
			return app.OK(out, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	cmd.Flags().StringVar(&jqFilter, "jq", "", "Filter the response with a jq expression")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newAPIDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "DELETE request to API",
		Long:  "Make a raw DELETE request to any CarbonLedger API endpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			path := parsePath(args[0])
			resp, err := app.API.Delete(cmd.Context(), path)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("DELETE %s", path)
			return app.OK(resp.Data, output.WithSummary(summary))
		},
	}
}

// parseBodyArg parses a --data value into a JSON body.
func parseBodyArg(data string) (any, error) {
	if data == "" {
		return nil, output.ErrUsage("--data is required")
	}
	var body any
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return nil, output.ErrUsageHint(
			"Invalid JSON data",
			fmt.Sprintf("JSON parse error: %v", err),
		)
	}
	return body, nil
}

// parsePath extracts and normalizes the API path.
// Handles full URLs, relative paths, and auto-adds leading slash.
func parsePath(input string) string {
	urlPattern := regexp.MustCompile(`^https?://[^/]+(/.*)`)
	if matches := urlPattern.FindStringSubmatch(input); len(matches) > 1 {
		return matches[1]
	}

	if !strings.HasPrefix(input, "/") {
		input = "/" + input
	}

	return input
}

// applyJQ filters response data through a jq expression. A single result
// is returned bare; multiple results come back as an array.
func applyJQ(data json.RawMessage, filter string) (any, error) {
	if filter == "" {
		return data, nil
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, output.ErrUsageHint("Invalid jq expression", err.Error())
	}

	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to decode response for jq: %w", err)
	}

	var results []any
	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := v.(error); isErr {
			return nil, output.ErrUsageHint("jq evaluation failed", evalErr.Error())
		}
		results = append(results, v)
	}

	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// apiSummary generates a summary from the API response.
func apiSummary(data []byte) string {
	// Check if array response
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		return fmt.Sprintf("%d items", len(arr))
	}

	// Single object - try to get a displayable name
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "API response"
	}

	for _, key := range []string{"name", "title", "period", "email"} {
		if v, ok := obj[key].(string); ok && v != "" {
			if len(v) > 50 {
				v = v[:47] + "..."
			}
			return v
		}
	}
	return "API response"
}
