package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/commands"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/hostutil"
	"github.com/carbonledger/clq/internal/output"
	"github.com/carbonledger/clq/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "clq",
		Short:         "Command-line interface for CarbonLedger",
		Long:          "clq is a CLI tool for working with CarbonLedger emissions reports, facilities, and audit data.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			overrides := config.FlagOverrides{
				Facility: flags.Facility,
				Profile:  flags.Profile,
				Format:   flags.Format,
			}

			cfg, err := config.Load(overrides)
			if err != nil {
				return err
			}

			// Overlay the selected profile, then re-apply env and flags so
			// they keep final precedence.
			if err := applyProfile(cfg, flags, overrides); err != nil {
				return err
			}

			// --base-url wins over everything, including the profile.
			if flags.BaseURL != "" {
				cfg.BaseURL = hostutil.Normalize(flags.BaseURL)
				cfg.Sources["base_url"] = string(config.SourceFlag)
			}
			cfg.BaseURL = config.NormalizeBaseURL(cfg.BaseURL)
			if err := hostutil.RequireSecureURL(cfg.BaseURL); err != nil {
				return output.ErrUsage(err.Error())
			}

			// Create app and store in context
			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON envelope")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")
	cmd.PersistentFlags().BoolVar(&flags.Count, "count", false, "Output only count")
	cmd.PersistentFlags().StringVar(&flags.Format, "format", "", "Output format (json, quiet, ids, count)")

	// Context flags
	cmd.PersistentFlags().StringVarP(&flags.Facility, "facility", "f", "", "Facility ID")
	cmd.PersistentFlags().StringVar(&flags.Profile, "profile", "", "Configuration profile name")
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "CarbonLedger API base URL")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for requests, -vv for auth events)")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Debug output (same as -vv plus client logging)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	return cmd
}

// applyProfile overlays the requested profile onto cfg. Env and flag
// overrides are re-applied afterward so precedence stays
// flags > env > profile > file > defaults.
func applyProfile(cfg *config.Config, flags appctx.GlobalFlags, overrides config.FlagOverrides) error {
	name := flags.Profile
	if name == "" {
		name = cfg.DefaultProfile
	}
	if name == "" {
		return nil
	}

	if err := cfg.ApplyProfile(name); err != nil {
		return output.ErrUsageHint(err.Error(), "Check 'clq profile list' for configured profiles")
	}

	config.LoadFromEnv(cfg)
	config.ApplyOverrides(cfg, overrides)
	return nil
}

// Execute runs the root command.
func Execute() {
	cmd := NewRootCmd()

	// Add subcommands
	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewReportsCmd())
	cmd.AddCommand(commands.NewFacilitiesCmd())
	cmd.AddCommand(commands.NewEmissionsCmd())
	cmd.AddCommand(commands.NewAuditCmd())
	cmd.AddCommand(commands.NewMeCmd())
	cmd.AddCommand(commands.NewAPICmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewProfileCmd())
	cmd.AddCommand(commands.NewDoctorCmd())
	cmd.AddCommand(commands.NewCommandsCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()
	if err != nil {
		err = transformCobraError(err)

		// Convert error to structured output
		apiErr := output.AsError(err)

		// Try to use app.Err() if app is available (for --stats support)
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			os.Exit(apiErr.ExitCode())
		}

		// Fallback: output error directly (app not available, e.g., during setup)
		pf := cmd.PersistentFlags()
		format := output.FormatJSON
		quiet, _ := pf.GetBool("quiet")
		idsOnly, _ := pf.GetBool("ids-only")
		count, _ := pf.GetBool("count")

		if quiet {
			format = output.FormatQuiet
		} else if idsOnly {
			format = output.FormatIDs
		} else if count {
			format = output.FormatCount
		}

		writer := output.New(output.Options{
			Format: format,
			Writer: os.Stdout,
		})
		_ = writer.Err(err)

		os.Exit(apiErr.ExitCode())
	}
}

// transformCobraError rewrites Cobra's default error messages into the
// CLI's usage-error format so exit codes and envelopes stay consistent.
func transformCobraError(err error) error {
	msg := err.Error()

	// "flag needs an argument: --FLAG" -> "--FLAG requires a value"
	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" -> "Unknown option: --FLAG"
	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	// "unknown shorthand flag: 'X' in -X" -> "Unknown option: -X"
	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		re := regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	// "requires at least N arg(s)" / "accepts N arg(s), received 0"
	if strings.Contains(msg, "requires at least") && strings.Contains(msg, "arg(s)") {
		return output.ErrUsage("ID(s) required")
	}
	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("ID required")
	}

	// "required flag(s) "x" not set" -> "x required"
	if strings.HasPrefix(msg, "required flag(s) ") {
		re := regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage(matches[1] + " required")
		}
	}

	return err
}
