package cli

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/clq/internal/appctx"
	"github.com/carbonledger/clq/internal/config"
	"github.com/carbonledger/clq/internal/output"
)

func TestTransformCobraError(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantCode string
	}{
		{
			name:     "flag needs argument",
			input:    "flag needs an argument: --facility",
			want:     "--facility requires a value",
			wantCode: output.CodeUsage,
		},
		{
			name:     "unknown flag",
			input:    "unknown flag: --bogus",
			want:     "Unknown option: --bogus",
			wantCode: output.CodeUsage,
		},
		{
			name:     "unknown shorthand flag",
			input:    "unknown shorthand flag: 'x' in -x",
			want:     "Unknown option: -x",
			wantCode: output.CodeUsage,
		},
		{
			name:     "requires at least",
			input:    "requires at least 1 arg(s), only received 0",
			want:     "ID(s) required",
			wantCode: output.CodeUsage,
		},
		{
			name:     "accepts but received zero",
			input:    "accepts 1 arg(s), received 0",
			want:     "ID required",
			wantCode: output.CodeUsage,
		},
		{
			name:     "required flag not set",
			input:    `required flag(s) "period" not set`,
			want:     "period required",
			wantCode: output.CodeUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transformCobraError(errors.New(tt.input))

			e := output.AsError(got)
			assert.Equal(t, tt.want, e.Message)
			assert.Equal(t, tt.wantCode, e.Code)
		})
	}
}

func TestTransformCobraErrorPassthrough(t *testing.T) {
	orig := errors.New("something else entirely")
	got := transformCobraError(orig)
	assert.Equal(t, orig, got)
}

func profileConfig() *config.Config {
	cfg := config.Default()
	cfg.Profiles = map[string]*config.ProfileConfig{
		"staging": {
			BaseURL:         "https://staging.carbonledger.app",
			FacilityID:      "fac-staging",
			StagingUsername: "stg-user",
			StagingPassword: "stg-pass",
		},
	}
	return cfg
}

func TestApplyProfileExplicit(t *testing.T) {
	cfg := profileConfig()
	flags := appctx.GlobalFlags{Profile: "staging"}

	err := applyProfile(cfg, flags, config.FlagOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "https://staging.carbonledger.app", cfg.BaseURL)
	assert.Equal(t, "fac-staging", cfg.FacilityID)
	assert.Equal(t, "staging", cfg.ActiveProfile)
}

func TestApplyProfileDefaultProfile(t *testing.T) {
	cfg := profileConfig()
	cfg.DefaultProfile = "staging"

	err := applyProfile(cfg, appctx.GlobalFlags{}, config.FlagOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "https://staging.carbonledger.app", cfg.BaseURL)
}

func TestApplyProfileNone(t *testing.T) {
	cfg := profileConfig()
	origBase := cfg.BaseURL

	err := applyProfile(cfg, appctx.GlobalFlags{}, config.FlagOverrides{})
	require.NoError(t, err)

	assert.Equal(t, origBase, cfg.BaseURL, "no profile requested, config untouched")
}

func TestApplyProfileNotFound(t *testing.T) {
	cfg := profileConfig()
	flags := appctx.GlobalFlags{Profile: "production"}

	err := applyProfile(cfg, flags, config.FlagOverrides{})
	require.Error(t, err)

	e := output.AsError(err)
	assert.Equal(t, output.CodeUsage, e.Code)
	assert.Contains(t, e.Message, "production")
}

func TestApplyProfileEnvStillWins(t *testing.T) {
	t.Setenv("CLQ_BASE_URL", "https://env.carbonledger.app")

	cfg := profileConfig()
	flags := appctx.GlobalFlags{Profile: "staging"}

	err := applyProfile(cfg, flags, config.FlagOverrides{})
	require.NoError(t, err)

	// Profile applied first, env re-applied on top
	assert.Equal(t, "https://env.carbonledger.app", cfg.BaseURL)
	assert.Equal(t, "fac-staging", cfg.FacilityID, "profile values without env overrides survive")
}

func TestApplyProfileFlagStillWins(t *testing.T) {
	cfg := profileConfig()
	flags := appctx.GlobalFlags{Profile: "staging", Facility: "fac-flag"}
	overrides := config.FlagOverrides{Facility: "fac-flag"}

	err := applyProfile(cfg, flags, overrides)
	require.NoError(t, err)

	assert.Equal(t, "fac-flag", cfg.FacilityID)
}

func TestNewRootCmdFlags(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "clq", cmd.Use)

	pf := cmd.PersistentFlags()
	for _, name := range []string{
		"json", "quiet", "ids-only", "count", "format",
		"facility", "profile", "base-url",
		"verbose", "debug", "stats",
	} {
		assert.NotNil(t, pf.Lookup(name), "missing persistent flag %q", name)
	}

	// Shorthands
	assert.Equal(t, "j", pf.Lookup("json").Shorthand)
	assert.Equal(t, "q", pf.Lookup("quiet").Shorthand)
	assert.Equal(t, "f", pf.Lookup("facility").Shorthand)
	assert.Equal(t, "v", pf.Lookup("verbose").Shorthand)
}

func TestPersistentFlagShorthandsUnique(t *testing.T) {
	cmd := NewRootCmd()

	seen := map[string]string{}
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Shorthand == "" {
			return
		}
		if prev, ok := seen[f.Shorthand]; ok {
			t.Errorf("shorthand -%s used by both --%s and --%s", f.Shorthand, prev, f.Name)
		}
		seen[f.Shorthand] = f.Name
	})
}
