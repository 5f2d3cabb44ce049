package version

import (
	"strings"
	"testing"
)

func TestIsDev(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "dev"
	if !IsDev() {
		t.Error("IsDev() = false for dev build")
	}

	Version = "1.2.3"
	if IsDev() {
		t.Error("IsDev() = true for release build")
	}
}

func TestFull(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "dev"
	if got := Full(); got != "clq version dev (built from source)" {
		t.Errorf("Full() = %q", got)
	}

	Version = "1.2.3"
	if got := Full(); got != "clq version 1.2.3" {
		t.Errorf("Full() = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "dev"
	got := UserAgent()
	if !strings.HasPrefix(got, "clq/dev") {
		t.Errorf("UserAgent() = %q, want clq/dev prefix", got)
	}
	if !strings.Contains(got, "https://github.com/carbonledger/clq") {
		t.Errorf("UserAgent() = %q, want repo URL", got)
	}

	Version = "2.0.0"
	if got := UserAgent(); !strings.HasPrefix(got, "clq/2.0.0") {
		t.Errorf("UserAgent() = %q, want clq/2.0.0 prefix", got)
	}
}
