package commands

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/carbonledger/clq/internal/output"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/reports", "/reports"},
		{"reports", "/reports"},
		{"reports/r1/submit", "/reports/r1/submit"},
		{"https://api.carbonledger.app/reports", "/reports"},
		{"http://localhost:8000/facilities/f1", "/facilities/f1"},
		{"https://api.carbonledger.app/audit?limit=10", "/audit?limit=10"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parsePath(tt.input)
			if got != tt.expected {
				t.Errorf("parsePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseBodyArg(t *testing.T) {
	body, err := parseBodyArg(`{"period": "2026-Q1"}`)
	if err != nil {
		t.Fatalf("parseBodyArg() error = %v", err)
	}
	obj, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", body)
	}
	if obj["period"] != "2026-Q1" {
		t.Errorf("period = %v, want 2026-Q1", obj["period"])
	}
}

func TestParseBodyArgEmpty(t *testing.T) {
	_, err := parseBodyArg("")
	if err == nil {
		t.Fatal("expected error for empty body")
	}
	if code := output.AsError(err).Code; code != output.CodeUsage {
		t.Errorf("code = %q, want %q", code, output.CodeUsage)
	}
}

func TestParseBodyArgInvalid(t *testing.T) {
	_, err := parseBodyArg(`{broken`)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if code := output.AsError(err).Code; code != output.CodeUsage {
		t.Errorf("code = %q, want %q", code, output.CodeUsage)
	}
}

func TestApplyJQNoFilter(t *testing.T) {
	data := json.RawMessage(`{"id": "r1"}`)
	got, err := applyJQ(data, "")
	if err != nil {
		t.Fatalf("applyJQ() error = %v", err)
	}
	raw, ok := got.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw passthrough, got %T", got)
	}
	if string(raw) != `{"id": "r1"}` {
		t.Errorf("data = %s, want unchanged input", raw)
	}
}

func TestApplyJQSingleResult(t *testing.T) {
	data := json.RawMessage(`{"facility": {"name": "Main Plant"}}`)
	got, err := applyJQ(data, ".facility.name")
	if err != nil {
		t.Fatalf("applyJQ() error = %v", err)
	}
	if got != "Main Plant" {
		t.Errorf("result = %v, want Main Plant", got)
	}
}

func TestApplyJQMultipleResults(t *testing.T) {
	data := json.RawMessage(`[{"id": "r1"}, {"id": "r2"}]`)
	got, err := applyJQ(data, ".[].id")
	if err != nil {
		t.Fatalf("applyJQ() error = %v", err)
	}
	want := []any{"r1", "r2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
}

func TestApplyJQInvalidExpression(t *testing.T) {
	_, err := applyJQ(json.RawMessage(`{}`), ".[broken")
	if err == nil {
		t.Fatal("expected error for invalid jq expression")
	}
	if code := output.AsError(err).Code; code != output.CodeUsage {
		t.Errorf("code = %q, want %q", code, output.CodeUsage)
	}
}

func TestAPISummary(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected string
	}{
		{"array", `[{"id": "r1"}, {"id": "r2"}]`, "2 items"},
		{"object with name", `{"name": "Main Plant"}`, "Main Plant"},
		{"object with period", `{"period": "2026-Q1"}`, "2026-Q1"},
		{"object with email", `{"email": "sam@example.com"}`, "sam@example.com"},
		{"object without display field", `{"id": "r1"}`, "API response"},
		{"scalar", `42`, "API response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apiSummary([]byte(tt.data))
			if got != tt.expected {
				t.Errorf("apiSummary() = %q, want %q", got, tt.expected)
			}
		})
	}
}
