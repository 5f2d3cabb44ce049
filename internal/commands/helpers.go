package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carbonledger/clq/internal/output"
)

// loadPayload reads a request body from --data or --payload. Inline data
// must be JSON; payload files may be JSON or YAML by extension, and "-"
// reads JSON from stdin.
func loadPayload(data, payloadPath string) (any, error) {
	switch {
	case data != "" && payloadPath != "":
		return nil, output.ErrUsage("Use either --data or --payload, not both")
	case data != "":
		var body any
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return nil, output.ErrUsageHint(
				"Invalid JSON data",
				fmt.Sprintf("JSON parse error: %v", err),
			)
		}
		return body, nil
	case payloadPath != "":
		return loadPayloadFile(payloadPath)
	default:
		return nil, output.ErrUsage("Request body required (--data or --payload)")
	}
}

func loadPayloadFile(path string) (any, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path) //nolint:gosec // G304: Path comes from the --payload flag
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var body any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &body); err != nil {
			return nil, output.ErrUsageHint("Invalid YAML payload", err.Error())
		}
	default:
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, output.ErrUsageHint("Invalid JSON payload", err.Error())
		}
	}
	return body, nil
}

// itemsSummary builds a "N things" summary from an array response.
func itemsSummary(data json.RawMessage, singular, plural string) string {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return ""
	}
	if len(arr) == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %s", len(arr), plural)
}

// fieldSummary pulls a display field out of an object response, with a
// fallback when the field is missing or the payload is not an object.
func fieldSummary(data json.RawMessage, field, fallback string) string {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fallback
	}
	if v, ok := obj[field].(string); ok && v != "" {
		return v
	}
	return fallback
}
