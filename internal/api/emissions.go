package api

import (
	"context"
	"encoding/json"
	"net/url"
)

// EmissionFilter narrows an emission record listing.
type EmissionFilter struct {
	Scope    string // "1", "2", or "3"
	Period   string // reporting period, e.g. "2026-Q1"
	Category string
}

func (f EmissionFilter) query() string {
	q := url.Values{}
	if f.Scope != "" {
		q.Set("scope", f.Scope)
	}
	if f.Period != "" {
		q.Set("period", f.Period)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListEmissions fetches the emission records for a facility.
func (c *Client) ListEmissions(ctx context.Context, facilityID string, f EmissionFilter) (json.RawMessage, error) {
	return c.getData(ctx, "/facilities/"+facilityID+"/emissions"+f.query())
}

// RecordEmission records a new emission entry for a facility. The payload
// passes through opaque; units and emission math belong to the backend.
func (c *Client) RecordEmission(ctx context.Context, facilityID string, payload any) (json.RawMessage, error) {
	return c.postData(ctx, "/facilities/"+facilityID+"/emissions", payload)
}
