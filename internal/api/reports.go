package api

import (
	"context"
	"encoding/json"
)

// ListReports fetches the emission reports visible to the caller.
func (c *Client) ListReports(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "/reports")
}

// GetReport fetches a single report by ID.
func (c *Client) GetReport(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getData(ctx, "/reports/"+id)
}

// CreateReport creates a report from an opaque payload.
func (c *Client) CreateReport(ctx context.Context, payload any) (json.RawMessage, error) {
	return c.postData(ctx, "/reports", payload)
}

// SubmitReport submits a draft report for review.
func (c *Client) SubmitReport(ctx context.Context, id string) (json.RawMessage, error) {
	return c.postData(ctx, "/reports/"+id+"/submit", nil)
}

// DeleteReport deletes a draft report.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	_, err := c.Delete(ctx, "/reports/"+id)
	return err
}
