package api

import (
	"context"
	"encoding/json"
)

// ListFacilities fetches the facilities visible to the caller.
func (c *Client) ListFacilities(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "/facilities")
}

// GetFacility fetches a single facility by ID.
func (c *Client) GetFacility(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getData(ctx, "/facilities/"+id)
}
