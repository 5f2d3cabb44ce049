package api

import (
	"context"
	"encoding/json"
)

// Health pings the backend health endpoint. It works with or without a
// session, so it doubles as a connectivity probe for diagnostics.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "/health")
}
