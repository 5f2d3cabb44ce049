package api

import (
	"context"
	"encoding/json"
)

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	return c.getData(ctx, "/users/me")
}
