package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	Action string // e.g. "report.submit"
	Actor  string // user ID or email
	Since  string // ISO 8601 date
	Until  string // ISO 8601 date
	Limit  int
}

func (f AuditFilter) query() string {
	q := url.Values{}
	if f.Action != "" {
		q.Set("action", f.Action)
	}
	if f.Actor != "" {
		q.Set("actor", f.Actor)
	}
	if f.Since != "" {
		q.Set("since", f.Since)
	}
	if f.Until != "" {
		q.Set("until", f.Until)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListAudit fetches audit log entries matching the filter.
func (c *Client) ListAudit(ctx context.Context, f AuditFilter) (json.RawMessage, error) {
	return c.getData(ctx, "/audit"+f.query())
}
