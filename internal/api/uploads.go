package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbonledger/clq/internal/evidence"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// AttachEvidence uploads an evidence file to a report as a multipart form.
// The part carries the detected MIME type, the multipart Content-Type
// replaces the JSON default so the boundary survives, and the body is
// buffered so a post-refresh retry can resend it.
func (c *Client) AttachEvidence(ctx context.Context, reportID, filePath string) (json.RawMessage, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filepath.Base(filePath))))
	header.Set("Content-Type", evidence.DetectMIME(filePath))
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, "/reports/"+reportID+"/attachments", &RequestOptions{
		RawBody: buf.Bytes(),
		Headers: map[string]string{"Content-Type": w.FormDataContentType()},
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ListAttachments fetches the evidence attachments on a report.
func (c *Client) ListAttachments(ctx context.Context, reportID string) (json.RawMessage, error) {
	return c.getData(ctx, "/reports/"+reportID+"/attachments")
}
