// Package fileserver is the HTTP client for the external object-storage
// service. Uploads go through the authenticated API base with HMAC-signed
// headers and a multipart body; public downloads stream straight from the
// public base without buffering the payload.
package fileserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadCommand is a validated request to store one file.
type UploadCommand struct {
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
	IsPublic    bool
}

// FileInfo is the descriptor the file server returns for a stored file.
type FileInfo struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
}

// Download is a streamed file body plus the headers the proxy forwards.
// ContentLength is -1 when the upstream did not declare one. The caller
// owns Body and must close it.
type Download struct {
	ContentType        string
	ContentDisposition string
	ContentLength      int64
	Body               io.ReadCloser
}

// Client talks to the file server. apiBase covers authenticated endpoints
// (upload, health); publicBase serves unauthenticated downloads.
type Client struct {
	http       *http.Client
	apiBase    string
	publicBase string
	logger     *zap.Logger
}

// NewClient returns a client over the given bases. Trailing slashes are
// tolerated.
func NewClient(httpClient *http.Client, apiBase, publicBase string, logger *zap.Logger) *Client {
	return &Client{
		http:       httpClient,
		apiBase:    strings.TrimRight(apiBase, "/"),
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger,
	}
}

// uploadResponse is the wrapper the file server answers uploads with.
type uploadResponse struct {
	Data    *FileInfo `json:"data"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// Upload POSTs the multipart form {project_id, user_id, is_public, file}
// with the provided auth headers and returns the stored file's descriptor.
func (c *Client) Upload(ctx context.Context, headers map[string]string, projectID string, cmd UploadCommand) (*FileInfo, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := []struct{ name, value string }{
		{"project_id", projectID},
		{"user_id", cmd.UserID},
		{"is_public", boolField(cmd.IsPublic)},
	}
	for _, f := range fields {
		if err := form.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("fileserver: write form field %s: %w", f.name, err)
		}
	}

	part, err := form.CreatePart(fileFieldHeader(cmd.Filename, cmd.ContentType))
	if err != nil {
		return nil, fmt.Errorf("fileserver: create file part: %w", err)
	}
	if _, err := part.Write(cmd.Content); err != nil {
		return nil, fmt.Errorf("fileserver: write file part: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("fileserver: close multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/files", &body)
	if err != nil {
		return nil, fmt.Errorf("fileserver: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, upstreamf("upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, upstreamf("upload status %d: %s", resp.StatusCode, detail)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, upstreamf("invalid upload response: %v", err)
	}
	if out.Data == nil {
		return nil, upstreamf("upload response missing data")
	}

	c.logger.Info("file uploaded",
		zap.String("file_id", out.Data.ID.String()),
		zap.String("original_name", out.Data.OriginalName),
		zap.Int64("size", out.Data.Size),
	)
	return out.Data, nil
}

// DownloadPublic GETs `{publicBase}/files/{id}` and returns the body as a
// stream. No layer buffers the payload: peak memory stays at chunk size
// regardless of the file size.
func (c *Client) DownloadPublic(ctx context.Context, fileID uuid.UUID) (*Download, error) {
	url := fmt.Sprintf("%s/files/%s", c.publicBase, fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fileserver: build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, upstreamf("download request failed: %v", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, upstreamf("download status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Download{
		ContentType:        contentType,
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentLength:      resp.ContentLength,
		Body:               resp.Body,
	}, nil
}

// Health proxies the file server's health endpoint and returns its JSON
// body verbatim. db=true asks the upstream to include its database check.
func (c *Client) Health(ctx context.Context, db bool) (json.RawMessage, error) {
	url := c.apiBase + "/health"
	if db {
		url += "?db=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fileserver: build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, upstreamf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamf("health status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, upstreamf("read health response: %v", err)
	}
	if !json.Valid(body) {
		return nil, upstreamf("health response is not valid JSON")
	}
	return body, nil
}

// boolField renders is_public the way the file server expects it: the
// literal strings "true" / "false".
func boolField(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// fileFieldHeader builds the MIME header for the file part, carrying the
// client-declared content type instead of the multipart default.
func fileFieldHeader(filename, contentType string) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	return h
}
