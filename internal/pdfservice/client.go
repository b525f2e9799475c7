// Package pdfservice is the HTTP client for the remote PDF rendering
// service: one call submits a batch of document items, a second polls the
// resulting job until it reaches a terminal state.
package pdfservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Remote job statuses reported by GET /jobs/{id}.
const (
	StatusQueued         = "QUEUED"
	StatusRunning        = "RUNNING"
	StatusDone           = "DONE"
	StatusDoneWithErrors = "DONE_WITH_ERRORS"
	StatusFailed         = "FAILED"
)

// Field is one key/value pair substituted into the PDF template.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Item is one document in a generate-doc batch. QR and QRPDF are free-form
// arrays of single-entry maps; their shape is forwarded verbatim from the
// inbound bulk job.
type Item struct {
	Template string           `json:"template"`
	UserID   string           `json:"user_id"`
	IsPublic bool             `json:"is_public"`
	QR       []map[string]any `json:"qr"`
	QRPDF    []map[string]any `json:"qr_pdf"`
	PDF      []Field          `json:"pdf"`
}

// GenerateDocResponse acknowledges an accepted batch.
type GenerateDocResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

// JobMeta carries the job counters. The service reports them as strings.
type JobMeta struct {
	Status    string `json:"status"`
	Total     string `json:"total"`
	Processed string `json:"processed"`
	Failed    string `json:"failed"`
}

// ResultItem links one generated file back to the submitted user id.
type ResultItem struct {
	UserID string `json:"user_id"`
	FileID string `json:"file_id"`
}

// JobStatus is the poll response for one remote job.
type JobStatus struct {
	JobID   string       `json:"job_id"`
	Meta    JobMeta      `json:"meta"`
	Results []ResultItem `json:"results"`
}

// Terminal reports whether the status ends the poll loop.
func (s *JobStatus) Terminal() bool {
	switch s.Meta.Status {
	case StatusDone, StatusDoneWithErrors, StatusFailed:
		return true
	}
	return false
}

// UpstreamError is any failure of the remote service: non-2xx, transport
// errors, invalid JSON.
type UpstreamError struct {
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("pdfservice: upstream error: %s", e.Detail)
}

// Client calls the PDF service at a configured base URL.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient returns a client for the service at baseURL.
func NewClient(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// GenerateDoc POSTs the batch to /generate-doc and returns the remote job
// acknowledgment.
func (c *Client) GenerateDoc(ctx context.Context, items []Item) (*GenerateDocResponse, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("pdfservice: marshal items: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-doc", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("pdfservice: build generate-doc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Detail: fmt.Sprintf("generate-doc request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Detail: fmt.Sprintf("generate-doc status %d: %s", resp.StatusCode, detail)}
	}

	var out GenerateDocResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{Detail: fmt.Sprintf("invalid generate-doc response: %v", err)}
	}

	c.logger.Info("pdf batch accepted",
		zap.String("pdf_job_id", out.JobID),
		zap.String("status", out.Status),
		zap.Int64("total", out.Total),
	)
	return &out, nil
}

// GetJob polls /jobs/{id} for the remote job state.
func (c *Client) GetJob(ctx context.Context, remoteID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+remoteID, nil)
	if err != nil {
		return nil, fmt.Errorf("pdfservice: build get-job request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Detail: fmt.Sprintf("get-job request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Detail: fmt.Sprintf("get-job status %d: %s", resp.StatusCode, detail)}
	}

	var out JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{Detail: fmt.Sprintf("invalid get-job response: %v", err)}
	}
	return &out, nil
}
