package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"
)

// ReportsClient fetches generated protest reports.
type ReportsClient struct {
	client *Client
}

// Report statuses.
const (
	ReportStatusPending   = "pending"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// Report is the API representation of a generated protest report.
type Report struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Account   string `json:"account"`

	Status   string `json:"status"`
	FileName string `json:"file_name"`

	Bucket     string `json:"bucket,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`

	Error string `json:"error,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// Get fetches report metadata by ID.
func (rc *ReportsClient) Get(ctx context.Context, id string) (*Report, error) {
	var rep Report
	path := fmt.Sprintf("/api/v1/reports/%s", url.PathEscape(id))
	if err := rc.client.get(ctx, path, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Download streams the rendered report body.  The caller must close the
// returned reader.  Reports that are not yet completed return an APIError
// with status 404.
func (rc *ReportsClient) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/api/v1/reports/%s/download", url.PathEscape(id))
	return rc.client.doRaw(ctx, path)
}

// WaitForCompletion polls report metadata until the report completes, fails,
// or the context is cancelled.
func (rc *ReportsClient) WaitForCompletion(ctx context.Context, id string, interval time.Duration) (*Report, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep, err := rc.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		switch rep.Status {
		case ReportStatusCompleted:
			return rep, nil
		case ReportStatusFailed:
			return rep, fmt.Errorf("report %s failed: %s", id, rep.Error)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return rep, ctx.Err()
		}
	}
}
