// Package reporting turns frozen protest sessions into the plain-text
// evidence package the owner files with the appraisal review board.
package reporting

import (
	"context"
	"time"

	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// Status tracks a report through its render lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Report is the metadata row for one rendered protest packet; the document
// body lives in object storage under StorageKey.
type Report struct {
	ID        common.ID            `json:"id"`
	SessionID common.ID            `json:"session_id"`
	Account   common.AccountNumber `json:"account"`

	Status   Status `json:"status"`
	FileName string `json:"file_name"`

	Bucket     string `json:"bucket,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`

	// Error carries the failure reason when Status is failed.
	Error string `json:"error,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// Repository persists report metadata.
type Repository interface {
	// Save inserts or updates the report row.
	Save(ctx context.Context, r *Report) error

	// FindByID returns the stored report, or an ErrCodeReportNotFound
	// AppError when no report has that ID.
	FindByID(ctx context.Context, id common.ID) (*Report, error)

	// FindBySession lists a session's reports, newest first.
	FindBySession(ctx context.Context, sessionID common.ID) ([]*Report, error)
}
