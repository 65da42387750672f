package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload is the audit record of one ingestion attempt. It is created before
// validation runs and updated at each phase boundary; the pipeline never
// deletes one.
type Upload struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"site_id"`

	// UserID is nil for system-triggered uploads.
	UserID *uuid.UUID `json:"user_id,omitempty"`

	UploadedAt time.Time `json:"uploaded_at"`
	FileName   string    `json:"file_name"`

	RowsParsed   int `json:"rows_parsed"`
	RowsInserted int `json:"rows_inserted"`

	ValidationStatus string  `json:"validation_status"`
	ErrorMessage     *string `json:"error_message,omitempty"`
}

// Upload validation status constants. Persisted as text.
const (
	UploadStatusPending   = "pending"
	UploadStatusValidated = "validated"
	UploadStatusInvalid   = "invalid"
)
