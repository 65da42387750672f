package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// UploadRepository defines the interface for upload audit record access.
type UploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	Update(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Upload, error)
}

type uploadRepository struct {
	db *database.DB
}

// NewUploadRepository creates a new upload repository.
func NewUploadRepository(db *database.DB) UploadRepository {
	return &uploadRepository{db: db}
}

var _ UploadRepository = (*uploadRepository)(nil)

const uploadColumns = `id, site_id, user_id, uploaded_at, file_name, rows_parsed, rows_inserted, validation_status, error_message`

func scanUpload(row pgx.Row) (*models.Upload, error) {
	var upload models.Upload
	err := row.Scan(
		&upload.ID,
		&upload.SiteID,
		&upload.UserID,
		&upload.UploadedAt,
		&upload.FileName,
		&upload.RowsParsed,
		&upload.RowsInserted,
		&upload.ValidationStatus,
		&upload.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("upload: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}
	return &upload, nil
}

// Create inserts a new upload audit record.
func (r *uploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	if upload.ID == uuid.Nil {
		upload.ID = uuid.New()
	}
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now()
	}
	if upload.ValidationStatus == "" {
		upload.ValidationStatus = models.UploadStatusPending
	}

	query := `
		INSERT INTO uploads (id, site_id, user_id, uploaded_at, file_name, rows_parsed, rows_inserted, validation_status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		upload.ID,
		upload.SiteID,
		upload.UserID,
		upload.UploadedAt,
		upload.FileName,
		upload.RowsParsed,
		upload.RowsInserted,
		upload.ValidationStatus,
		upload.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	return nil
}

// Update persists the mutable phase-boundary fields of an upload record.
func (r *uploadRepository) Update(ctx context.Context, upload *models.Upload) error {
	query := `
		UPDATE uploads
		SET rows_parsed = $1, rows_inserted = $2, validation_status = $3, error_message = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query,
		upload.RowsParsed,
		upload.RowsInserted,
		upload.ValidationStatus,
		upload.ErrorMessage,
		upload.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("upload: %w", apperrors.ErrNotFound)
	}

	return nil
}

// GetByID retrieves one upload record.
func (r *uploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	return scanUpload(r.db.QueryRow(ctx, query, id))
}

// ListBySite retrieves the most recent uploads for a site.
func (r *uploadRepository) ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Upload, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE site_id = $1 ORDER BY uploaded_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	return uploads, nil
}
