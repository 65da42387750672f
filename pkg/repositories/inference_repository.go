package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// InferenceRepository defines the interface for inference request records.
type InferenceRepository interface {
	Create(ctx context.Context, req *models.InferenceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.InferenceRequest, error)
	ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.InferenceRequest, error)
}

type inferenceRepository struct {
	db *database.DB
}

// NewInferenceRepository creates a new inference repository.
func NewInferenceRepository(db *database.DB) InferenceRepository {
	return &inferenceRepository{db: db}
}

var _ InferenceRepository = (*inferenceRepository)(nil)

const inferenceColumns = `id, site_id, user_id, requested_at, status, input_data,
		prediction_result_id, completed_at, duration_ms, error_message`

func scanInferenceRequest(row pgx.Row) (*models.InferenceRequest, error) {
	var req models.InferenceRequest
	var inputJSON []byte
	err := row.Scan(
		&req.ID,
		&req.SiteID,
		&req.UserID,
		&req.RequestedAt,
		&req.Status,
		&inputJSON,
		&req.PredictionResultID,
		&req.CompletedAt,
		&req.DurationMs,
		&req.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("inference request: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan inference request: %w", err)
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &req.InputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inference input: %w", err)
		}
	}
	return &req, nil
}

// Create inserts a new inference request.
func (r *inferenceRepository) Create(ctx context.Context, req *models.InferenceRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	if req.Status == "" {
		req.Status = models.InferenceStatusPending
	}

	inputJSON, err := json.Marshal(req.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal inference input: %w", err)
	}

	query := `
		INSERT INTO inference_requests (id, site_id, user_id, requested_at, status, input_data,
			prediction_result_id, completed_at, duration_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		req.ID,
		req.SiteID,
		req.UserID,
		req.RequestedAt,
		req.Status,
		inputJSON,
		req.PredictionResultID,
		req.CompletedAt,
		req.DurationMs,
		req.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create inference request: %w", err)
	}

	return nil
}

// GetByID retrieves one inference request.
func (r *inferenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.InferenceRequest, error) {
	query := `SELECT ` + inferenceColumns + ` FROM inference_requests WHERE id = $1`
	return scanInferenceRequest(r.db.QueryRow(ctx, query, id))
}

// ListBySite retrieves the most recent inference requests for a site.
func (r *inferenceRepository) ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.InferenceRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + inferenceColumns + ` FROM inference_requests
		WHERE site_id = $1 ORDER BY requested_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inference requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.InferenceRequest
	for rows.Next() {
		req, err := scanInferenceRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inference requests: %w", err)
	}

	return requests, nil
}
