package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// ModelVersionRepository defines the interface for trained model metadata.
type ModelVersionRepository interface {
	Create(ctx context.Context, model *models.ModelVersion) error
	// GetActiveForSite returns the active model for a site, or ErrNotFound.
	// If more than one is flagged active it returns the newest.
	GetActiveForSite(ctx context.Context, siteID uuid.UUID) (*models.ModelVersion, error)
	ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.ModelVersion, error)
	// SetActive flags one version active and clears the flag on the site's others.
	SetActive(ctx context.Context, siteID, modelID uuid.UUID) error
}

type modelVersionRepository struct {
	db *database.DB
}

// NewModelVersionRepository creates a new model version repository.
func NewModelVersionRepository(db *database.DB) ModelVersionRepository {
	return &modelVersionRepository{db: db}
}

var _ ModelVersionRepository = (*modelVersionRepository)(nil)

const modelColumns = `id, site_id, storage_path, model_format, model_framework, trained_at,
		training_data_start, training_data_end, metrics, is_active, version_number`

func scanModel(row pgx.Row) (*models.ModelVersion, error) {
	var model models.ModelVersion
	var metricsJSON []byte
	err := row.Scan(
		&model.ID,
		&model.SiteID,
		&model.StoragePath,
		&model.ModelFormat,
		&model.ModelFramework,
		&model.TrainedAt,
		&model.TrainingDataStart,
		&model.TrainingDataEnd,
		&metricsJSON,
		&model.IsActive,
		&model.VersionNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("model version: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan model version: %w", err)
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &model.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal model metrics: %w", err)
		}
	}
	return &model, nil
}

// Create inserts a new model version.
func (r *modelVersionRepository) Create(ctx context.Context, model *models.ModelVersion) error {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}

	metricsJSON, err := json.Marshal(model.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal model metrics: %w", err)
	}

	query := `
		INSERT INTO model_versions (id, site_id, storage_path, model_format, model_framework, trained_at,
			training_data_start, training_data_end, metrics, is_active, version_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		model.ID,
		model.SiteID,
		model.StoragePath,
		model.ModelFormat,
		model.ModelFramework,
		model.TrainedAt,
		model.TrainingDataStart,
		model.TrainingDataEnd,
		metricsJSON,
		model.IsActive,
		model.VersionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to create model version: %w", err)
	}

	return nil
}

// GetActiveForSite returns the active model for a site.
func (r *modelVersionRepository) GetActiveForSite(ctx context.Context, siteID uuid.UUID) (*models.ModelVersion, error) {
	query := `SELECT ` + modelColumns + ` FROM model_versions
		WHERE site_id = $1 AND is_active ORDER BY version_number DESC LIMIT 1`
	return scanModel(r.db.QueryRow(ctx, query, siteID))
}

// ListBySite retrieves all model versions for a site, newest first.
func (r *modelVersionRepository) ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.ModelVersion, error) {
	query := `SELECT ` + modelColumns + ` FROM model_versions WHERE site_id = $1 ORDER BY version_number DESC`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.ModelVersion
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model versions: %w", err)
	}

	return versions, nil
}

// SetActive flags one version active and clears the site's others atomically.
func (r *modelVersionRepository) SetActive(ctx context.Context, siteID, modelID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `UPDATE model_versions SET is_active = false WHERE site_id = $1`, siteID); err != nil {
		return fmt.Errorf("failed to clear active flags: %w", err)
	}

	res, err := tx.Exec(ctx, `UPDATE model_versions SET is_active = true WHERE id = $1 AND site_id = $2`, modelID, siteID)
	if err != nil {
		return fmt.Errorf("failed to set active model: %w", err)
	}
	if res.RowsAffected() == 0 {
		err = fmt.Errorf("model version: %w", apperrors.ErrNotFound)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
