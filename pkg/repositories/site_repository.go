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

// SiteRepository defines the interface for site data access.
type SiteRepository interface {
	Create(ctx context.Context, site *models.Site) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Site, error)
	Update(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Site, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Site, error)
	ListAll(ctx context.Context) ([]*models.Site, error)
	// ListAllIDs returns every site id in the system, for globally
	// privileged access resolution.
	ListAllIDs(ctx context.Context) ([]uuid.UUID, error)
	// SetCurrentSchema repoints the site's current schema version.
	SetCurrentSchema(ctx context.Context, siteID uuid.UUID, schemaID *uuid.UUID) error
}

type siteRepository struct {
	db *database.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *database.DB) SiteRepository {
	return &siteRepository{db: db}
}

var _ SiteRepository = (*siteRepository)(nil)

const siteColumns = `id, company_id, name, location, timezone, status, onboarding_notes, activated_at,
		current_schema_version_id, config, auto_inference_enabled, inference_schedule,
		auto_retraining_enabled, retraining_frequency_days, train_on_every_upload, created_at, updated_at`

func scanSite(row pgx.Row) (*models.Site, error) {
	var site models.Site
	var configJSON []byte
	err := row.Scan(
		&site.ID,
		&site.CompanyID,
		&site.Name,
		&site.Location,
		&site.Timezone,
		&site.Status,
		&site.OnboardingNotes,
		&site.ActivatedAt,
		&site.CurrentSchemaVersionID,
		&configJSON,
		&site.AutoInferenceEnabled,
		&site.InferenceSchedule,
		&site.AutoRetrainingEnabled,
		&site.RetrainingFrequencyDays,
		&site.TrainOnEveryUpload,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("site: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan site: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &site.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal site config: %w", err)
		}
	}
	return &site, nil
}

// Create inserts a new site.
func (r *siteRepository) Create(ctx context.Context, site *models.Site) error {
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}
	now := time.Now()
	site.CreatedAt = now
	site.UpdatedAt = now
	if site.Status == "" {
		site.Status = models.SiteStatusPendingSetup
	}
	if site.Config == nil {
		site.Config = map[string]any{}
	}

	configJSON, err := json.Marshal(site.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal site config: %w", err)
	}

	query := `
		INSERT INTO sites (id, company_id, name, location, timezone, status, onboarding_notes, activated_at,
			current_schema_version_id, config, auto_inference_enabled, inference_schedule,
			auto_retraining_enabled, retraining_frequency_days, train_on_every_upload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.Exec(ctx, query,
		site.ID,
		site.CompanyID,
		site.Name,
		site.Location,
		site.Timezone,
		site.Status,
		site.OnboardingNotes,
		site.ActivatedAt,
		site.CurrentSchemaVersionID,
		configJSON,
		site.AutoInferenceEnabled,
		site.InferenceSchedule,
		site.AutoRetrainingEnabled,
		site.RetrainingFrequencyDays,
		site.TrainOnEveryUpload,
		site.CreatedAt,
		site.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	return nil
}

// GetByID retrieves a site by primary key.
func (r *siteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`
	return scanSite(r.db.QueryRow(ctx, query, id))
}

// Update persists all mutable site fields.
func (r *siteRepository) Update(ctx context.Context, site *models.Site) error {
	site.UpdatedAt = time.Now()

	configJSON, err := json.Marshal(site.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal site config: %w", err)
	}

	query := `
		UPDATE sites
		SET name = $1, location = $2, timezone = $3, status = $4, onboarding_notes = $5,
		    activated_at = $6, current_schema_version_id = $7, config = $8,
		    auto_inference_enabled = $9, inference_schedule = $10, auto_retraining_enabled = $11,
		    retraining_frequency_days = $12, train_on_every_upload = $13, updated_at = $14
		WHERE id = $15`

	result, err := r.db.Exec(ctx, query,
		site.Name,
		site.Location,
		site.Timezone,
		site.Status,
		site.OnboardingNotes,
		site.ActivatedAt,
		site.CurrentSchemaVersionID,
		configJSON,
		site.AutoInferenceEnabled,
		site.InferenceSchedule,
		site.AutoRetrainingEnabled,
		site.RetrainingFrequencyDays,
		site.TrainOnEveryUpload,
		site.UpdatedAt,
		site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("site: %w", apperrors.ErrNotFound)
	}

	return nil
}

// Delete removes a site and, by cascade, all its dependent rows.
func (r *siteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("site: %w", apperrors.ErrNotFound)
	}

	return nil
}

func (r *siteRepository) listQuery(ctx context.Context, query string, args ...any) ([]*models.Site, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sites: %w", err)
	}

	return sites, nil
}

// ListByCompany retrieves all sites owned by a company.
func (r *siteRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE company_id = $1 ORDER BY created_at`
	return r.listQuery(ctx, query, companyID)
}

// ListByIDs retrieves the sites with the given ids, ordered by creation time.
func (r *siteRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Site, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = ANY($1) ORDER BY created_at`
	return r.listQuery(ctx, query, ids)
}

// ListAll retrieves every site in the system.
func (r *siteRepository) ListAll(ctx context.Context) ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY created_at`
	return r.listQuery(ctx, query)
}

// ListAllIDs returns every site id in the system.
func (r *siteRepository) ListAllIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM sites ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list site ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan site id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site ids: %w", err)
	}

	return ids, nil
}

// SetCurrentSchema repoints the site's current schema version.
func (r *siteRepository) SetCurrentSchema(ctx context.Context, siteID uuid.UUID, schemaID *uuid.UUID) error {
	query := `UPDATE sites SET current_schema_version_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, schemaID, time.Now(), siteID)
	if err != nil {
		return fmt.Errorf("failed to set current schema: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("site: %w", apperrors.ErrNotFound)
	}

	return nil
}
