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

// DashboardRepository defines the interface for saved dashboard access.
type DashboardRepository interface {
	Create(ctx context.Context, dashboard *models.Dashboard) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dashboard, error)
	Update(ctx context.Context, dashboard *models.Dashboard) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.Dashboard, error)
	// TouchLastViewed stamps last_viewed_at with the current time.
	TouchLastViewed(ctx context.Context, id uuid.UUID) error
}

type dashboardRepository struct {
	db *database.DB
}

// NewDashboardRepository creates a new dashboard repository.
func NewDashboardRepository(db *database.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

var _ DashboardRepository = (*dashboardRepository)(nil)

const dashboardColumns = `id, site_id, created_by_id, name, description, plot_config,
		is_public, created_at, updated_at, last_viewed_at`

func scanDashboard(row pgx.Row) (*models.Dashboard, error) {
	var d models.Dashboard
	var configJSON []byte
	err := row.Scan(
		&d.ID,
		&d.SiteID,
		&d.CreatedByID,
		&d.Name,
		&d.Description,
		&configJSON,
		&d.IsPublic,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.LastViewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan dashboard: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &d.PlotConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plot config: %w", err)
		}
	}
	return &d, nil
}

// Create inserts a new dashboard.
func (r *dashboardRepository) Create(ctx context.Context, dashboard *models.Dashboard) error {
	if dashboard.ID == uuid.Nil {
		dashboard.ID = uuid.New()
	}
	now := time.Now()
	if dashboard.CreatedAt.IsZero() {
		dashboard.CreatedAt = now
	}
	dashboard.UpdatedAt = now

	configJSON, err := json.Marshal(dashboard.PlotConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal plot config: %w", err)
	}

	query := `
		INSERT INTO dashboards (id, site_id, created_by_id, name, description, plot_config,
			is_public, created_at, updated_at, last_viewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		dashboard.ID,
		dashboard.SiteID,
		dashboard.CreatedByID,
		dashboard.Name,
		dashboard.Description,
		configJSON,
		dashboard.IsPublic,
		dashboard.CreatedAt,
		dashboard.UpdatedAt,
		dashboard.LastViewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	return nil
}

// GetByID retrieves a dashboard by primary key.
func (r *dashboardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE id = $1`
	return scanDashboard(r.db.QueryRow(ctx, query, id))
}

// Update rewrites the dashboard's mutable fields.
func (r *dashboardRepository) Update(ctx context.Context, dashboard *models.Dashboard) error {
	dashboard.UpdatedAt = time.Now()

	configJSON, err := json.Marshal(dashboard.PlotConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal plot config: %w", err)
	}

	query := `
		UPDATE dashboards
		SET name = $2, description = $3, plot_config = $4, is_public = $5, updated_at = $6
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		dashboard.ID,
		dashboard.Name,
		dashboard.Description,
		configJSON,
		dashboard.IsPublic,
		dashboard.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update dashboard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
	}

	return nil
}

// Delete removes a dashboard.
func (r *dashboardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ListBySite retrieves a site's dashboards, most recently updated first.
func (r *dashboardRepository) ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards
		WHERE site_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	defer rows.Close()

	var dashboards []*models.Dashboard
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		dashboards = append(dashboards, d)
	}
	return dashboards, rows.Err()
}

// TouchLastViewed stamps last_viewed_at with the current time.
func (r *dashboardRepository) TouchLastViewed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE dashboards SET last_viewed_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to touch dashboard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
	}
	return nil
}
