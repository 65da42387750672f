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

// AccessRepository defines the interface for per-site access grants.
type AccessRepository interface {
	// Get returns the explicit grant for (user, site), or ErrNotFound.
	Get(ctx context.Context, userID, siteID uuid.UUID) (*models.UserSiteAccess, error)
	// Upsert creates or updates the grant for (user, site).
	Upsert(ctx context.Context, access *models.UserSiteAccess) error
	Delete(ctx context.Context, userID, siteID uuid.UUID) error
	// ListSiteIDsForUser returns the site ids the user has explicit grants on.
	ListSiteIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// ListForSite returns all grants on a site.
	ListForSite(ctx context.Context, siteID uuid.UUID) ([]*models.UserSiteAccess, error)
}

type accessRepository struct {
	db *database.DB
}

// NewAccessRepository creates a new access repository.
func NewAccessRepository(db *database.DB) AccessRepository {
	return &accessRepository{db: db}
}

var _ AccessRepository = (*accessRepository)(nil)

// Get returns the explicit grant for (user, site).
func (r *accessRepository) Get(ctx context.Context, userID, siteID uuid.UUID) (*models.UserSiteAccess, error) {
	query := `SELECT user_id, site_id, role, created_at FROM user_site_access WHERE user_id = $1 AND site_id = $2`

	var access models.UserSiteAccess
	err := r.db.QueryRow(ctx, query, userID, siteID).Scan(
		&access.UserID,
		&access.SiteID,
		&access.Role,
		&access.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("site access: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get site access: %w", err)
	}

	return &access, nil
}

// Upsert creates or updates the grant for (user, site).
func (r *accessRepository) Upsert(ctx context.Context, access *models.UserSiteAccess) error {
	access.CreatedAt = time.Now()

	query := `
		INSERT INTO user_site_access (user_id, site_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, site_id) DO UPDATE
		SET role = EXCLUDED.role`

	_, err := r.db.Exec(ctx, query,
		access.UserID,
		access.SiteID,
		access.Role,
		access.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert site access: %w", err)
	}

	return nil
}

// Delete removes the grant for (user, site).
func (r *accessRepository) Delete(ctx context.Context, userID, siteID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM user_site_access WHERE user_id = $1 AND site_id = $2`, userID, siteID)
	if err != nil {
		return fmt.Errorf("failed to delete site access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("site access: %w", apperrors.ErrNotFound)
	}

	return nil
}

// ListSiteIDsForUser returns the site ids the user has explicit grants on.
func (r *accessRepository) ListSiteIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT site_id FROM user_site_access WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible sites: %w", err)
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

// ListForSite returns all grants on a site.
func (r *accessRepository) ListForSite(ctx context.Context, siteID uuid.UUID) ([]*models.UserSiteAccess, error) {
	query := `SELECT user_id, site_id, role, created_at FROM user_site_access WHERE site_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list site access: %w", err)
	}
	defer rows.Close()

	var grants []*models.UserSiteAccess
	for rows.Next() {
		var access models.UserSiteAccess
		if err := rows.Scan(&access.UserID, &access.SiteID, &access.Role, &access.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site access: %w", err)
		}
		grants = append(grants, &access)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site access: %w", err)
	}

	return grants, nil
}
