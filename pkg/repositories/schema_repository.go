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

// SchemaRepository defines the interface for site data schema access.
// Schema rows are immutable once created; there is deliberately no update.
type SchemaRepository interface {
	Create(ctx context.Context, schema *models.SiteDataSchema) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SiteDataSchema, error)
	ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.SiteDataSchema, error)
	// LatestVersionNumber returns the highest version number for a site,
	// or 0 when the site has no schemas yet.
	LatestVersionNumber(ctx context.Context, siteID uuid.UUID) (int, error)
}

type schemaRepository struct {
	db *database.DB
}

// NewSchemaRepository creates a new schema repository.
func NewSchemaRepository(db *database.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

var _ SchemaRepository = (*schemaRepository)(nil)

const schemaColumns = `id, site_id, version_number, definition, effective_from, change_description, created_by_id, created_at`

func scanSchema(row pgx.Row) (*models.SiteDataSchema, error) {
	var schema models.SiteDataSchema
	err := row.Scan(
		&schema.ID,
		&schema.SiteID,
		&schema.VersionNumber,
		&schema.Definition,
		&schema.EffectiveFrom,
		&schema.ChangeDescription,
		&schema.CreatedByID,
		&schema.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("schema: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan schema: %w", err)
	}
	return &schema, nil
}

// Create inserts a new immutable schema version.
func (r *schemaRepository) Create(ctx context.Context, schema *models.SiteDataSchema) error {
	if schema.ID == uuid.Nil {
		schema.ID = uuid.New()
	}
	schema.CreatedAt = time.Now()
	if schema.EffectiveFrom.IsZero() {
		schema.EffectiveFrom = schema.CreatedAt
	}

	query := `
		INSERT INTO site_data_schemas (id, site_id, version_number, definition, effective_from, change_description, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		schema.ID,
		schema.SiteID,
		schema.VersionNumber,
		[]byte(schema.Definition),
		schema.EffectiveFrom,
		schema.ChangeDescription,
		schema.CreatedByID,
		schema.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GetByID retrieves one schema version.
func (r *schemaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SiteDataSchema, error) {
	query := `SELECT ` + schemaColumns + ` FROM site_data_schemas WHERE id = $1`
	return scanSchema(r.db.QueryRow(ctx, query, id))
}

// ListBySite retrieves all schema versions for a site, newest first.
func (r *schemaRepository) ListBySite(ctx context.Context, siteID uuid.UUID) ([]*models.SiteDataSchema, error) {
	query := `SELECT ` + schemaColumns + ` FROM site_data_schemas WHERE site_id = $1 ORDER BY version_number DESC`

	rows, err := r.db.Query(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []*models.SiteDataSchema
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schemas: %w", err)
	}

	return schemas, nil
}

// LatestVersionNumber returns the highest version number for a site.
func (r *schemaRepository) LatestVersionNumber(ctx context.Context, siteID uuid.UUID) (int, error) {
	var version int
	query := `SELECT COALESCE(MAX(version_number), 0) FROM site_data_schemas WHERE site_id = $1`

	if err := r.db.QueryRow(ctx, query, siteID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get latest schema version: %w", err)
	}

	return version, nil
}
