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

// CompanyRepository defines the interface for company data access.
type CompanyRepository interface {
	Create(ctx context.Context, company *models.Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	List(ctx context.Context) ([]*models.Company, error)
	Update(ctx context.Context, company *models.Company) error
}

type companyRepository struct {
	db *database.DB
}

// NewCompanyRepository creates a new company repository.
func NewCompanyRepository(db *database.DB) CompanyRepository {
	return &companyRepository{db: db}
}

var _ CompanyRepository = (*companyRepository)(nil)

func (r *companyRepository) Create(ctx context.Context, company *models.Company) error {
	if company.ID == uuid.Nil {
		company.ID = uuid.New()
	}
	now := time.Now()
	company.CreatedAt = now
	company.UpdatedAt = now

	query := `
		INSERT INTO companies (id, name, contact_email, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		company.ID,
		company.Name,
		company.ContactEmail,
		company.IsActive,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

func (r *companyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	query := `SELECT id, name, contact_email, is_active, created_at, updated_at FROM companies WHERE id = $1`

	var company models.Company
	err := r.db.QueryRow(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.ContactEmail,
		&company.IsActive,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("company: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

func (r *companyRepository) List(ctx context.Context) ([]*models.Company, error) {
	query := `SELECT id, name, contact_email, is_active, created_at, updated_at FROM companies ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		var company models.Company
		err := rows.Scan(
			&company.ID,
			&company.Name,
			&company.ContactEmail,
			&company.IsActive,
			&company.CreatedAt,
			&company.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, &company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}

	return companies, nil
}

func (r *companyRepository) Update(ctx context.Context, company *models.Company) error {
	company.UpdatedAt = time.Now()

	query := `UPDATE companies SET name = $1, contact_email = $2, is_active = $3, updated_at = $4 WHERE id = $5`

	result, err := r.db.Exec(ctx, query,
		company.Name,
		company.ContactEmail,
		company.IsActive,
		company.UpdatedAt,
		company.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("company: %w", apperrors.ErrNotFound)
	}

	return nil
}
