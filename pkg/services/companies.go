package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// CompanyService manages tenant companies.
type CompanyService interface {
	Create(ctx context.Context, name string, contactEmail *string) (*models.Company, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Company, error)
	List(ctx context.Context) ([]*models.Company, error)
}

type companyService struct {
	companyRepo repositories.CompanyRepository
	logger      *zap.Logger
}

// NewCompanyService creates a new company service with dependencies.
func NewCompanyService(companyRepo repositories.CompanyRepository, logger *zap.Logger) CompanyService {
	return &companyService{
		companyRepo: companyRepo,
		logger:      logger,
	}
}

var _ CompanyService = (*companyService)(nil)

func (s *companyService) Create(ctx context.Context, name string, contactEmail *string) (*models.Company, error) {
	if name == "" {
		return nil, fmt.Errorf("company name is required: %w", apperrors.ErrInvalidInput)
	}

	company := &models.Company{
		Name:         name,
		ContactEmail: contactEmail,
		IsActive:     true,
	}
	if err := s.companyRepo.Create(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	s.logger.Info("Company created",
		zap.String("company_id", company.ID.String()),
		zap.String("name", name))
	return company, nil
}

func (s *companyService) Get(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	return s.companyRepo.GetByID(ctx, id)
}

func (s *companyService) List(ctx context.Context) ([]*models.Company, error) {
	return s.companyRepo.List(ctx)
}
