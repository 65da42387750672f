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

// DashboardInput carries the caller-editable dashboard fields.
type DashboardInput struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	PlotConfig  map[string]any `json:"plotConfig,omitempty"`
	IsPublic    bool           `json:"isPublic"`
}

// DashboardService manages saved dashboards for a site.
type DashboardService interface {
	Create(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input DashboardInput) (*models.Dashboard, error)
	// Get returns the dashboard and stamps its last-viewed time. Dashboards
	// belonging to a different site are reported as not found.
	Get(ctx context.Context, siteID, id uuid.UUID) (*models.Dashboard, error)
	List(ctx context.Context, siteID uuid.UUID) ([]*models.Dashboard, error)
	Update(ctx context.Context, siteID, id uuid.UUID, input DashboardInput) (*models.Dashboard, error)
	Delete(ctx context.Context, siteID, id uuid.UUID) error
}

type dashboardService struct {
	dashboardRepo repositories.DashboardRepository
	logger        *zap.Logger
}

// NewDashboardService creates a new dashboard service with dependencies.
func NewDashboardService(dashboardRepo repositories.DashboardRepository, logger *zap.Logger) DashboardService {
	return &dashboardService{
		dashboardRepo: dashboardRepo,
		logger:        logger,
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) Create(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input DashboardInput) (*models.Dashboard, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("dashboard name is required: %w", apperrors.ErrInvalidInput)
	}

	dashboard := &models.Dashboard{
		SiteID:      siteID,
		CreatedByID: createdByID,
		Name:        input.Name,
		Description: input.Description,
		PlotConfig:  input.PlotConfig,
		IsPublic:    input.IsPublic,
	}
	if err := s.dashboardRepo.Create(ctx, dashboard); err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}

	s.logger.Info("Dashboard created",
		zap.String("site_id", siteID.String()),
		zap.String("dashboard_id", dashboard.ID.String()))
	return dashboard, nil
}

func (s *dashboardService) Get(ctx context.Context, siteID, id uuid.UUID) (*models.Dashboard, error) {
	dashboard, err := s.getOwned(ctx, siteID, id)
	if err != nil {
		return nil, err
	}

	// View stamping is best effort.
	if err := s.dashboardRepo.TouchLastViewed(ctx, id); err != nil {
		s.logger.Warn("Failed to stamp dashboard view",
			zap.String("dashboard_id", id.String()),
			zap.Error(err))
	}
	return dashboard, nil
}

// getOwned fetches the dashboard and verifies it belongs to the site.
func (s *dashboardService) getOwned(ctx context.Context, siteID, id uuid.UUID) (*models.Dashboard, error) {
	dashboard, err := s.dashboardRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dashboard.SiteID != siteID {
		return nil, fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
	}
	return dashboard, nil
}

func (s *dashboardService) List(ctx context.Context, siteID uuid.UUID) ([]*models.Dashboard, error) {
	return s.dashboardRepo.ListBySite(ctx, siteID)
}

func (s *dashboardService) Update(ctx context.Context, siteID, id uuid.UUID, input DashboardInput) (*models.Dashboard, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("dashboard name is required: %w", apperrors.ErrInvalidInput)
	}

	dashboard, err := s.getOwned(ctx, siteID, id)
	if err != nil {
		return nil, err
	}

	dashboard.Name = input.Name
	dashboard.Description = input.Description
	dashboard.PlotConfig = input.PlotConfig
	dashboard.IsPublic = input.IsPublic

	if err := s.dashboardRepo.Update(ctx, dashboard); err != nil {
		return nil, fmt.Errorf("failed to update dashboard: %w", err)
	}
	return dashboard, nil
}

func (s *dashboardService) Delete(ctx context.Context, siteID, id uuid.UUID) error {
	if _, err := s.getOwned(ctx, siteID, id); err != nil {
		return err
	}
	return s.dashboardRepo.Delete(ctx, id)
}
