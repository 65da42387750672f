package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// ModelRegistration carries the fields the training runner reports when it
// publishes a finished model artifact.
type ModelRegistration struct {
	StoragePath       string         `json:"storagePath"`
	ModelFormat       *string        `json:"modelFormat,omitempty"`
	ModelFramework    *string        `json:"modelFramework,omitempty"`
	TrainedAt         *time.Time     `json:"trainedAt,omitempty"`
	TrainingDataStart *time.Time     `json:"trainingDataStart,omitempty"`
	TrainingDataEnd   *time.Time     `json:"trainingDataEnd,omitempty"`
	Metrics           map[string]any `json:"metrics,omitempty"`
	Activate          bool           `json:"activate"`
}

// InferenceService records inference work against a site's active model and
// manages the site's model version registry.
// Requests are durable intents picked up by the external inference runner.
type InferenceService interface {
	// TriggerForSite creates a pending inference request against the site's
	// active model. Returns (nil, nil) when the site has no active model.
	TriggerForSite(ctx context.Context, siteID uuid.UUID, requestedByID *uuid.UUID) (*models.InferenceRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.InferenceRequest, error)
	ListRequests(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.InferenceRequest, error)

	ListModels(ctx context.Context, siteID uuid.UUID) ([]*models.ModelVersion, error)
	// RegisterModel stores a new model version with the next version number
	// for the site, optionally activating it.
	RegisterModel(ctx context.Context, siteID uuid.UUID, reg ModelRegistration) (*models.ModelVersion, error)
	// ActivateModel makes the given version the site's single active model.
	ActivateModel(ctx context.Context, siteID, modelID uuid.UUID) error
}

type inferenceService struct {
	modelRepo     repositories.ModelVersionRepository
	inferenceRepo repositories.InferenceRepository
	logger        *zap.Logger
}

// NewInferenceService creates a new inference service with dependencies.
func NewInferenceService(
	modelRepo repositories.ModelVersionRepository,
	inferenceRepo repositories.InferenceRepository,
	logger *zap.Logger,
) InferenceService {
	return &inferenceService{
		modelRepo:     modelRepo,
		inferenceRepo: inferenceRepo,
		logger:        logger,
	}
}

var _ InferenceService = (*inferenceService)(nil)

func (s *inferenceService) TriggerForSite(ctx context.Context, siteID uuid.UUID, requestedByID *uuid.UUID) (*models.InferenceRequest, error) {
	model, err := s.modelRepo.GetActiveForSite(ctx, siteID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Info("No active model for site, skipping inference",
				zap.String("site_id", siteID.String()))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve active model: %w", err)
	}

	request := &models.InferenceRequest{
		SiteID: siteID,
		UserID: requestedByID,
		Status: models.InferenceStatusPending,
		InputData: map[string]any{
			"modelVersionId": model.ID.String(),
		},
	}
	if err := s.inferenceRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}

	s.logger.Info("Inference request created",
		zap.String("site_id", siteID.String()),
		zap.String("request_id", request.ID.String()),
		zap.String("model_version_id", model.ID.String()))

	return request, nil
}

func (s *inferenceService) GetRequest(ctx context.Context, id uuid.UUID) (*models.InferenceRequest, error) {
	return s.inferenceRepo.GetByID(ctx, id)
}

func (s *inferenceService) ListRequests(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.InferenceRequest, error) {
	return s.inferenceRepo.ListBySite(ctx, siteID, limit)
}

func (s *inferenceService) ListModels(ctx context.Context, siteID uuid.UUID) ([]*models.ModelVersion, error) {
	return s.modelRepo.ListBySite(ctx, siteID)
}

func (s *inferenceService) RegisterModel(ctx context.Context, siteID uuid.UUID, reg ModelRegistration) (*models.ModelVersion, error) {
	if reg.StoragePath == "" {
		return nil, fmt.Errorf("model storage path is required: %w", apperrors.ErrInvalidInput)
	}

	existing, err := s.modelRepo.ListBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	version := 1
	for _, mv := range existing {
		if mv.VersionNumber >= version {
			version = mv.VersionNumber + 1
		}
	}

	model := &models.ModelVersion{
		SiteID:            siteID,
		StoragePath:       reg.StoragePath,
		ModelFormat:       reg.ModelFormat,
		ModelFramework:    reg.ModelFramework,
		TrainedAt:         reg.TrainedAt,
		TrainingDataStart: reg.TrainingDataStart,
		TrainingDataEnd:   reg.TrainingDataEnd,
		Metrics:           reg.Metrics,
		VersionNumber:     version,
	}
	if err := s.modelRepo.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to register model version: %w", err)
	}

	if reg.Activate {
		if err := s.modelRepo.SetActive(ctx, siteID, model.ID); err != nil {
			return nil, fmt.Errorf("failed to activate model version: %w", err)
		}
		model.IsActive = true
	}

	s.logger.Info("Model version registered",
		zap.String("site_id", siteID.String()),
		zap.String("model_version_id", model.ID.String()),
		zap.Int("version_number", model.VersionNumber),
		zap.Bool("active", model.IsActive))

	return model, nil
}

func (s *inferenceService) ActivateModel(ctx context.Context, siteID, modelID uuid.UUID) error {
	if err := s.modelRepo.SetActive(ctx, siteID, modelID); err != nil {
		return err
	}
	s.logger.Info("Active model changed",
		zap.String("site_id", siteID.String()),
		zap.String("model_version_id", modelID.String()))
	return nil
}
