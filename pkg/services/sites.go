package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// SiteInput carries the caller-editable site fields.
type SiteInput struct {
	Name     string  `json:"name"`
	Location *string `json:"location,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// AutomationSettings carries the per-site ML automation knobs.
type AutomationSettings struct {
	AutoInferenceEnabled    bool    `json:"autoInferenceEnabled"`
	InferenceSchedule       *string `json:"inferenceSchedule,omitempty"`
	AutoRetrainingEnabled   bool    `json:"autoRetrainingEnabled"`
	RetrainingFrequencyDays *int    `json:"retrainingFrequencyDays,omitempty"`
	TrainOnEveryUpload      bool    `json:"trainOnEveryUpload"`
}

// SiteService manages site lifecycle, schema versions, and training
// scheduling.
type SiteService interface {
	Create(ctx context.Context, companyID uuid.UUID, input SiteInput) (*models.Site, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Site, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Site, error)
	ListAll(ctx context.Context) ([]*models.Site, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Site, error)
	Update(ctx context.Context, id uuid.UUID, input SiteInput) (*models.Site, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStatus moves the site through its lifecycle. Transitions into
	// active stamp the activation time.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Site, error)
	UpdateAutomation(ctx context.Context, id uuid.UUID, settings AutomationSettings) (*models.Site, error)

	// CreateSchemaVersion appends an immutable schema version and points the
	// site's current-schema pointer at it.
	CreateSchemaVersion(ctx context.Context, siteID uuid.UUID, definition json.RawMessage, changeDescription *string, createdByID *uuid.UUID) (*models.SiteDataSchema, error)
	SetCurrentSchema(ctx context.Context, siteID, schemaID uuid.UUID) error
	ListSchemas(ctx context.Context, siteID uuid.UUID) ([]*models.SiteDataSchema, error)

	ScheduleTraining(ctx context.Context, siteID uuid.UUID, dataStart, dataEnd time.Time, config map[string]any, triggeredByID *uuid.UUID) (*models.TrainingJob, error)
	// GetTrainingJob returns a job, reporting jobs of other sites as not found.
	GetTrainingJob(ctx context.Context, siteID, jobID uuid.UUID) (*models.TrainingJob, error)
	ListTrainingJobs(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.TrainingJob, error)
	ListUploads(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Upload, error)

	// ListData returns the site's daily observations within [from, to].
	ListData(ctx context.Context, siteID uuid.UUID, from, to time.Time) ([]*models.DataRow, error)
}

type siteService struct {
	siteRepo     repositories.SiteRepository
	schemaRepo   repositories.SchemaRepository
	uploadRepo   repositories.UploadRepository
	trainingRepo repositories.TrainingJobRepository
	rowRepo      repositories.DataRowRepository
	access       AccessService
	logger       *zap.Logger
}

// NewSiteService creates a new site service with dependencies.
func NewSiteService(
	siteRepo repositories.SiteRepository,
	schemaRepo repositories.SchemaRepository,
	uploadRepo repositories.UploadRepository,
	trainingRepo repositories.TrainingJobRepository,
	rowRepo repositories.DataRowRepository,
	access AccessService,
	logger *zap.Logger,
) SiteService {
	return &siteService{
		siteRepo:     siteRepo,
		schemaRepo:   schemaRepo,
		uploadRepo:   uploadRepo,
		trainingRepo: trainingRepo,
		rowRepo:      rowRepo,
		access:       access,
		logger:       logger,
	}
}

var _ SiteService = (*siteService)(nil)

func (s *siteService) Create(ctx context.Context, companyID uuid.UUID, input SiteInput) (*models.Site, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("site name is required: %w", apperrors.ErrInvalidInput)
	}

	site := &models.Site{
		CompanyID: companyID,
		Name:      input.Name,
		Location:  input.Location,
		Timezone:  input.Timezone,
		Status:    models.SiteStatusPendingSetup,
	}
	if err := s.siteRepo.Create(ctx, site); err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}

	s.logger.Info("Site created",
		zap.String("site_id", site.ID.String()),
		zap.String("company_id", companyID.String()),
		zap.String("name", site.Name))
	return site, nil
}

func (s *siteService) Get(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	return s.siteRepo.GetByID(ctx, id)
}

func (s *siteService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Site, error) {
	ids, err := s.access.GetUserAccessibleSiteIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Site{}, nil
	}
	return s.siteRepo.ListByIDs(ctx, ids)
}

func (s *siteService) ListAll(ctx context.Context) ([]*models.Site, error) {
	return s.siteRepo.ListAll(ctx)
}

func (s *siteService) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*models.Site, error) {
	return s.siteRepo.ListByCompany(ctx, companyID)
}

func (s *siteService) Update(ctx context.Context, id uuid.UUID, input SiteInput) (*models.Site, error) {
	site, err := s.siteRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != "" {
		site.Name = input.Name
	}
	if input.Location != nil {
		site.Location = input.Location
	}
	if input.Timezone != nil {
		site.Timezone = input.Timezone
	}
	if err := s.siteRepo.Update(ctx, site); err != nil {
		return nil, fmt.Errorf("failed to update site: %w", err)
	}
	return site, nil
}

func (s *siteService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.siteRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	s.logger.Info("Site deleted", zap.String("site_id", id.String()))
	return nil
}

func (s *siteService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Site, error) {
	if !models.IsValidSiteStatus(status) {
		return nil, fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}

	site, err := s.siteRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == models.SiteStatusActive && site.Status != models.SiteStatusActive {
		now := time.Now().UTC()
		site.ActivatedAt = &now
	}
	site.Status = status

	if err := s.siteRepo.Update(ctx, site); err != nil {
		return nil, fmt.Errorf("failed to update site status: %w", err)
	}

	s.logger.Info("Site status updated",
		zap.String("site_id", id.String()),
		zap.String("status", status))
	return site, nil
}

func (s *siteService) UpdateAutomation(ctx context.Context, id uuid.UUID, settings AutomationSettings) (*models.Site, error) {
	site, err := s.siteRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	site.AutoInferenceEnabled = settings.AutoInferenceEnabled
	site.InferenceSchedule = settings.InferenceSchedule
	site.AutoRetrainingEnabled = settings.AutoRetrainingEnabled
	site.RetrainingFrequencyDays = settings.RetrainingFrequencyDays
	site.TrainOnEveryUpload = settings.TrainOnEveryUpload

	if err := s.siteRepo.Update(ctx, site); err != nil {
		return nil, fmt.Errorf("failed to update automation settings: %w", err)
	}
	return site, nil
}

func (s *siteService) CreateSchemaVersion(ctx context.Context, siteID uuid.UUID, definition json.RawMessage, changeDescription *string, createdByID *uuid.UUID) (*models.SiteDataSchema, error) {
	if _, err := models.ParseSchemaDefinition(definition); err != nil {
		return nil, fmt.Errorf("invalid schema definition: %w: %w", apperrors.ErrInvalidInput, err)
	}

	if _, err := s.siteRepo.GetByID(ctx, siteID); err != nil {
		return nil, err
	}

	latest, err := s.schemaRepo.LatestVersionNumber(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest schema version: %w", err)
	}

	schema := &models.SiteDataSchema{
		SiteID:            siteID,
		VersionNumber:     latest + 1,
		Definition:        definition,
		EffectiveFrom:     time.Now().UTC(),
		ChangeDescription: changeDescription,
		CreatedByID:       createdByID,
	}
	if err := s.schemaRepo.Create(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema version: %w", err)
	}

	if err := s.siteRepo.SetCurrentSchema(ctx, siteID, &schema.ID); err != nil {
		return nil, fmt.Errorf("failed to set current schema: %w", err)
	}

	s.logger.Info("Schema version created",
		zap.String("site_id", siteID.String()),
		zap.String("schema_id", schema.ID.String()),
		zap.Int("version", schema.VersionNumber))
	return schema, nil
}

func (s *siteService) SetCurrentSchema(ctx context.Context, siteID, schemaID uuid.UUID) error {
	schema, err := s.schemaRepo.GetByID(ctx, schemaID)
	if err != nil {
		return err
	}
	if schema.SiteID != siteID {
		return fmt.Errorf("schema %s does not belong to site %s: %w", schemaID, siteID, apperrors.ErrInvalidInput)
	}
	if err := s.siteRepo.SetCurrentSchema(ctx, siteID, &schemaID); err != nil {
		return fmt.Errorf("failed to set current schema: %w", err)
	}
	return nil
}

func (s *siteService) ListSchemas(ctx context.Context, siteID uuid.UUID) ([]*models.SiteDataSchema, error) {
	return s.schemaRepo.ListBySite(ctx, siteID)
}

func (s *siteService) ScheduleTraining(ctx context.Context, siteID uuid.UUID, dataStart, dataEnd time.Time, config map[string]any, triggeredByID *uuid.UUID) (*models.TrainingJob, error) {
	if dataEnd.Before(dataStart) {
		return nil, fmt.Errorf("training window end precedes start: %w", apperrors.ErrInvalidInput)
	}
	if _, err := s.siteRepo.GetByID(ctx, siteID); err != nil {
		return nil, err
	}

	job := &models.TrainingJob{
		SiteID:            siteID,
		Status:            models.TrainingStatusScheduled,
		TrainingDataStart: models.DayOf(dataStart),
		TrainingDataEnd:   models.DayOf(dataEnd),
		Config:            config,
		TriggeredByID:     triggeredByID,
	}
	if err := s.trainingRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to schedule training: %w", err)
	}

	s.logger.Info("Training job scheduled",
		zap.String("site_id", siteID.String()),
		zap.String("job_id", job.ID.String()))
	return job, nil
}

func (s *siteService) GetTrainingJob(ctx context.Context, siteID, jobID uuid.UUID) (*models.TrainingJob, error) {
	job, err := s.trainingRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.SiteID != siteID {
		return nil, fmt.Errorf("training job: %w", apperrors.ErrNotFound)
	}
	return job, nil
}

func (s *siteService) ListTrainingJobs(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.TrainingJob, error) {
	return s.trainingRepo.ListBySite(ctx, siteID, limit)
}

func (s *siteService) ListUploads(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.Upload, error) {
	return s.uploadRepo.ListBySite(ctx, siteID, limit)
}

func (s *siteService) ListData(ctx context.Context, siteID uuid.UUID, from, to time.Time) ([]*models.DataRow, error) {
	return s.rowRepo.ListBySiteRange(ctx, siteID, models.DayOf(from), models.DayOf(to))
}
