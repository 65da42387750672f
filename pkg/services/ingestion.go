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

// UploadRequest is one batch of proposed daily observations for a site.
type UploadRequest struct {
	// FileName labels the upload in history. Empty means the batch arrived
	// without a file and a synthetic name is generated.
	FileName string `json:"fileName"`

	Rows []RowInput `json:"rows"`

	// OverwriteExisting replaces rows whose day already holds data.
	// When false those rows are skipped with a warning.
	OverwriteExisting bool `json:"overwriteExisting"`

	// SkipValidation bypasses the schema validator entirely.
	SkipValidation bool `json:"skipValidation"`
}

// UploadResult reports everything that happened to one upload batch.
type UploadResult struct {
	UploadID *uuid.UUID `json:"uploadId,omitempty"`
	Success  bool       `json:"success"`

	RowsParsed   int `json:"rowsParsed"`
	RowsInserted int `json:"rowsInserted"`
	RowsUpdated  int `json:"rowsUpdated"`
	RowsSkipped  int `json:"rowsSkipped"`

	Warnings []ValidationIssue `json:"warnings,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`

	InferenceTriggered bool       `json:"inferenceTriggered"`
	InferenceRequestID *uuid.UUID `json:"inferenceRequestId,omitempty"`
}

// IngestionService processes upload batches end to end: it records upload
// history, validates rows against the site's schema, writes accepted rows,
// and kicks off inference when the site asks for it.
type IngestionService interface {
	ProcessUpload(ctx context.Context, siteID uuid.UUID, userID *uuid.UUID, req UploadRequest) (*UploadResult, error)
}

type ingestionService struct {
	siteRepo   repositories.SiteRepository
	uploadRepo repositories.UploadRepository
	rowRepo    repositories.DataRowRepository
	validator  SchemaValidator
	inference  InferenceService
	logger     *zap.Logger
}

// NewIngestionService creates a new ingestion service with dependencies.
func NewIngestionService(
	siteRepo repositories.SiteRepository,
	uploadRepo repositories.UploadRepository,
	rowRepo repositories.DataRowRepository,
	validator SchemaValidator,
	inference InferenceService,
	logger *zap.Logger,
) IngestionService {
	return &ingestionService{
		siteRepo:   siteRepo,
		uploadRepo: uploadRepo,
		rowRepo:    rowRepo,
		validator:  validator,
		inference:  inference,
		logger:     logger,
	}
}

var _ IngestionService = (*ingestionService)(nil)

// ProcessUpload runs the full ingestion pipeline for one batch. A returned
// error means an infrastructure failure; batches rejected by validation
// return a result with Success false and no error.
func (s *ingestionService) ProcessUpload(ctx context.Context, siteID uuid.UUID, userID *uuid.UUID, req UploadRequest) (*UploadResult, error) {
	result := &UploadResult{
		RowsParsed: len(req.Rows),
	}

	site, err := s.siteRepo.GetByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			result.Errors = append(result.Errors, ValidationIssue{
				RowIndex: -1,
				Field:    issueFieldSiteID,
				Message:  fmt.Sprintf("Site with ID %s not found", siteID),
			})
			return result, nil
		}
		return nil, fmt.Errorf("failed to load site: %w", err)
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("api-upload-%s.json", time.Now().UTC().Format("20060102-150405"))
	}

	upload := &models.Upload{
		SiteID:           siteID,
		UserID:           userID,
		FileName:         fileName,
		RowsParsed:       len(req.Rows),
		ValidationStatus: models.UploadStatusPending,
	}
	if err := s.uploadRepo.Create(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}
	result.UploadID = &upload.ID

	if !req.SkipValidation {
		warnings, validationErrs, err := s.validator.Validate(ctx, site, req.Rows)
		if err != nil {
			return nil, fmt.Errorf("failed to validate upload: %w", err)
		}
		result.Warnings = append(result.Warnings, warnings...)
		result.Errors = append(result.Errors, validationErrs...)

		if len(validationErrs) > 0 {
			upload.ValidationStatus = models.UploadStatusInvalid
			msg := fmt.Sprintf("%d validation error(s) found", len(validationErrs))
			upload.ErrorMessage = &msg
			if err := s.uploadRepo.Update(ctx, upload); err != nil {
				return nil, fmt.Errorf("failed to update upload record: %w", err)
			}
			s.logger.Warn("Upload rejected by validation",
				zap.String("site_id", siteID.String()),
				zap.String("upload_id", upload.ID.String()),
				zap.Int("error_count", len(validationErrs)))
			return result, nil
		}
	}

	dates := make([]time.Time, 0, len(req.Rows))
	seen := make(map[time.Time]bool, len(req.Rows))
	for _, row := range req.Rows {
		day := models.DayOf(row.Date)
		if !seen[day] {
			seen[day] = true
			dates = append(dates, day)
		}
	}

	existing, err := s.rowRepo.ExistingDates(ctx, siteID, dates)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing dates: %w", err)
	}

	for i, row := range req.Rows {
		day := models.DayOf(row.Date)

		if existing[day] {
			inserted, updated, err := s.writeConflicting(ctx, site, day, row.SensorData, req.OverwriteExisting)
			if err != nil {
				return nil, err
			}
			result.RowsInserted += inserted
			result.RowsUpdated += updated
			if inserted == 0 && updated == 0 {
				result.RowsSkipped++
				result.Warnings = append(result.Warnings, skippedWarning(i, day))
			}
			continue
		}

		inserted, err := s.rowRepo.Insert(ctx, &models.DataRow{
			SiteID:          siteID,
			SchemaVersionID: site.CurrentSchemaVersionID,
			Date:            day,
			SensorData:      row.SensorData,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to insert data row: %w", err)
		}
		if inserted {
			result.RowsInserted++
			existing[day] = true
			continue
		}

		// Lost a race against a concurrent upload for the same day. Treat
		// the row as pre-existing and apply the overwrite decision.
		existing[day] = true
		ins, upd, err := s.writeConflicting(ctx, site, day, row.SensorData, req.OverwriteExisting)
		if err != nil {
			return nil, err
		}
		result.RowsInserted += ins
		result.RowsUpdated += upd
		if ins == 0 && upd == 0 {
			result.RowsSkipped++
			result.Warnings = append(result.Warnings, skippedWarning(i, day))
		}
	}

	upload.RowsInserted = result.RowsInserted + result.RowsUpdated
	upload.ValidationStatus = models.UploadStatusValidated
	if err := s.uploadRepo.Update(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to update upload record: %w", err)
	}

	result.Success = true

	if site.AutoInferenceEnabled {
		inferenceReq, err := s.inference.TriggerForSite(ctx, siteID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to trigger inference: %w", err)
		}
		if inferenceReq != nil {
			result.InferenceTriggered = true
			result.InferenceRequestID = &inferenceReq.ID
		}
	}

	s.logger.Info("Upload processed",
		zap.String("site_id", siteID.String()),
		zap.String("upload_id", upload.ID.String()),
		zap.Int("rows_parsed", result.RowsParsed),
		zap.Int("rows_inserted", result.RowsInserted),
		zap.Int("rows_updated", result.RowsUpdated),
		zap.Int("rows_skipped", result.RowsSkipped),
		zap.Bool("inference_triggered", result.InferenceTriggered))

	return result, nil
}

// writeConflicting handles a row whose day already holds data. When
// overwrite is off it does nothing; otherwise it updates in place, falling
// back to insert if the existing row vanished underneath us.
func (s *ingestionService) writeConflicting(ctx context.Context, site *models.Site, day time.Time, data models.SensorData, overwrite bool) (inserted, updated int, err error) {
	if !overwrite {
		return 0, 0, nil
	}

	err = s.rowRepo.UpdateBySiteDate(ctx, site.ID, day, data, site.CurrentSchemaVersionID)
	if err == nil {
		return 0, 1, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return 0, 0, fmt.Errorf("failed to update data row: %w", err)
	}

	ok, err := s.rowRepo.Insert(ctx, &models.DataRow{
		SiteID:          site.ID,
		SchemaVersionID: site.CurrentSchemaVersionID,
		Date:            day,
		SensorData:      data,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert data row: %w", err)
	}
	if ok {
		return 1, 0, nil
	}
	// A concurrent writer re-created the row between our update and insert.
	err = s.rowRepo.UpdateBySiteDate(ctx, site.ID, day, data, site.CurrentSchemaVersionID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to update data row: %w", err)
	}
	return 0, 1, nil
}

func skippedWarning(rowIndex int, day time.Time) ValidationIssue {
	return ValidationIssue{
		RowIndex: rowIndex,
		Date:     day,
		Field:    issueFieldDate,
		Message:  fmt.Sprintf("Data for %s already exists. Use overwriteExisting to update.", day.Format("2006-01-02")),
	}
}
