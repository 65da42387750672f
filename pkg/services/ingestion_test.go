package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

type ingestionFixture struct {
	siteRepo   *mockSiteRepo
	uploadRepo *mockUploadRepo
	rowRepo    *mockDataRowRepo
	modelRepo  *mockModelRepo
	infRepo    *mockInferenceRepo
	site       *models.Site
	svc        IngestionService
}

func newIngestionFixture(t *testing.T, validator SchemaValidator) *ingestionFixture {
	t.Helper()
	f := &ingestionFixture{
		siteRepo:   &mockSiteRepo{},
		uploadRepo: &mockUploadRepo{},
		rowRepo:    newMockDataRowRepo(),
		modelRepo:  &mockModelRepo{},
		infRepo:    &mockInferenceRepo{},
	}
	f.site = &models.Site{Status: models.SiteStatusActive}
	require.NoError(t, f.siteRepo.Create(context.Background(), f.site))

	if validator == nil {
		validator = &stubValidator{}
	}
	inference := NewInferenceService(f.modelRepo, f.infRepo, zap.NewNop())
	f.svc = NewIngestionService(f.siteRepo, f.uploadRepo, f.rowRepo, validator, inference, zap.NewNop())
	return f
}

func day(offset int) time.Time {
	return models.DayOf(time.Now().AddDate(0, 0, offset))
}

func rowFor(offset int, temp float64) RowInput {
	return RowInput{
		Date:       day(offset),
		SensorData: models.SensorData{"temperature": models.Number(temp)},
	}
}

func TestIngestion_SiteNotFound(t *testing.T) {
	f := newIngestionFixture(t, nil)
	missing := uuid.New()

	result, err := f.svc.ProcessUpload(context.Background(), missing, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Nil(t, result.UploadID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "siteId", result.Errors[0].Field)
	assert.Equal(t, fmt.Sprintf("Site with ID %s not found", missing), result.Errors[0].Message)
	assert.Empty(t, f.uploadRepo.uploads)
}

func TestIngestion_InsertsNewRows(t *testing.T) {
	f := newIngestionFixture(t, nil)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-3, 20), rowFor(-2, 21), rowFor(-1, 22)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.RowsParsed)
	assert.Equal(t, 3, result.RowsInserted)
	assert.Equal(t, 0, result.RowsUpdated)
	assert.Equal(t, 0, result.RowsSkipped)
	require.NotNil(t, result.UploadID)

	upload := f.uploadRepo.uploads[0]
	assert.Equal(t, models.UploadStatusValidated, upload.ValidationStatus)
	assert.Equal(t, 3, upload.RowsInserted)
}

func TestIngestion_GeneratesFileName(t *testing.T) {
	f := newIngestionFixture(t, nil)

	_, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^api-upload-\d{8}-\d{6}\.json$`, f.uploadRepo.uploads[0].FileName)
}

func TestIngestion_ValidationErrorsRejectBatch(t *testing.T) {
	validator := &stubValidator{
		errs: []ValidationIssue{
			{RowIndex: 0, Field: "date", Message: "Date cannot be in the future"},
			{RowIndex: 1, Field: "temperature", Message: "Required field 'temperature' is missing"},
		},
	}
	f := newIngestionFixture(t, validator)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-2, 20), rowFor(-1, 21)},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, 0, result.RowsInserted)
	assert.Empty(t, f.rowRepo.rows)

	upload := f.uploadRepo.uploads[0]
	assert.Equal(t, models.UploadStatusInvalid, upload.ValidationStatus)
	require.NotNil(t, upload.ErrorMessage)
	assert.Equal(t, "2 validation error(s) found", *upload.ErrorMessage)
}

func TestIngestion_WarningsDoNotBlock(t *testing.T) {
	validator := &stubValidator{
		warnings: []ValidationIssue{{RowIndex: 0, Field: "vibration", Message: "Unknown field 'vibration' not in schema"}},
	}
	f := newIngestionFixture(t, validator)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RowsInserted)
	assert.Len(t, result.Warnings, 1)
}

func TestIngestion_SkipValidation(t *testing.T) {
	validator := &stubValidator{
		errs: []ValidationIssue{{RowIndex: 0, Field: "date", Message: "Date cannot be in the future"}},
	}
	f := newIngestionFixture(t, validator)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows:           []RowInput{rowFor(-1, 20)},
		SkipValidation: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.RowsInserted)
}

func TestIngestion_DuplicateDateSkipped(t *testing.T) {
	f := newIngestionFixture(t, nil)

	_, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 25)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RowsInserted)
	assert.Equal(t, 1, result.RowsSkipped)
	require.Len(t, result.Warnings, 1)
	expected := fmt.Sprintf("Data for %s already exists. Use overwriteExisting to update.", day(-1).Format("2006-01-02"))
	assert.Equal(t, expected, result.Warnings[0].Message)

	row := f.rowRepo.rows[day(-1)]
	num, _ := row.SensorData["temperature"].AsNumber()
	assert.Equal(t, 20.0, num)
}

func TestIngestion_OverwriteExisting(t *testing.T) {
	f := newIngestionFixture(t, nil)

	_, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows:              []RowInput{rowFor(-1, 25)},
		OverwriteExisting: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RowsInserted)
	assert.Equal(t, 1, result.RowsUpdated)
	assert.Empty(t, result.Warnings)

	row := f.rowRepo.rows[day(-1)]
	num, _ := row.SensorData["temperature"].AsNumber()
	assert.Equal(t, 25.0, num)
}

func TestIngestion_DuplicateDatesWithinBatch(t *testing.T) {
	f := newIngestionFixture(t, nil)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20), rowFor(-1, 25)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RowsInserted)
	assert.Equal(t, 1, result.RowsSkipped)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, 1, result.Warnings[0].RowIndex)
}

func TestIngestion_LostInsertRaceSkips(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.rowRepo.insertDenied[day(-1)] = true

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RowsInserted)
	assert.Equal(t, 1, result.RowsSkipped)
	require.Len(t, result.Warnings, 1)
}

func TestIngestion_LostInsertRaceOverwrites(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.rowRepo.insertDenied[day(-1)] = true

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows:              []RowInput{rowFor(-1, 20)},
		OverwriteExisting: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RowsUpdated)
	assert.Equal(t, 0, result.RowsSkipped)
}

func TestIngestion_TriggersInferenceWhenEnabled(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.site.AutoInferenceEnabled = true
	f.modelRepo.models = append(f.modelRepo.models, &models.ModelVersion{
		ID:            uuid.New(),
		SiteID:        f.site.ID,
		IsActive:      true,
		VersionNumber: 1,
	})

	userID := uuid.New()
	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, &userID, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.True(t, result.InferenceTriggered)
	require.NotNil(t, result.InferenceRequestID)

	require.Len(t, f.infRepo.requests, 1)
	req := f.infRepo.requests[0]
	assert.Equal(t, models.InferenceStatusPending, req.Status)
	assert.Equal(t, &userID, req.UserID)
	assert.Equal(t, f.modelRepo.models[0].ID.String(), req.InputData["modelVersionId"])
}

func TestIngestion_NoActiveModelSkipsInference(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.site.AutoInferenceEnabled = true

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.InferenceTriggered)
	assert.Nil(t, result.InferenceRequestID)
	assert.Empty(t, f.infRepo.requests)
}

func TestIngestion_InferenceDisabled(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.modelRepo.models = append(f.modelRepo.models, &models.ModelVersion{
		ID:       uuid.New(),
		SiteID:   f.site.ID,
		IsActive: true,
	})

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.NoError(t, err)
	assert.False(t, result.InferenceTriggered)
	assert.Empty(t, f.infRepo.requests)
}

func TestIngestion_EmptyBatch(t *testing.T) {
	f := newIngestionFixture(t, nil)

	result, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RowsParsed)
	assert.Equal(t, 0, result.RowsInserted)

	upload := f.uploadRepo.uploads[0]
	assert.Equal(t, models.UploadStatusValidated, upload.ValidationStatus)
}

func TestIngestion_CancelledMidWriteLeavesUploadPending(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.rowRepo.insertErr = context.Canceled

	_, err := f.svc.ProcessUpload(context.Background(), f.site.ID, nil, UploadRequest{
		Rows: []RowInput{rowFor(-1, 20)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// The audit record was written before row writes began and keeps its
	// last state.
	require.Len(t, f.uploadRepo.uploads, 1)
	assert.Equal(t, models.UploadStatusPending, f.uploadRepo.uploads[0].ValidationStatus)
}
