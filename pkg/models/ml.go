package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelVersion is a trained model artifact for a site. At most one version
// should be active per site at a time; consumers take the first active match
// and do not enforce that invariant.
type ModelVersion struct {
	ID                uuid.UUID      `json:"id"`
	SiteID            uuid.UUID      `json:"site_id"`
	StoragePath       string         `json:"storage_path"`
	ModelFormat       *string        `json:"model_format,omitempty"`    // e.g. "ONNX", "pickle"
	ModelFramework    *string        `json:"model_framework,omitempty"` // e.g. "PyTorch", "scikit-learn"
	TrainedAt         *time.Time     `json:"trained_at,omitempty"`
	TrainingDataStart *time.Time     `json:"training_data_start,omitempty"`
	TrainingDataEnd   *time.Time     `json:"training_data_end,omitempty"`
	Metrics           map[string]any `json:"metrics,omitempty"`
	IsActive          bool           `json:"is_active"`
	VersionNumber     int            `json:"version_number"`
}

// InferenceRequest is a queued request to run a trained model against
// current data.
type InferenceRequest struct {
	ID     uuid.UUID  `json:"id"`
	SiteID uuid.UUID  `json:"site_id"`
	UserID *uuid.UUID `json:"user_id,omitempty"`

	RequestedAt time.Time `json:"requested_at"`
	Status      string    `json:"status"`

	// InputData at minimum names the model version to run. The inference
	// worker fills in feature assembly.
	InputData map[string]any `json:"input_data"`

	PredictionResultID *uuid.UUID `json:"prediction_result_id,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	DurationMs         *int64     `json:"duration_ms,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
}

// Inference request status constants. Persisted as text.
const (
	InferenceStatusPending   = "pending"
	InferenceStatusRunning   = "running"
	InferenceStatusCompleted = "completed"
	InferenceStatusFailed    = "failed"
)

// PredictionResult is the output of one completed inference run.
type PredictionResult struct {
	ID             uuid.UUID      `json:"id"`
	SiteID         uuid.UUID      `json:"site_id"`
	UserID         *uuid.UUID     `json:"user_id,omitempty"`
	ModelVersionID *uuid.UUID     `json:"model_version_id,omitempty"`
	ScenarioName   *string        `json:"scenario_name,omitempty"`
	InputData      map[string]any `json:"input_data,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DurationMs     int64          `json:"duration_ms"`
	Status         string         `json:"status"`
}

// Prediction status constants. Persisted as text.
const (
	PredictionStatusSucceeded = "succeeded"
	PredictionStatusFailed    = "failed"
)

// TrainingJob tracks one scheduled or completed model training run.
type TrainingJob struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"site_id"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Status string `json:"status"`

	TrainingDataStart time.Time `json:"training_data_start"`
	TrainingDataEnd   time.Time `json:"training_data_end"`

	ModelVersionID *uuid.UUID     `json:"model_version_id,omitempty"`
	Config         map[string]any `json:"config"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	TriggeredByID  *uuid.UUID     `json:"triggered_by_id,omitempty"`
}

// Training job status constants. Persisted as text.
const (
	TrainingStatusScheduled = "scheduled"
	TrainingStatusRunning   = "running"
	TrainingStatusCompleted = "completed"
	TrainingStatusFailed    = "failed"
)
