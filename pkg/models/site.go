package models

import (
	"time"

	"github.com/google/uuid"
)

// Site is a tenant-owned physical facility whose sensor data and models are
// tracked independently.
type Site struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	Timezone  *string   `json:"timezone,omitempty"` // e.g. "America/New_York"

	Status          string     `json:"status"`
	OnboardingNotes *string    `json:"onboarding_notes,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"` // stamped on each transition into active

	// CurrentSchemaVersionID points at the schema used to validate uploads.
	// Nil is a permitted, degraded state: uploads are accepted with a warning.
	CurrentSchemaVersionID *uuid.UUID `json:"current_schema_version_id,omitempty"`

	Config map[string]any `json:"config,omitempty"` // equipment IDs, thresholds, custom settings

	AutoInferenceEnabled    bool    `json:"auto_inference_enabled"`
	InferenceSchedule       *string `json:"inference_schedule,omitempty"` // time of day, e.g. "02:00", consumed by the external scheduler
	AutoRetrainingEnabled   bool    `json:"auto_retraining_enabled"`
	RetrainingFrequencyDays *int    `json:"retraining_frequency_days,omitempty"`
	TrainOnEveryUpload      bool    `json:"train_on_every_upload"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Site lifecycle status constants. Persisted as text.
const (
	SiteStatusPendingSetup     = "pending_setup"     // created, awaiting initial data upload
	SiteStatusDataUploaded     = "data_uploaded"     // initial data received, awaiting schema mapping
	SiteStatusSchemaConfigured = "schema_configured" // column mapping complete, ready for training
	SiteStatusModelTraining    = "model_training"    // training in progress
	SiteStatusActive           = "active"            // live and operational
	SiteStatusSuspended        = "suspended"         // disabled (payment issue, maintenance, etc.)
)

// ValidSiteStatuses contains all valid site status values.
var ValidSiteStatuses = []string{
	SiteStatusPendingSetup,
	SiteStatusDataUploaded,
	SiteStatusSchemaConfigured,
	SiteStatusModelTraining,
	SiteStatusActive,
	SiteStatusSuspended,
}

// IsValidSiteStatus checks if the given site status is valid.
func IsValidSiteStatus(status string) bool {
	for _, s := range ValidSiteStatuses {
		if s == status {
			return true
		}
	}
	return false
}
