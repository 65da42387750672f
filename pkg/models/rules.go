package models

import (
	"time"

	"github.com/google/uuid"
)

// DataCleaningRule describes one preprocessing step applied to a site's
// sensor data before training or inference. Rules run in ascending priority
// order; inactive rules are kept for history but skipped.
type DataCleaningRule struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"site_id"`

	RuleType string         `json:"rule_type"`
	Config   map[string]any `json:"config"` // rule parameters, shape depends on rule type

	IsActive bool `json:"is_active"`
	Priority int  `json:"priority"`

	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	VersionNumber float64 `json:"version_number"`
}

// Cleaning rule type constants. Persisted as text.
const (
	CleaningRuleRemoveNulls     = "remove_nulls"
	CleaningRuleReplaceOutliers = "replace_outliers"
	CleaningRuleScaleNormalize  = "scale_normalize"
	CleaningRuleMapValues       = "map_values"
	CleaningRuleCustom          = "custom"
)

// ValidCleaningRuleTypes contains all valid cleaning rule type values.
var ValidCleaningRuleTypes = []string{
	CleaningRuleRemoveNulls,
	CleaningRuleReplaceOutliers,
	CleaningRuleScaleNormalize,
	CleaningRuleMapValues,
	CleaningRuleCustom,
}

// IsValidCleaningRuleType checks if the given cleaning rule type is valid.
func IsValidCleaningRuleType(ruleType string) bool {
	for _, t := range ValidCleaningRuleTypes {
		if t == ruleType {
			return true
		}
	}
	return false
}

// DataValidationRule is a per-column quality check applied to uploaded data
// beyond the structural schema: range bounds, patterns, allowed value sets.
type DataValidationRule struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"site_id"`

	ColumnName string         `json:"column_name"`
	RuleType   string         `json:"rule_type"`
	Config     map[string]any `json:"config"` // min/max, regex, allowed values, etc.

	IsActive bool `json:"is_active"`
	Priority int  `json:"priority"`

	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validation rule type constants. Persisted as text.
const (
	ValidationRuleRange         = "range"
	ValidationRulePattern       = "pattern"
	ValidationRuleAllowedValues = "allowed_values"
	ValidationRuleRequired      = "required"
	ValidationRuleCustom        = "custom"
)

// ValidValidationRuleTypes contains all valid validation rule type values.
var ValidValidationRuleTypes = []string{
	ValidationRuleRange,
	ValidationRulePattern,
	ValidationRuleAllowedValues,
	ValidationRuleRequired,
	ValidationRuleCustom,
}

// IsValidValidationRuleType checks if the given validation rule type is valid.
func IsValidValidationRuleType(ruleType string) bool {
	for _, t := range ValidValidationRuleTypes {
		if t == ruleType {
			return true
		}
	}
	return false
}
