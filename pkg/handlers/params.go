package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseSiteID extracts and validates the site ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSiteID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_site_id", "Invalid site ID format", logger)
}

// ParseUserID extracts and validates the user ID from the request path.
// Expects path parameter: uid
func ParseUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "uid", "invalid_user_id", "Invalid user ID format", logger)
}

// ParseCompanyID extracts and validates the company ID from the request path.
// Expects path parameter: cid
func ParseCompanyID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_company_id", "Invalid company ID format", logger)
}

// ParseSchemaID extracts and validates the schema version ID from the request path.
// Expects path parameter: vid
func ParseSchemaID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "vid", "invalid_schema_id", "Invalid schema version ID format", logger)
}

// ParseDashboardID extracts and validates the dashboard ID from the request path.
// Expects path parameter: did
func ParseDashboardID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "did", "invalid_dashboard_id", "Invalid dashboard ID format", logger)
}

// ParseRuleID extracts and validates the rule ID from the request path.
// Expects path parameter: rid
func ParseRuleID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_rule_id", "Invalid rule ID format", logger)
}

// ParseModelID extracts and validates the model version ID from the request path.
// Expects path parameter: mid
func ParseModelID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_model_id", "Invalid model version ID format", logger)
}

// ParseTrainingJobID extracts and validates the training job ID from the request path.
// Expects path parameter: tid
func ParseTrainingJobID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "tid", "invalid_training_job_id", "Invalid training job ID format", logger)
}

// parseUUIDString parses a UUID from a request body field.
func parseUUIDString(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
