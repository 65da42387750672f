package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

const defaultHistoryLimit = 50

// Site roles permitted to push data uploads.
var uploadRoles = []string{models.SiteRoleOwner, models.SiteRoleSiteAdmin, models.SiteRoleOperator}

// Site roles permitted to manage site configuration (schema, automation,
// training, upload history).
var manageRoles = []string{models.SiteRoleOwner, models.SiteRoleSiteAdmin}

// SitesHandler handles site-related HTTP requests: CRUD, schema versions,
// data uploads, and ML scheduling.
type SitesHandler struct {
	siteService      services.SiteService
	ingestionService services.IngestionService
	inferenceService services.InferenceService
	accessService    services.AccessService
	logger           *zap.Logger
}

// NewSitesHandler creates a new sites handler.
func NewSitesHandler(
	siteService services.SiteService,
	ingestionService services.IngestionService,
	inferenceService services.InferenceService,
	accessService services.AccessService,
	logger *zap.Logger,
) *SitesHandler {
	return &SitesHandler{
		siteService:      siteService,
		ingestionService: ingestionService,
		inferenceService: inferenceService,
		accessService:    accessService,
		logger:           logger,
	}
}

// RegisterRoutes registers the sites handler's routes on the given mux.
func (h *SitesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	requireAuth := authMiddleware.RequireAuth
	requireManager := authMiddleware.RequireGlobalRole(models.GlobalRoleManager)
	requireAdmin := authMiddleware.RequireGlobalRole(models.GlobalRoleAdmin)

	mux.HandleFunc("GET /api/sites", requireAuth(h.List))
	mux.HandleFunc("POST /api/companies/{cid}/sites", requireManager(h.Create))
	mux.HandleFunc("GET /api/companies/{cid}/sites", requireManager(h.ListByCompany))
	mux.HandleFunc("GET /api/sites/{sid}", requireAuth(h.Get))
	mux.HandleFunc("PATCH /api/sites/{sid}", requireAuth(h.Update))
	mux.HandleFunc("DELETE /api/sites/{sid}", requireAdmin(h.Delete))
	mux.HandleFunc("PATCH /api/sites/{sid}/status", requireAdmin(h.UpdateStatus))
	mux.HandleFunc("PATCH /api/sites/{sid}/automation", requireAuth(h.UpdateAutomation))

	mux.HandleFunc("POST /api/sites/{sid}/data", requireAuth(h.UploadData))
	mux.HandleFunc("GET /api/sites/{sid}/data", requireAuth(h.ListData))
	mux.HandleFunc("GET /api/sites/{sid}/uploads", requireAuth(h.ListUploads))

	mux.HandleFunc("POST /api/sites/{sid}/schema", requireAuth(h.CreateSchemaVersion))
	mux.HandleFunc("GET /api/sites/{sid}/schema", requireAuth(h.ListSchemas))
	mux.HandleFunc("PUT /api/sites/{sid}/schema/current/{vid}", requireAuth(h.SetCurrentSchema))

	mux.HandleFunc("POST /api/sites/{sid}/training", requireAuth(h.ScheduleTraining))
	mux.HandleFunc("GET /api/sites/{sid}/training", requireAuth(h.ListTraining))
	mux.HandleFunc("GET /api/sites/{sid}/training/{tid}", requireAuth(h.GetTrainingJob))
	mux.HandleFunc("GET /api/sites/{sid}/inference", requireAuth(h.ListInference))

	mux.HandleFunc("GET /api/sites/{sid}/models", requireAuth(h.ListModels))
	mux.HandleFunc("POST /api/sites/{sid}/models", requireAdmin(h.RegisterModel))
	mux.HandleFunc("PUT /api/sites/{sid}/models/{mid}/activate", requireAdmin(h.ActivateModel))
}

// requireSiteAccess checks that the authenticated user may see the site.
// Writes an error response and returns false on denial.
func (h *SitesHandler) requireSiteAccess(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, uuid.Nil, false
	}

	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return nil, uuid.Nil, false
	}

	allowed, err := h.accessService.HasSiteAccess(r.Context(), user.ID, siteID)
	if err != nil {
		h.logger.Error("Failed to check site access", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to check site access")
		return nil, uuid.Nil, false
	}
	if !allowed {
		h.writeError(w, http.StatusForbidden, "forbidden", "No access to this site")
		return nil, uuid.Nil, false
	}
	return user, siteID, true
}

// requireSiteRole checks that the user holds one of the allowed site roles
// (or a privileged global role). Writes an error response and returns false
// on denial.
func (h *SitesHandler) requireSiteRole(w http.ResponseWriter, r *http.Request, allowedRoles []string) (*models.User, uuid.UUID, bool) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return nil, uuid.Nil, false
	}

	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return nil, uuid.Nil, false
	}

	allowed, err := h.accessService.HasSiteRole(r.Context(), user.ID, siteID, allowedRoles)
	if err != nil {
		h.logger.Error("Failed to check site role", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to check site role")
		return nil, uuid.Nil, false
	}
	if !allowed {
		h.writeError(w, http.StatusForbidden, "forbidden", "Insufficient site role")
		return nil, uuid.Nil, false
	}
	return user, siteID, true
}

// List handles GET /api/sites
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	sites, err := h.siteService.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("Failed to list sites", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sites")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// Create handles POST /api/companies/{cid}/sites
func (h *SitesHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := ParseCompanyID(w, r, h.logger)
	if !ok {
		return
	}

	var input services.SiteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site, err := h.siteService.Create(r.Context(), companyID, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Site name is required")
			return
		}
		h.logger.Error("Failed to create site", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create site")
		return
	}

	h.writeJSON(w, http.StatusCreated, site)
}

// ListByCompany handles GET /api/companies/{cid}/sites
func (h *SitesHandler) ListByCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := ParseCompanyID(w, r, h.logger)
	if !ok {
		return
	}

	sites, err := h.siteService.ListByCompany(r.Context(), companyID)
	if err != nil {
		h.logger.Error("Failed to list company sites", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sites")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// Get handles GET /api/sites/{sid}
func (h *SitesHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	site, err := h.siteService.Get(r.Context(), siteID)
	if err != nil {
		h.handleSiteError(w, err, "Failed to get site")
		return
	}
	h.writeJSON(w, http.StatusOK, site)
}

// Update handles PATCH /api/sites/{sid}
func (h *SitesHandler) Update(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var input services.SiteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site, err := h.siteService.Update(r.Context(), siteID, input)
	if err != nil {
		h.handleSiteError(w, err, "Failed to update site")
		return
	}
	h.writeJSON(w, http.StatusOK, site)
}

// Delete handles DELETE /api/sites/{sid}
func (h *SitesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.siteService.Delete(r.Context(), siteID); err != nil {
		h.handleSiteError(w, err, "Failed to delete site")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus handles PATCH /api/sites/{sid}/status
func (h *SitesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site, err := h.siteService.UpdateStatus(r.Context(), siteID, body.Status)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			h.writeError(w, http.StatusBadRequest, "invalid_status", "Unknown site status")
			return
		}
		h.handleSiteError(w, err, "Failed to update site status")
		return
	}
	h.writeJSON(w, http.StatusOK, site)
}

// UpdateAutomation handles PATCH /api/sites/{sid}/automation
func (h *SitesHandler) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var settings services.AutomationSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	site, err := h.siteService.UpdateAutomation(r.Context(), siteID, settings)
	if err != nil {
		h.handleSiteError(w, err, "Failed to update automation settings")
		return
	}
	h.writeJSON(w, http.StatusOK, site)
}

// UploadData handles POST /api/sites/{sid}/data
func (h *SitesHandler) UploadData(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteRole(w, r, uploadRoles)
	if !ok {
		return
	}

	var req services.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.ingestionService.ProcessUpload(r.Context(), siteID, &user.ID, req)
	if err != nil {
		h.logger.Error("Failed to process upload",
			zap.String("site_id", siteID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process upload")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

// ListData handles GET /api/sites/{sid}/data?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *SitesHandler) ListData(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
		return
	}

	rows, err := h.siteService.ListData(r.Context(), siteID, from, to)
	if err != nil {
		h.logger.Error("Failed to list data rows", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list data")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// ListUploads handles GET /api/sites/{sid}/uploads
func (h *SitesHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	uploads, err := h.siteService.ListUploads(r.Context(), siteID, limit)
	if err != nil {
		h.logger.Error("Failed to list uploads", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list uploads")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

// CreateSchemaVersion handles POST /api/sites/{sid}/schema
func (h *SitesHandler) CreateSchemaVersion(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var body struct {
		Definition        json.RawMessage `json:"definition"`
		ChangeDescription *string         `json:"changeDescription,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	schema, err := h.siteService.CreateSchemaVersion(r.Context(), siteID, body.Definition, body.ChangeDescription, &user.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_schema", "Schema definition is invalid")
			return
		}
		h.handleSiteError(w, err, "Failed to create schema version")
		return
	}
	h.writeJSON(w, http.StatusCreated, schema)
}

// ListSchemas handles GET /api/sites/{sid}/schema
func (h *SitesHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	schemas, err := h.siteService.ListSchemas(r.Context(), siteID)
	if err != nil {
		h.logger.Error("Failed to list schema versions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list schema versions")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

// SetCurrentSchema handles PUT /api/sites/{sid}/schema/current/{vid}
func (h *SitesHandler) SetCurrentSchema(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	schemaID, ok := ParseSchemaID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.siteService.SetCurrentSchema(r.Context(), siteID, schemaID); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_schema", "Schema version does not belong to this site")
			return
		}
		h.handleSiteError(w, err, "Failed to set current schema")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScheduleTraining handles POST /api/sites/{sid}/training
func (h *SitesHandler) ScheduleTraining(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var body struct {
		DataStart time.Time      `json:"dataStart"`
		DataEnd   time.Time      `json:"dataEnd"`
		Config    map[string]any `json:"config,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	job, err := h.siteService.ScheduleTraining(r.Context(), siteID, body.DataStart, body.DataEnd, body.Config, &user.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_window", "Training window end precedes start")
			return
		}
		h.handleSiteError(w, err, "Failed to schedule training")
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

// ListTraining handles GET /api/sites/{sid}/training
func (h *SitesHandler) ListTraining(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	jobs, err := h.siteService.ListTrainingJobs(r.Context(), siteID, defaultHistoryLimit)
	if err != nil {
		h.logger.Error("Failed to list training jobs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list training jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// GetTrainingJob handles GET /api/sites/{sid}/training/{tid}
func (h *SitesHandler) GetTrainingJob(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	jobID, ok := ParseTrainingJobID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.siteService.GetTrainingJob(r.Context(), siteID, jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Training job not found")
			return
		}
		h.logger.Error("Failed to get training job", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get training job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListModels handles GET /api/sites/{sid}/models
func (h *SitesHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	versions, err := h.inferenceService.ListModels(r.Context(), siteID)
	if err != nil {
		h.logger.Error("Failed to list model versions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list model versions")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"models": versions})
}

// RegisterModel handles POST /api/sites/{sid}/models
func (h *SitesHandler) RegisterModel(w http.ResponseWriter, r *http.Request) {
	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return
	}

	var reg services.ModelRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	model, err := h.inferenceService.RegisterModel(r.Context(), siteID, reg)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Model storage path is required")
			return
		}
		h.logger.Error("Failed to register model version", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to register model version")
		return
	}
	h.writeJSON(w, http.StatusCreated, model)
}

// ActivateModel handles PUT /api/sites/{sid}/models/{mid}/activate
func (h *SitesHandler) ActivateModel(w http.ResponseWriter, r *http.Request) {
	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return
	}
	modelID, ok := ParseModelID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.inferenceService.ActivateModel(r.Context(), siteID, modelID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Model version not found")
			return
		}
		h.logger.Error("Failed to activate model version", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to activate model version")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInference handles GET /api/sites/{sid}/inference
func (h *SitesHandler) ListInference(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	requests, err := h.inferenceService.ListRequests(r.Context(), siteID, defaultHistoryLimit)
	if err != nil {
		h.logger.Error("Failed to list inference requests", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list inference requests")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Now().AddDate(0, -1, 0)
	to := time.Now()

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'from' date, expected YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'to' date, expected YYYY-MM-DD")
		}
		to = parsed
	}
	return from, to, nil
}

func (h *SitesHandler) handleSiteError(w http.ResponseWriter, err error, logMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Site not found")
		return
	}
	h.logger.Error(logMessage, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", logMessage)
}

func (h *SitesHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *SitesHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
