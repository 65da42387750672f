package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

// DashboardsHandler handles saved dashboards and the data cleaning and
// validation rules of a site.
type DashboardsHandler struct {
	dashboardService services.DashboardService
	ruleService      services.RuleService
	accessService    services.AccessService
	logger           *zap.Logger
}

// NewDashboardsHandler creates a new dashboards handler.
func NewDashboardsHandler(
	dashboardService services.DashboardService,
	ruleService services.RuleService,
	accessService services.AccessService,
	logger *zap.Logger,
) *DashboardsHandler {
	return &DashboardsHandler{
		dashboardService: dashboardService,
		ruleService:      ruleService,
		accessService:    accessService,
		logger:           logger,
	}
}

// RegisterRoutes registers the dashboards handler's routes on the given mux.
func (h *DashboardsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	requireAuth := authMiddleware.RequireAuth

	mux.HandleFunc("GET /api/sites/{sid}/dashboards", requireAuth(h.ListDashboards))
	mux.HandleFunc("POST /api/sites/{sid}/dashboards", requireAuth(h.CreateDashboard))
	mux.HandleFunc("GET /api/sites/{sid}/dashboards/{did}", requireAuth(h.GetDashboard))
	mux.HandleFunc("PUT /api/sites/{sid}/dashboards/{did}", requireAuth(h.UpdateDashboard))
	mux.HandleFunc("DELETE /api/sites/{sid}/dashboards/{did}", requireAuth(h.DeleteDashboard))

	mux.HandleFunc("GET /api/sites/{sid}/cleaning-rules", requireAuth(h.ListCleaningRules))
	mux.HandleFunc("POST /api/sites/{sid}/cleaning-rules", requireAuth(h.CreateCleaningRule))
	mux.HandleFunc("PUT /api/sites/{sid}/cleaning-rules/{rid}/active", requireAuth(h.SetCleaningRuleActive))
	mux.HandleFunc("DELETE /api/sites/{sid}/cleaning-rules/{rid}", requireAuth(h.DeleteCleaningRule))

	mux.HandleFunc("GET /api/sites/{sid}/validation-rules", requireAuth(h.ListValidationRules))
	mux.HandleFunc("POST /api/sites/{sid}/validation-rules", requireAuth(h.CreateValidationRule))
	mux.HandleFunc("PUT /api/sites/{sid}/validation-rules/{rid}/active", requireAuth(h.SetValidationRuleActive))
	mux.HandleFunc("DELETE /api/sites/{sid}/validation-rules/{rid}", requireAuth(h.DeleteValidationRule))
}

func (h *DashboardsHandler) requireSiteAccess(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
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

func (h *DashboardsHandler) requireSiteRole(w http.ResponseWriter, r *http.Request, allowedRoles []string) (*models.User, uuid.UUID, bool) {
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

// ListDashboards handles GET /api/sites/{sid}/dashboards
func (h *DashboardsHandler) ListDashboards(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	dashboards, err := h.dashboardService.List(r.Context(), siteID)
	if err != nil {
		h.logger.Error("Failed to list dashboards", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list dashboards")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"dashboards": dashboards})
}

// CreateDashboard handles POST /api/sites/{sid}/dashboards
func (h *DashboardsHandler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	var input services.DashboardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	dashboard, err := h.dashboardService.Create(r.Context(), siteID, &user.ID, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Dashboard name is required")
			return
		}
		h.logger.Error("Failed to create dashboard", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create dashboard")
		return
	}
	h.writeJSON(w, http.StatusCreated, dashboard)
}

// GetDashboard handles GET /api/sites/{sid}/dashboards/{did}
func (h *DashboardsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	dashboard, err := h.dashboardService.Get(r.Context(), siteID, dashboardID)
	if err != nil {
		h.handleDashboardError(w, err, "Failed to get dashboard")
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

// UpdateDashboard handles PUT /api/sites/{sid}/dashboards/{did}
func (h *DashboardsHandler) UpdateDashboard(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	var input services.DashboardInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	dashboard, err := h.dashboardService.Update(r.Context(), siteID, dashboardID, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Dashboard name is required")
			return
		}
		h.handleDashboardError(w, err, "Failed to update dashboard")
		return
	}
	h.writeJSON(w, http.StatusOK, dashboard)
}

// DeleteDashboard handles DELETE /api/sites/{sid}/dashboards/{did}
func (h *DashboardsHandler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}
	dashboardID, ok := ParseDashboardID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.dashboardService.Delete(r.Context(), siteID, dashboardID); err != nil {
		h.handleDashboardError(w, err, "Failed to delete dashboard")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCleaningRules handles GET /api/sites/{sid}/cleaning-rules?active=true
func (h *DashboardsHandler) ListCleaningRules(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	rules, err := h.ruleService.ListCleaningRules(r.Context(), siteID, r.URL.Query().Get("active") == "true")
	if err != nil {
		h.logger.Error("Failed to list cleaning rules", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list cleaning rules")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// CreateCleaningRule handles POST /api/sites/{sid}/cleaning-rules
func (h *DashboardsHandler) CreateCleaningRule(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var input services.CleaningRuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rule, err := h.ruleService.CreateCleaningRule(r.Context(), siteID, &user.ID, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_rule_type", "Unknown cleaning rule type")
			return
		}
		h.logger.Error("Failed to create cleaning rule", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create cleaning rule")
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// SetCleaningRuleActive handles PUT /api/sites/{sid}/cleaning-rules/{rid}/active
func (h *DashboardsHandler) SetCleaningRuleActive(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.ruleService.SetCleaningRuleActive(r.Context(), siteID, ruleID, body.Active); err != nil {
		h.handleRuleError(w, err, "Failed to update cleaning rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCleaningRule handles DELETE /api/sites/{sid}/cleaning-rules/{rid}
func (h *DashboardsHandler) DeleteCleaningRule(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteCleaningRule(r.Context(), siteID, ruleID); err != nil {
		h.handleRuleError(w, err, "Failed to delete cleaning rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListValidationRules handles GET /api/sites/{sid}/validation-rules?active=true
func (h *DashboardsHandler) ListValidationRules(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteAccess(w, r)
	if !ok {
		return
	}

	rules, err := h.ruleService.ListValidationRules(r.Context(), siteID, r.URL.Query().Get("active") == "true")
	if err != nil {
		h.logger.Error("Failed to list validation rules", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list validation rules")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// CreateValidationRule handles POST /api/sites/{sid}/validation-rules
func (h *DashboardsHandler) CreateValidationRule(w http.ResponseWriter, r *http.Request) {
	user, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}

	var input services.ValidationRuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	rule, err := h.ruleService.CreateValidationRule(r.Context(), siteID, &user.ID, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_rule", "Validation rule is invalid")
			return
		}
		h.logger.Error("Failed to create validation rule", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create validation rule")
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// SetValidationRuleActive handles PUT /api/sites/{sid}/validation-rules/{rid}/active
func (h *DashboardsHandler) SetValidationRuleActive(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.ruleService.SetValidationRuleActive(r.Context(), siteID, ruleID, body.Active); err != nil {
		h.handleRuleError(w, err, "Failed to update validation rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteValidationRule handles DELETE /api/sites/{sid}/validation-rules/{rid}
func (h *DashboardsHandler) DeleteValidationRule(w http.ResponseWriter, r *http.Request) {
	_, siteID, ok := h.requireSiteRole(w, r, manageRoles)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ruleService.DeleteValidationRule(r.Context(), siteID, ruleID); err != nil {
		h.handleRuleError(w, err, "Failed to delete validation rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DashboardsHandler) handleDashboardError(w http.ResponseWriter, err error, logMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Dashboard not found")
		return
	}
	h.logger.Error(logMessage, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", logMessage)
}

func (h *DashboardsHandler) handleRuleError(w http.ResponseWriter, err error, logMessage string) {
	if errors.Is(err, apperrors.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Rule not found")
		return
	}
	h.logger.Error(logMessage, zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal_error", logMessage)
}

func (h *DashboardsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *DashboardsHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
