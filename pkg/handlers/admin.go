package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

// AdminHandler handles administrative HTTP requests: tenant companies,
// user management, and per-site access grants.
type AdminHandler struct {
	companyService services.CompanyService
	userService    services.UserService
	accessService  services.AccessService
	siteService    services.SiteService
	logger         *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	companyService services.CompanyService,
	userService services.UserService,
	accessService services.AccessService,
	siteService services.SiteService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		companyService: companyService,
		userService:    userService,
		accessService:  accessService,
		siteService:    siteService,
		logger:         logger,
	}
}

// RegisterRoutes registers the admin handler's routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	requireAuth := authMiddleware.RequireAuth
	requireAdmin := authMiddleware.RequireGlobalRole(models.GlobalRoleAdmin)

	mux.HandleFunc("POST /api/companies", requireAdmin(h.CreateCompany))
	mux.HandleFunc("GET /api/companies", requireAdmin(h.ListCompanies))
	mux.HandleFunc("GET /api/companies/{cid}", requireAdmin(h.GetCompany))

	mux.HandleFunc("GET /api/admin/sites", requireAdmin(h.ListAllSites))

	mux.HandleFunc("GET /api/users", requireAdmin(h.ListUsers))
	mux.HandleFunc("PATCH /api/users/{uid}/role", requireAdmin(h.UpdateUserRole))
	mux.HandleFunc("DELETE /api/users/{uid}", requireAdmin(h.DeleteUser))

	mux.HandleFunc("POST /api/sites/{sid}/access", requireAuth(h.GrantAccess))
	mux.HandleFunc("DELETE /api/sites/{sid}/access/{uid}", requireAuth(h.RevokeAccess))
	mux.HandleFunc("GET /api/sites/{sid}/access", requireAuth(h.ListAccess))
}

// CreateCompany handles POST /api/companies
func (h *AdminHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string  `json:"name"`
		ContactEmail *string `json:"contactEmail,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	company, err := h.companyService.Create(r.Context(), body.Name, body.ContactEmail)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Company name is required")
			return
		}
		h.logger.Error("Failed to create company", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create company")
		return
	}
	h.writeJSON(w, http.StatusCreated, company)
}

// ListCompanies handles GET /api/companies
func (h *AdminHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companyService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list companies", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list companies")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"companies": companies})
}

// ListAllSites handles GET /api/admin/sites
func (h *AdminHandler) ListAllSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.siteService.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sites", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sites")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// GetCompany handles GET /api/companies/{cid}
func (h *AdminHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := ParseCompanyID(w, r, h.logger)
	if !ok {
		return
	}

	company, err := h.companyService.Get(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Company not found")
			return
		}
		h.logger.Error("Failed to get company", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get company")
		return
	}
	h.writeJSON(w, http.StatusOK, company)
}

// ListUsers handles GET /api/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list users")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// UpdateUserRole handles PATCH /api/users/{uid}/role
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.userService.UpdateRole(r.Context(), userID, body.Role); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidRole):
			h.writeError(w, http.StatusBadRequest, "invalid_role", "Unknown global role")
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "User not found")
		default:
			h.logger.Error("Failed to update user role", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update user role")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser handles DELETE /api/users/{uid}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.userService.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		h.logger.Error("Failed to delete user", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireAccessManager checks that the caller may manage the site's access
// grants: a privileged global role, or the owner/site_admin site role.
func (h *AdminHandler) requireAccessManager(w http.ResponseWriter, r *http.Request) bool {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return false
	}

	siteID, ok := ParseSiteID(w, r, h.logger)
	if !ok {
		return false
	}

	allowed, err := h.accessService.HasSiteRole(r.Context(), user.ID, siteID,
		[]string{models.SiteRoleOwner, models.SiteRoleSiteAdmin})
	if err != nil {
		h.logger.Error("Failed to check site role", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to check site role")
		return false
	}
	if !allowed {
		h.writeError(w, http.StatusForbidden, "forbidden", "Insufficient site role")
		return false
	}
	return true
}

// GrantAccess handles POST /api/sites/{sid}/access
func (h *AdminHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	if !h.requireAccessManager(w, r) {
		return
	}
	siteID, _ := ParseSiteID(w, r, h.logger)

	var body struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	userID, err := parseUUIDString(body.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format")
		return
	}

	if err := h.accessService.GrantSiteAccess(r.Context(), userID, siteID, body.Role); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidRole):
			h.writeError(w, http.StatusBadRequest, "invalid_role", "Unknown site role")
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "User or site not found")
		default:
			h.logger.Error("Failed to grant site access", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to grant site access")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAccess handles DELETE /api/sites/{sid}/access/{uid}
func (h *AdminHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	if !h.requireAccessManager(w, r) {
		return
	}
	siteID, _ := ParseSiteID(w, r, h.logger)
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.accessService.RevokeSiteAccess(r.Context(), userID, siteID); err != nil {
		h.logger.Error("Failed to revoke site access", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to revoke site access")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccess handles GET /api/sites/{sid}/access
func (h *AdminHandler) ListAccess(w http.ResponseWriter, r *http.Request) {
	if !h.requireAccessManager(w, r) {
		return
	}
	siteID, _ := ParseSiteID(w, r, h.logger)

	grants, err := h.accessService.ListSiteAccess(r.Context(), siteID)
	if err != nil {
		h.logger.Error("Failed to list site access", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list site access")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"access": grants})
}

func (h *AdminHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
