package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
)

// UsersHandler handles current-user HTTP requests.
type UsersHandler struct {
	logger *zap.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(logger *zap.Logger) *UsersHandler {
	return &UsersHandler{logger: logger}
}

// RegisterRoutes registers the users handler's routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/me", authMiddleware.RequireAuth(h.Me))
}

// Me handles GET /api/me
// Returns the authenticated user's local account, provisioned on first login.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetUser(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, user); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
