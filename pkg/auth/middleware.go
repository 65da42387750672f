package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

// Middleware provides HTTP authentication middleware. It is thin and
// delegates token validation to AuthService and user resolution to
// UserService.
type Middleware struct {
	authService AuthService
	userService services.UserService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(authService AuthService, userService services.UserService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		userService: userService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and resolves it to a local user account,
// provisioning one on first sight. Sets claims and the resolved user in
// context for downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		identity := services.Identity{
			Subject: claims.Subject,
			Issuer:  claims.Issuer,
			Email:   claims.Email,
		}
		if claims.Name != "" {
			name := claims.Name
			identity.Name = &name
		}

		user, err := m.userService.GetOrCreateFromIdentity(r.Context(), identity)
		if err != nil {
			m.logger.Error("Failed to resolve user from token",
				zap.Error(err),
				zap.String("issuer", claims.Issuer))
			m.serverError(w, "Failed to resolve user")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, UserKey, user)
		next(w, r.WithContext(ctx))
	}
}

// RequireGlobalRole wraps RequireAuth and additionally requires the resolved
// user to hold at least the given global role.
func (m *Middleware) RequireGlobalRole(minRole string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok || !models.GlobalRoleAtLeast(user.Role, minRole) {
				m.forbidden(w, "Insufficient role")
				return
			}
			next(w, r)
		})
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

// serverError returns a 500 response with JSON error body.
func (m *Middleware) serverError(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusInternalServerError, "internal_error", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
