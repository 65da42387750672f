// Package auth provides JWT-based authentication. Tokens issued by the
// configured identity providers are verified against their JWKS endpoints,
// then resolved to local user accounts.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// UserKey is the context key for storing the resolved local user.
	UserKey contextKey = "user"
)

// Claims is the JWT claims structure accepted from identity providers.
// RegisteredClaims carries the standard fields (sub, iss, exp, etc.);
// email and name are the profile claims used to provision local users.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetUser retrieves the resolved local user from the request context.
// Returns nil and false if no authenticated user is present.
func GetUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok
}
