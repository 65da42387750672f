package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record. The global role is independent of any
// site-scoped role granted via UserSiteAccess.
type User struct {
	ID         uuid.UUID  `json:"id"`
	CompanyID  *uuid.UUID `json:"company_id,omitempty"`
	IdpSubject string     `json:"idp_subject"`
	IdpIssuer  string     `json:"idp_issuer"`
	Email      string     `json:"email"`
	Name       *string    `json:"name,omitempty"`
	Role       string     `json:"role"` // 'user', 'manager', 'admin', 'superuser'
	// IsIndividual marks self-signup users not attached to a company.
	IsIndividual bool       `json:"is_individual"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Global role constants, ordered by privilege. Persisted as text.
const (
	GlobalRoleUser      = "user"
	GlobalRoleManager   = "manager"
	GlobalRoleAdmin     = "admin"
	GlobalRoleSuperUser = "superuser"
)

// ValidGlobalRoles contains all valid global role values.
var ValidGlobalRoles = []string{GlobalRoleUser, GlobalRoleManager, GlobalRoleAdmin, GlobalRoleSuperUser}

// IsValidGlobalRole checks if the given global role is valid.
func IsValidGlobalRole(role string) bool {
	for _, r := range ValidGlobalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsGloballyPrivileged reports whether a global role bypasses per-site
// access grants entirely.
func IsGloballyPrivileged(role string) bool {
	return role == GlobalRoleAdmin || role == GlobalRoleSuperUser
}

var globalRoleRank = map[string]int{
	GlobalRoleUser:      0,
	GlobalRoleManager:   1,
	GlobalRoleAdmin:     2,
	GlobalRoleSuperUser: 3,
}

// GlobalRoleAtLeast reports whether role carries at least the privilege of
// minRole. Unknown roles rank below every valid role.
func GlobalRoleAtLeast(role, minRole string) bool {
	r, ok := globalRoleRank[role]
	if !ok {
		return false
	}
	m, ok := globalRoleRank[minRole]
	if !ok {
		return false
	}
	return r >= m
}
