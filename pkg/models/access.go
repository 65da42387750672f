package models

import (
	"time"

	"github.com/google/uuid"
)

// UserSiteAccess grants a user a site-scoped role. Composite key (user, site).
type UserSiteAccess struct {
	UserID    uuid.UUID `json:"user_id"`
	SiteID    uuid.UUID `json:"site_id"`
	Role      string    `json:"role"` // 'viewer', 'operator', 'site_admin', 'owner'
	CreatedAt time.Time `json:"created_at"`
}

// Site role constants, ordered by privilege. Persisted as text.
//
// Authorization checks treat these as an exact set, not a hierarchy: callers
// of HasSiteRole pass the literal roles they accept.
const (
	SiteRoleViewer    = "viewer"
	SiteRoleOperator  = "operator"
	SiteRoleSiteAdmin = "site_admin"
	SiteRoleOwner     = "owner"
)

// ValidSiteRoles contains all valid site role values.
var ValidSiteRoles = []string{SiteRoleViewer, SiteRoleOperator, SiteRoleSiteAdmin, SiteRoleOwner}

// IsValidSiteRole checks if the given site role is valid.
func IsValidSiteRole(role string) bool {
	for _, r := range ValidSiteRoles {
		if r == role {
			return true
		}
	}
	return false
}
