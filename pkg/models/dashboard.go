package models

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard is a saved visualization configuration for a site's data. The
// plot configuration is an opaque document consumed by the charting
// frontend; the backend only stores and serves it.
type Dashboard struct {
	ID     uuid.UUID `json:"id"`
	SiteID uuid.UUID `json:"site_id"`

	// CreatedByID is nil once the creating user has been deleted.
	CreatedByID *uuid.UUID `json:"created_by_id,omitempty"`

	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	PlotConfig map[string]any `json:"plot_config,omitempty"` // chart types, filters, layout

	// IsPublic makes the dashboard visible to every user with site access,
	// not just its creator.
	IsPublic     bool       `json:"is_public"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastViewedAt *time.Time `json:"last_viewed_at,omitempty"`
}
