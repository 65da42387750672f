package models

import (
	"time"

	"github.com/google/uuid"
)

// DataRow is one calendar-day's sensor reading set for a site. At most one
// row may exist per (site, date); the date always has its time-of-day
// component discarded before storage.
type DataRow struct {
	ID uuid.UUID `json:"id"`

	SiteID uuid.UUID `json:"site_id"`

	// SchemaVersionID records which schema the row was validated against.
	// Nil when the site had no schema at ingestion time.
	SchemaVersionID *uuid.UUID `json:"schema_version_id,omitempty"`

	Date       time.Time  `json:"date"`
	SensorData SensorData `json:"sensor_data"`

	CreatedAt time.Time `json:"created_at"`
}

// DayOf truncates a timestamp to day granularity in UTC.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
