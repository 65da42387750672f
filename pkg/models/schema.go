package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SiteDataSchema is an immutable, versioned description of the sensor columns
// expected in a site's uploads. New versions are separate rows; a site's
// current schema is the pointer on the Site, not a flag here.
type SiteDataSchema struct {
	ID                uuid.UUID       `json:"id"`
	SiteID            uuid.UUID       `json:"site_id"`
	VersionNumber     int             `json:"version_number"`
	Definition        json.RawMessage `json:"definition"`
	EffectiveFrom     time.Time       `json:"effective_from"`
	ChangeDescription *string         `json:"change_description,omitempty"`
	CreatedByID       *uuid.UUID      `json:"created_by_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SchemaColumn describes one expected sensor column.
type SchemaColumn struct {
	DataType    string   `json:"dataType"`
	Required    bool     `json:"required"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// Column data types recognized by the validator. Unrecognized types are
// accepted but never range-checked.
const (
	ColumnTypeNumber  = "number"
	ColumnTypeString  = "string"
	ColumnTypeBoolean = "boolean"
)

// SchemaDefinition maps column name to its constraints.
type SchemaDefinition map[string]SchemaColumn

// ParseSchemaDefinition decodes a stored schema definition document.
func ParseSchemaDefinition(raw []byte) (SchemaDefinition, error) {
	var def SchemaDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to parse schema definition: %w", err)
	}
	return def, nil
}
