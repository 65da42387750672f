package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// ValidationIssue is one warning or error produced while validating an
// upload. Warnings and errors share this shape. RowIndex is the zero-based
// position in the batch; batch-level issues use RowIndex -1 and a zero date.
type ValidationIssue struct {
	RowIndex int       `json:"rowIndex"`
	Date     time.Time `json:"date"`
	Field    string    `json:"field"`
	Message  string    `json:"message"`
}

// Sentinel field names for issues not tied to a sensor column.
const (
	issueFieldSchema = "schema"
	issueFieldDate   = "date"
	issueFieldSiteID = "siteId"
)

// RowInput is one proposed observation: a date plus its sensor readings.
// Any time-of-day component of Date is discarded during processing.
type RowInput struct {
	Date       time.Time         `json:"date"`
	SensorData models.SensorData `json:"sensorData"`
}

// SchemaValidator checks a batch of proposed rows against a site's current
// schema. It never blocks ingestion on a degraded schema: a missing,
// unresolvable, or unparseable schema yields a single warning and accepts
// every row.
type SchemaValidator interface {
	Validate(ctx context.Context, site *models.Site, rows []RowInput) (warnings, errs []ValidationIssue, err error)
}

type schemaValidator struct {
	schemaRepo repositories.SchemaRepository
	logger     *zap.Logger
}

// NewSchemaValidator creates a new schema validator with dependencies.
func NewSchemaValidator(schemaRepo repositories.SchemaRepository, logger *zap.Logger) SchemaValidator {
	return &schemaValidator{
		schemaRepo: schemaRepo,
		logger:     logger,
	}
}

var _ SchemaValidator = (*schemaValidator)(nil)

// Validate checks each row, in input order, against the site's current
// schema definition. Future-dated rows and missing required fields are
// errors; unknown fields and out-of-range numeric values are warnings.
func (v *schemaValidator) Validate(ctx context.Context, site *models.Site, rows []RowInput) ([]ValidationIssue, []ValidationIssue, error) {
	var warnings, errs []ValidationIssue

	if site.CurrentSchemaVersionID == nil {
		warnings = append(warnings, ValidationIssue{
			RowIndex: -1,
			Field:    issueFieldSchema,
			Message:  "No schema defined for this site. Data will be accepted without validation.",
		})
		return warnings, errs, nil
	}

	schema, err := v.schemaRepo.GetByID(ctx, *site.CurrentSchemaVersionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			warnings = append(warnings, ValidationIssue{
				RowIndex: -1,
				Field:    issueFieldSchema,
				Message:  "Schema version not found. Data will be accepted without validation.",
			})
			return warnings, errs, nil
		}
		return nil, nil, err
	}

	def, err := models.ParseSchemaDefinition(schema.Definition)
	if err != nil {
		v.logger.Warn("Failed to parse schema definition",
			zap.String("site_id", site.ID.String()),
			zap.String("schema_id", schema.ID.String()),
			zap.Error(err))
		warnings = append(warnings, ValidationIssue{
			RowIndex: -1,
			Field:    issueFieldSchema,
			Message:  "Schema definition is invalid. Data will be accepted without validation.",
		})
		return warnings, errs, nil
	}

	if len(def) == 0 {
		return warnings, errs, nil
	}

	// Sorted column/field names keep issue emission deterministic.
	columnNames := make([]string, 0, len(def))
	for name := range def {
		columnNames = append(columnNames, name)
	}
	sort.Strings(columnNames)

	today := models.DayOf(time.Now())

	for i, row := range rows {
		if models.DayOf(row.Date).After(today) {
			errs = append(errs, ValidationIssue{
				RowIndex: i,
				Date:     row.Date,
				Field:    issueFieldDate,
				Message:  "Date cannot be in the future",
			})
		}

		for _, name := range columnNames {
			if def[name].Required {
				if _, present := row.SensorData[name]; !present {
					errs = append(errs, ValidationIssue{
						RowIndex: i,
						Date:     row.Date,
						Field:    name,
						Message:  fmt.Sprintf("Required field '%s' is missing", name),
					})
				}
			}
		}

		fieldNames := make([]string, 0, len(row.SensorData))
		for name := range row.SensorData {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)

		for _, name := range fieldNames {
			column, known := def[name]
			if !known {
				warnings = append(warnings, ValidationIssue{
					RowIndex: i,
					Date:     row.Date,
					Field:    name,
					Message:  fmt.Sprintf("Unknown field '%s' not in schema", name),
				})
				continue
			}

			value := row.SensorData[name]
			if value.IsNull() || column.DataType != models.ColumnTypeNumber {
				continue
			}

			// Values that do not parse as numbers are accepted untouched;
			// only parseable values are range-checked.
			num, ok := value.AsNumber()
			if !ok {
				continue
			}

			if column.Min != nil && num < *column.Min {
				warnings = append(warnings, ValidationIssue{
					RowIndex: i,
					Date:     row.Date,
					Field:    name,
					Message:  fmt.Sprintf("Value %v is below minimum %v", num, *column.Min),
				})
			}
			if column.Max != nil && num > *column.Max {
				warnings = append(warnings, ValidationIssue{
					RowIndex: i,
					Date:     row.Date,
					Field:    name,
					Message:  fmt.Sprintf("Value %v is above maximum %v", num, *column.Max),
				})
			}
		}
	}

	return warnings, errs, nil
}
