package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// DataRowRepository defines the interface for time-series data row access.
//
// The data_rows table carries a UNIQUE (site_id, date) constraint. Insert
// goes through ON CONFLICT DO NOTHING so two concurrent ingestions racing on
// the same date can never produce two rows; the loser observes inserted=false
// and falls back to the same update-or-skip decision it would have made had
// the row been visible during the bulk existence check.
type DataRowRepository interface {
	// ExistingDates reports which of the given day-truncated dates already
	// have a row for the site, in one pass.
	ExistingDates(ctx context.Context, siteID uuid.UUID, dates []time.Time) (map[time.Time]bool, error)
	// Insert adds a new row. Returns false without error when a row for the
	// same (site, date) already exists.
	Insert(ctx context.Context, row *models.DataRow) (bool, error)
	// UpdateBySiteDate overwrites the sensor payload and schema reference of
	// the row at (site, date).
	UpdateBySiteDate(ctx context.Context, siteID uuid.UUID, date time.Time, data models.SensorData, schemaVersionID *uuid.UUID) error
	GetBySiteDate(ctx context.Context, siteID uuid.UUID, date time.Time) (*models.DataRow, error)
	ListBySiteRange(ctx context.Context, siteID uuid.UUID, from, to time.Time) ([]*models.DataRow, error)
	CountBySite(ctx context.Context, siteID uuid.UUID) (int, error)
}

type dataRowRepository struct {
	db *database.DB
}

// NewDataRowRepository creates a new data row repository.
func NewDataRowRepository(db *database.DB) DataRowRepository {
	return &dataRowRepository{db: db}
}

var _ DataRowRepository = (*dataRowRepository)(nil)

// ExistingDates reports which of the given dates already have a row.
func (r *dataRowRepository) ExistingDates(ctx context.Context, siteID uuid.UUID, dates []time.Time) (map[time.Time]bool, error) {
	existing := make(map[time.Time]bool, len(dates))
	if len(dates) == 0 {
		return existing, nil
	}

	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		days = append(days, models.DayOf(d))
	}

	query := `SELECT date FROM data_rows WHERE site_id = $1 AND date = ANY($2)`

	rows, err := r.db.Query(ctx, query, siteID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		existing[models.DayOf(d)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dates: %w", err)
	}

	return existing, nil
}

// Insert adds a new row, reporting false when the (site, date) slot is taken.
func (r *dataRowRepository) Insert(ctx context.Context, row *models.DataRow) (bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Date = models.DayOf(row.Date)
	row.CreatedAt = time.Now()

	dataJSON, err := json.Marshal(row.SensorData)
	if err != nil {
		return false, fmt.Errorf("failed to marshal sensor data: %w", err)
	}

	query := `
		INSERT INTO data_rows (id, site_id, schema_version_id, date, sensor_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (site_id, date) DO NOTHING`

	result, err := r.db.Exec(ctx, query,
		row.ID,
		row.SiteID,
		row.SchemaVersionID,
		row.Date,
		dataJSON,
		row.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert data row: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// UpdateBySiteDate overwrites the payload and schema reference at (site, date).
func (r *dataRowRepository) UpdateBySiteDate(ctx context.Context, siteID uuid.UUID, date time.Time, data models.SensorData, schemaVersionID *uuid.UUID) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor data: %w", err)
	}

	query := `UPDATE data_rows SET sensor_data = $1, schema_version_id = $2 WHERE site_id = $3 AND date = $4`

	result, err := r.db.Exec(ctx, query, dataJSON, schemaVersionID, siteID, models.DayOf(date))
	if err != nil {
		return fmt.Errorf("failed to update data row: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("data row: %w", apperrors.ErrNotFound)
	}

	return nil
}

func scanDataRow(row pgx.Row) (*models.DataRow, error) {
	var dr models.DataRow
	var dataJSON []byte
	err := row.Scan(
		&dr.ID,
		&dr.SiteID,
		&dr.SchemaVersionID,
		&dr.Date,
		&dataJSON,
		&dr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("data row: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan data row: %w", err)
	}
	if err := json.Unmarshal(dataJSON, &dr.SensorData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sensor data: %w", err)
	}
	return &dr, nil
}

// GetBySiteDate retrieves the row at (site, date).
func (r *dataRowRepository) GetBySiteDate(ctx context.Context, siteID uuid.UUID, date time.Time) (*models.DataRow, error) {
	query := `SELECT id, site_id, schema_version_id, date, sensor_data, created_at
		FROM data_rows WHERE site_id = $1 AND date = $2`
	return scanDataRow(r.db.QueryRow(ctx, query, siteID, models.DayOf(date)))
}

// ListBySiteRange retrieves rows for a site between two dates, inclusive.
func (r *dataRowRepository) ListBySiteRange(ctx context.Context, siteID uuid.UUID, from, to time.Time) ([]*models.DataRow, error) {
	query := `SELECT id, site_id, schema_version_id, date, sensor_data, created_at
		FROM data_rows WHERE site_id = $1 AND date >= $2 AND date <= $3 ORDER BY date`

	rows, err := r.db.Query(ctx, query, siteID, models.DayOf(from), models.DayOf(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list data rows: %w", err)
	}
	defer rows.Close()

	var result []*models.DataRow
	for rows.Next() {
		dr, err := scanDataRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data rows: %w", err)
	}

	return result, nil
}

// CountBySite returns the number of stored rows for a site.
func (r *dataRowRepository) CountBySite(ctx context.Context, siteID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM data_rows WHERE site_id = $1`, siteID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count data rows: %w", err)
	}
	return count, nil
}
