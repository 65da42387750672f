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

// TrainingJobRepository defines the interface for training job records.
// Job execution belongs to the external training worker; the engine only
// schedules jobs and reads their status.
type TrainingJobRepository interface {
	Create(ctx context.Context, job *models.TrainingJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrainingJob, error)
	ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.TrainingJob, error)
}

type trainingJobRepository struct {
	db *database.DB
}

// NewTrainingJobRepository creates a new training job repository.
func NewTrainingJobRepository(db *database.DB) TrainingJobRepository {
	return &trainingJobRepository{db: db}
}

var _ TrainingJobRepository = (*trainingJobRepository)(nil)

const trainingJobColumns = `id, site_id, scheduled_at, started_at, completed_at, status,
		training_data_start, training_data_end, model_version_id, config, error_message, triggered_by_id`

func scanTrainingJob(row pgx.Row) (*models.TrainingJob, error) {
	var job models.TrainingJob
	var configJSON []byte
	err := row.Scan(
		&job.ID,
		&job.SiteID,
		&job.ScheduledAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Status,
		&job.TrainingDataStart,
		&job.TrainingDataEnd,
		&job.ModelVersionID,
		&configJSON,
		&job.ErrorMessage,
		&job.TriggeredByID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("training job: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan training job: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal training config: %w", err)
		}
	}
	return &job, nil
}

// Create inserts a new training job in its initial status.
func (r *trainingJobRepository) Create(ctx context.Context, job *models.TrainingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	if job.Status == "" {
		job.Status = models.TrainingStatusScheduled
	}
	if job.Config == nil {
		job.Config = map[string]any{}
	}

	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal training config: %w", err)
	}

	query := `
		INSERT INTO training_jobs (id, site_id, scheduled_at, started_at, completed_at, status,
			training_data_start, training_data_end, model_version_id, config, error_message, triggered_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.SiteID,
		job.ScheduledAt,
		job.StartedAt,
		job.CompletedAt,
		job.Status,
		job.TrainingDataStart,
		job.TrainingDataEnd,
		job.ModelVersionID,
		configJSON,
		job.ErrorMessage,
		job.TriggeredByID,
	)
	if err != nil {
		return fmt.Errorf("failed to create training job: %w", err)
	}

	return nil
}

// GetByID retrieves one training job.
func (r *trainingJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrainingJob, error) {
	query := `SELECT ` + trainingJobColumns + ` FROM training_jobs WHERE id = $1`
	return scanTrainingJob(r.db.QueryRow(ctx, query, id))
}

// ListBySite retrieves the most recent training jobs for a site.
func (r *trainingJobRepository) ListBySite(ctx context.Context, siteID uuid.UUID, limit int) ([]*models.TrainingJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + trainingJobColumns + ` FROM training_jobs
		WHERE site_id = $1 ORDER BY scheduled_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list training jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.TrainingJob
	for rows.Next() {
		job, err := scanTrainingJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating training jobs: %w", err)
	}

	return jobs, nil
}
