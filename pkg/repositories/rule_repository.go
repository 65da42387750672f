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

// CleaningRuleRepository defines the interface for data cleaning rules.
type CleaningRuleRepository interface {
	Create(ctx context.Context, rule *models.DataCleaningRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataCleaningRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ListBySite returns the site's rules in execution order (ascending
	// priority). Set activeOnly to skip disabled rules.
	ListBySite(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type cleaningRuleRepository struct {
	db *database.DB
}

// NewCleaningRuleRepository creates a new cleaning rule repository.
func NewCleaningRuleRepository(db *database.DB) CleaningRuleRepository {
	return &cleaningRuleRepository{db: db}
}

var _ CleaningRuleRepository = (*cleaningRuleRepository)(nil)

const cleaningRuleColumns = `id, site_id, rule_type, config, is_active, priority,
		created_by_id, created_at, version_number`

func scanCleaningRule(row pgx.Row) (*models.DataCleaningRule, error) {
	var rule models.DataCleaningRule
	var configJSON []byte
	err := row.Scan(
		&rule.ID,
		&rule.SiteID,
		&rule.RuleType,
		&configJSON,
		&rule.IsActive,
		&rule.Priority,
		&rule.CreatedByID,
		&rule.CreatedAt,
		&rule.VersionNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan cleaning rule: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &rule.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule config: %w", err)
		}
	}
	return &rule, nil
}

// Create inserts a new cleaning rule.
func (r *cleaningRuleRepository) Create(ctx context.Context, rule *models.DataCleaningRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	configJSON, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal rule config: %w", err)
	}

	query := `
		INSERT INTO data_cleaning_rules (id, site_id, rule_type, config, is_active, priority,
			created_by_id, created_at, version_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		rule.ID,
		rule.SiteID,
		rule.RuleType,
		configJSON,
		rule.IsActive,
		rule.Priority,
		rule.CreatedByID,
		rule.CreatedAt,
		rule.VersionNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to create cleaning rule: %w", err)
	}

	return nil
}

// GetByID retrieves one cleaning rule.
func (r *cleaningRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataCleaningRule, error) {
	query := `SELECT ` + cleaningRuleColumns + ` FROM data_cleaning_rules WHERE id = $1`
	return scanCleaningRule(r.db.QueryRow(ctx, query, id))
}

// Delete removes a cleaning rule.
func (r *cleaningRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM data_cleaning_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cleaning rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ListBySite retrieves a site's cleaning rules in execution order.
func (r *cleaningRuleRepository) ListBySite(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error) {
	query := `SELECT ` + cleaningRuleColumns + ` FROM data_cleaning_rules
		WHERE site_id = $1 AND ($2 = false OR is_active)
		ORDER BY priority ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaning rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.DataCleaningRule
	for rows.Next() {
		rule, err := scanCleaningRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SetActive toggles a cleaning rule on or off.
func (r *cleaningRuleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE data_cleaning_rules SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update cleaning rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ValidationRuleRepository defines the interface for per-column data
// validation rules.
type ValidationRuleRepository interface {
	Create(ctx context.Context, rule *models.DataValidationRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataValidationRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListBySite(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type validationRuleRepository struct {
	db *database.DB
}

// NewValidationRuleRepository creates a new validation rule repository.
func NewValidationRuleRepository(db *database.DB) ValidationRuleRepository {
	return &validationRuleRepository{db: db}
}

var _ ValidationRuleRepository = (*validationRuleRepository)(nil)

const validationRuleColumns = `id, site_id, column_name, rule_type, config, is_active,
		priority, created_by_id, created_at`

func scanValidationRule(row pgx.Row) (*models.DataValidationRule, error) {
	var rule models.DataValidationRule
	var configJSON []byte
	err := row.Scan(
		&rule.ID,
		&rule.SiteID,
		&rule.ColumnName,
		&rule.RuleType,
		&configJSON,
		&rule.IsActive,
		&rule.Priority,
		&rule.CreatedByID,
		&rule.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan validation rule: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &rule.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule config: %w", err)
		}
	}
	return &rule, nil
}

// Create inserts a new validation rule.
func (r *validationRuleRepository) Create(ctx context.Context, rule *models.DataValidationRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	configJSON, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal rule config: %w", err)
	}

	query := `
		INSERT INTO data_validation_rules (id, site_id, column_name, rule_type, config,
			is_active, priority, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		rule.ID,
		rule.SiteID,
		rule.ColumnName,
		rule.RuleType,
		configJSON,
		rule.IsActive,
		rule.Priority,
		rule.CreatedByID,
		rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create validation rule: %w", err)
	}

	return nil
}

// GetByID retrieves one validation rule.
func (r *validationRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataValidationRule, error) {
	query := `SELECT ` + validationRuleColumns + ` FROM data_validation_rules WHERE id = $1`
	return scanValidationRule(r.db.QueryRow(ctx, query, id))
}

// Delete removes a validation rule.
func (r *validationRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM data_validation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete validation rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
	}
	return nil
}

// ListBySite retrieves a site's validation rules in execution order.
func (r *validationRuleRepository) ListBySite(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error) {
	query := `SELECT ` + validationRuleColumns + ` FROM data_validation_rules
		WHERE site_id = $1 AND ($2 = false OR is_active)
		ORDER BY priority ASC, created_at ASC`

	rows, err := r.db.Query(ctx, query, siteID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.DataValidationRule
	for rows.Next() {
		rule, err := scanValidationRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SetActive toggles a validation rule on or off.
func (r *validationRuleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE data_validation_rules SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update validation rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
	}
	return nil
}
