package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// CleaningRuleInput carries the caller-editable cleaning rule fields.
type CleaningRuleInput struct {
	RuleType string         `json:"ruleType"`
	Config   map[string]any `json:"config,omitempty"`
	Priority int            `json:"priority"`
}

// ValidationRuleInput carries the caller-editable validation rule fields.
type ValidationRuleInput struct {
	ColumnName string         `json:"columnName"`
	RuleType   string         `json:"ruleType"`
	Config     map[string]any `json:"config,omitempty"`
	Priority   int            `json:"priority"`
}

// RuleService manages per-site cleaning and validation rules.
type RuleService interface {
	CreateCleaningRule(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input CleaningRuleInput) (*models.DataCleaningRule, error)
	ListCleaningRules(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error)
	// SetCleaningRuleActive toggles a rule. Rules belonging to a different
	// site are reported as not found.
	SetCleaningRuleActive(ctx context.Context, siteID, id uuid.UUID, active bool) error
	DeleteCleaningRule(ctx context.Context, siteID, id uuid.UUID) error

	CreateValidationRule(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input ValidationRuleInput) (*models.DataValidationRule, error)
	ListValidationRules(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error)
	SetValidationRuleActive(ctx context.Context, siteID, id uuid.UUID, active bool) error
	DeleteValidationRule(ctx context.Context, siteID, id uuid.UUID) error
}

type ruleService struct {
	cleaningRepo   repositories.CleaningRuleRepository
	validationRepo repositories.ValidationRuleRepository
	logger         *zap.Logger
}

// NewRuleService creates a new rule service with dependencies.
func NewRuleService(cleaningRepo repositories.CleaningRuleRepository, validationRepo repositories.ValidationRuleRepository, logger *zap.Logger) RuleService {
	return &ruleService{
		cleaningRepo:   cleaningRepo,
		validationRepo: validationRepo,
		logger:         logger,
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) CreateCleaningRule(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input CleaningRuleInput) (*models.DataCleaningRule, error) {
	if !models.IsValidCleaningRuleType(input.RuleType) {
		return nil, fmt.Errorf("unknown cleaning rule type %q: %w", input.RuleType, apperrors.ErrInvalidInput)
	}

	rule := &models.DataCleaningRule{
		SiteID:      siteID,
		RuleType:    input.RuleType,
		Config:      input.Config,
		IsActive:    true,
		Priority:    input.Priority,
		CreatedByID: createdByID,
	}
	if err := s.cleaningRepo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create cleaning rule: %w", err)
	}

	s.logger.Info("Cleaning rule created",
		zap.String("site_id", siteID.String()),
		zap.String("rule_type", rule.RuleType),
		zap.String("rule_id", rule.ID.String()))
	return rule, nil
}

func (s *ruleService) ListCleaningRules(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error) {
	return s.cleaningRepo.ListBySite(ctx, siteID, activeOnly)
}

func (s *ruleService) SetCleaningRuleActive(ctx context.Context, siteID, id uuid.UUID, active bool) error {
	if err := s.checkCleaningRuleSite(ctx, siteID, id); err != nil {
		return err
	}
	return s.cleaningRepo.SetActive(ctx, id, active)
}

func (s *ruleService) DeleteCleaningRule(ctx context.Context, siteID, id uuid.UUID) error {
	if err := s.checkCleaningRuleSite(ctx, siteID, id); err != nil {
		return err
	}
	return s.cleaningRepo.Delete(ctx, id)
}

func (s *ruleService) checkCleaningRuleSite(ctx context.Context, siteID, id uuid.UUID) error {
	rule, err := s.cleaningRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rule.SiteID != siteID {
		return fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (s *ruleService) CreateValidationRule(ctx context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input ValidationRuleInput) (*models.DataValidationRule, error) {
	if input.ColumnName == "" {
		return nil, fmt.Errorf("validation rule column name is required: %w", apperrors.ErrInvalidInput)
	}
	if !models.IsValidValidationRuleType(input.RuleType) {
		return nil, fmt.Errorf("unknown validation rule type %q: %w", input.RuleType, apperrors.ErrInvalidInput)
	}

	rule := &models.DataValidationRule{
		SiteID:      siteID,
		ColumnName:  input.ColumnName,
		RuleType:    input.RuleType,
		Config:      input.Config,
		IsActive:    true,
		Priority:    input.Priority,
		CreatedByID: createdByID,
	}
	if err := s.validationRepo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create validation rule: %w", err)
	}

	s.logger.Info("Validation rule created",
		zap.String("site_id", siteID.String()),
		zap.String("column", rule.ColumnName),
		zap.String("rule_id", rule.ID.String()))
	return rule, nil
}

func (s *ruleService) ListValidationRules(ctx context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error) {
	return s.validationRepo.ListBySite(ctx, siteID, activeOnly)
}

func (s *ruleService) SetValidationRuleActive(ctx context.Context, siteID, id uuid.UUID, active bool) error {
	if err := s.checkValidationRuleSite(ctx, siteID, id); err != nil {
		return err
	}
	return s.validationRepo.SetActive(ctx, id, active)
}

func (s *ruleService) DeleteValidationRule(ctx context.Context, siteID, id uuid.UUID) error {
	if err := s.checkValidationRuleSite(ctx, siteID, id); err != nil {
		return err
	}
	return s.validationRepo.Delete(ctx, id)
}

func (s *ruleService) checkValidationRuleSite(ctx context.Context, siteID, id uuid.UUID) error {
	rule, err := s.validationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rule.SiteID != siteID {
		return fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
	}
	return nil
}
