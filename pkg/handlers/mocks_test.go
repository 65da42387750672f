package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

// stubAuthService accepts any request carrying an Authorization header and
// returns canned claims.
type stubAuthService struct {
	claims *auth.Claims
}

func (s *stubAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, "", auth.ErrMissingAuthorization
	}
	return s.claims, "test-token", nil
}

// stubUserService resolves every identity to a fixed user.
type stubUserService struct {
	user *models.User
}

func (s *stubUserService) GetOrCreateFromIdentity(context.Context, services.Identity) (*models.User, error) {
	return s.user, nil
}
func (s *stubUserService) GetByID(context.Context, uuid.UUID) (*models.User, error) {
	return s.user, nil
}
func (s *stubUserService) List(context.Context) ([]*models.User, error)        { return nil, nil }
func (s *stubUserService) UpdateRole(context.Context, uuid.UUID, string) error { return nil }
func (s *stubUserService) Delete(context.Context, uuid.UUID) error             { return nil }

// mockAccessService answers access checks from a fixed grant table.
type mockAccessService struct {
	privileged bool
	roles      map[uuid.UUID]string // siteID -> granted role for the test user
}

func (m *mockAccessService) HasSiteAccess(_ context.Context, _ uuid.UUID, siteID uuid.UUID) (bool, error) {
	if m.privileged {
		return true, nil
	}
	_, ok := m.roles[siteID]
	return ok, nil
}

func (m *mockAccessService) GetUserSiteRole(_ context.Context, _ uuid.UUID, siteID uuid.UUID) (string, bool, error) {
	role, ok := m.roles[siteID]
	return role, ok, nil
}

func (m *mockAccessService) HasSiteRole(_ context.Context, _ uuid.UUID, siteID uuid.UUID, allowedRoles []string) (bool, error) {
	if m.privileged {
		return true, nil
	}
	role, ok := m.roles[siteID]
	if !ok {
		return false, nil
	}
	for _, allowed := range allowedRoles {
		if role == allowed {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAccessService) GetUserAccessibleSiteIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.roles {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockAccessService) GrantSiteAccess(_ context.Context, _ uuid.UUID, siteID uuid.UUID, role string) error {
	if m.roles == nil {
		m.roles = make(map[uuid.UUID]string)
	}
	m.roles[siteID] = role
	return nil
}

func (m *mockAccessService) RevokeSiteAccess(_ context.Context, _ uuid.UUID, siteID uuid.UUID) error {
	delete(m.roles, siteID)
	return nil
}

func (m *mockAccessService) ListSiteAccess(context.Context, uuid.UUID) ([]*models.UserSiteAccess, error) {
	return nil, nil
}

// mockIngestionService records the last upload request and returns a canned
// result.
type mockIngestionService struct {
	result *services.UploadResult
	err    error

	gotSiteID uuid.UUID
	gotUserID *uuid.UUID
	gotReq    services.UploadRequest
	calls     int
}

func (m *mockIngestionService) ProcessUpload(_ context.Context, siteID uuid.UUID, userID *uuid.UUID, req services.UploadRequest) (*services.UploadResult, error) {
	m.calls++
	m.gotSiteID = siteID
	m.gotUserID = userID
	m.gotReq = req
	return m.result, m.err
}

// mockInferenceService returns canned request and model lists.
type mockInferenceService struct {
	requests []*models.InferenceRequest
	models   []*models.ModelVersion
	err      error

	activatedModelID uuid.UUID
	registered       *services.ModelRegistration
}

func (m *mockInferenceService) TriggerForSite(context.Context, uuid.UUID, *uuid.UUID) (*models.InferenceRequest, error) {
	return nil, nil
}
func (m *mockInferenceService) GetRequest(context.Context, uuid.UUID) (*models.InferenceRequest, error) {
	return nil, nil
}
func (m *mockInferenceService) ListRequests(context.Context, uuid.UUID, int) ([]*models.InferenceRequest, error) {
	return m.requests, nil
}
func (m *mockInferenceService) ListModels(context.Context, uuid.UUID) ([]*models.ModelVersion, error) {
	return m.models, m.err
}
func (m *mockInferenceService) RegisterModel(_ context.Context, siteID uuid.UUID, reg services.ModelRegistration) (*models.ModelVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	if reg.StoragePath == "" {
		return nil, apperrors.ErrInvalidInput
	}
	m.registered = &reg
	return &models.ModelVersion{ID: uuid.New(), SiteID: siteID, StoragePath: reg.StoragePath, VersionNumber: 1, IsActive: reg.Activate}, nil
}
func (m *mockInferenceService) ActivateModel(_ context.Context, _ uuid.UUID, modelID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.activatedModelID = modelID
	return nil
}

// mockSiteService returns canned sites.
type mockSiteService struct {
	site    *models.Site
	sites   []*models.Site
	uploads []*models.Upload
	jobs    []*models.TrainingJob
	job     *models.TrainingJob
	err     error
}

func (m *mockSiteService) Create(_ context.Context, companyID uuid.UUID, input services.SiteInput) (*models.Site, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Site{ID: uuid.New(), CompanyID: companyID, Name: input.Name, Status: models.SiteStatusPendingSetup}, nil
}

func (m *mockSiteService) Get(context.Context, uuid.UUID) (*models.Site, error) {
	return m.site, m.err
}

func (m *mockSiteService) ListForUser(context.Context, uuid.UUID) ([]*models.Site, error) {
	return m.sites, m.err
}

func (m *mockSiteService) ListAll(context.Context) ([]*models.Site, error) {
	return m.sites, m.err
}

func (m *mockSiteService) ListByCompany(context.Context, uuid.UUID) ([]*models.Site, error) {
	return m.sites, m.err
}

func (m *mockSiteService) Update(context.Context, uuid.UUID, services.SiteInput) (*models.Site, error) {
	return m.site, m.err
}

func (m *mockSiteService) Delete(context.Context, uuid.UUID) error { return m.err }

func (m *mockSiteService) UpdateStatus(context.Context, uuid.UUID, string) (*models.Site, error) {
	return m.site, m.err
}

func (m *mockSiteService) UpdateAutomation(context.Context, uuid.UUID, services.AutomationSettings) (*models.Site, error) {
	return m.site, m.err
}

func (m *mockSiteService) CreateSchemaVersion(context.Context, uuid.UUID, json.RawMessage, *string, *uuid.UUID) (*models.SiteDataSchema, error) {
	return &models.SiteDataSchema{ID: uuid.New(), VersionNumber: 1}, m.err
}

func (m *mockSiteService) SetCurrentSchema(context.Context, uuid.UUID, uuid.UUID) error {
	return m.err
}

func (m *mockSiteService) ListSchemas(context.Context, uuid.UUID) ([]*models.SiteDataSchema, error) {
	return nil, m.err
}

func (m *mockSiteService) ScheduleTraining(context.Context, uuid.UUID, time.Time, time.Time, map[string]any, *uuid.UUID) (*models.TrainingJob, error) {
	return &models.TrainingJob{ID: uuid.New(), Status: models.TrainingStatusScheduled}, m.err
}

func (m *mockSiteService) GetTrainingJob(_ context.Context, siteID, _ uuid.UUID) (*models.TrainingJob, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.job == nil || m.job.SiteID != siteID {
		return nil, apperrors.ErrNotFound
	}
	return m.job, nil
}

func (m *mockSiteService) ListTrainingJobs(context.Context, uuid.UUID, int) ([]*models.TrainingJob, error) {
	return m.jobs, m.err
}

func (m *mockSiteService) ListUploads(context.Context, uuid.UUID, int) ([]*models.Upload, error) {
	return m.uploads, m.err
}

func (m *mockSiteService) ListData(context.Context, uuid.UUID, time.Time, time.Time) ([]*models.DataRow, error) {
	return nil, m.err
}

// mockDashboardService keeps dashboards in memory.
type mockDashboardService struct {
	dashboards map[uuid.UUID]*models.Dashboard
	err        error
}

func (m *mockDashboardService) Create(_ context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input services.DashboardInput) (*models.Dashboard, error) {
	if m.err != nil {
		return nil, m.err
	}
	if input.Name == "" {
		return nil, apperrors.ErrInvalidInput
	}
	d := &models.Dashboard{
		ID:          uuid.New(),
		SiteID:      siteID,
		CreatedByID: createdByID,
		Name:        input.Name,
		Description: input.Description,
		PlotConfig:  input.PlotConfig,
		IsPublic:    input.IsPublic,
	}
	if m.dashboards == nil {
		m.dashboards = make(map[uuid.UUID]*models.Dashboard)
	}
	m.dashboards[d.ID] = d
	return d, nil
}

func (m *mockDashboardService) Get(_ context.Context, siteID, id uuid.UUID) (*models.Dashboard, error) {
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.dashboards[id]
	if !ok || d.SiteID != siteID {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (m *mockDashboardService) List(_ context.Context, siteID uuid.UUID) ([]*models.Dashboard, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Dashboard
	for _, d := range m.dashboards {
		if d.SiteID == siteID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDashboardService) Update(ctx context.Context, siteID, id uuid.UUID, input services.DashboardInput) (*models.Dashboard, error) {
	if input.Name == "" {
		return nil, apperrors.ErrInvalidInput
	}
	d, err := m.Get(ctx, siteID, id)
	if err != nil {
		return nil, err
	}
	d.Name = input.Name
	d.Description = input.Description
	d.PlotConfig = input.PlotConfig
	d.IsPublic = input.IsPublic
	return d, nil
}

func (m *mockDashboardService) Delete(ctx context.Context, siteID, id uuid.UUID) error {
	if _, err := m.Get(ctx, siteID, id); err != nil {
		return err
	}
	delete(m.dashboards, id)
	return nil
}

// mockRuleService keeps cleaning and validation rules in memory.
type mockRuleService struct {
	cleaning   map[uuid.UUID]*models.DataCleaningRule
	validation map[uuid.UUID]*models.DataValidationRule
	err        error
}

func (m *mockRuleService) CreateCleaningRule(_ context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input services.CleaningRuleInput) (*models.DataCleaningRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !models.IsValidCleaningRuleType(input.RuleType) {
		return nil, apperrors.ErrInvalidInput
	}
	rule := &models.DataCleaningRule{
		ID:          uuid.New(),
		SiteID:      siteID,
		RuleType:    input.RuleType,
		Config:      input.Config,
		IsActive:    true,
		Priority:    input.Priority,
		CreatedByID: createdByID,
	}
	if m.cleaning == nil {
		m.cleaning = make(map[uuid.UUID]*models.DataCleaningRule)
	}
	m.cleaning[rule.ID] = rule
	return rule, nil
}

func (m *mockRuleService) ListCleaningRules(_ context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.DataCleaningRule
	for _, rule := range m.cleaning {
		if rule.SiteID == siteID && (!activeOnly || rule.IsActive) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *mockRuleService) SetCleaningRuleActive(_ context.Context, siteID, id uuid.UUID, active bool) error {
	rule, ok := m.cleaning[id]
	if !ok || rule.SiteID != siteID {
		return apperrors.ErrNotFound
	}
	rule.IsActive = active
	return nil
}

func (m *mockRuleService) DeleteCleaningRule(_ context.Context, siteID, id uuid.UUID) error {
	rule, ok := m.cleaning[id]
	if !ok || rule.SiteID != siteID {
		return apperrors.ErrNotFound
	}
	delete(m.cleaning, id)
	return nil
}

func (m *mockRuleService) CreateValidationRule(_ context.Context, siteID uuid.UUID, createdByID *uuid.UUID, input services.ValidationRuleInput) (*models.DataValidationRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	if input.ColumnName == "" || !models.IsValidValidationRuleType(input.RuleType) {
		return nil, apperrors.ErrInvalidInput
	}
	rule := &models.DataValidationRule{
		ID:          uuid.New(),
		SiteID:      siteID,
		ColumnName:  input.ColumnName,
		RuleType:    input.RuleType,
		Config:      input.Config,
		IsActive:    true,
		Priority:    input.Priority,
		CreatedByID: createdByID,
	}
	if m.validation == nil {
		m.validation = make(map[uuid.UUID]*models.DataValidationRule)
	}
	m.validation[rule.ID] = rule
	return rule, nil
}

func (m *mockRuleService) ListValidationRules(_ context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.DataValidationRule
	for _, rule := range m.validation {
		if rule.SiteID == siteID && (!activeOnly || rule.IsActive) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (m *mockRuleService) SetValidationRuleActive(_ context.Context, siteID, id uuid.UUID, active bool) error {
	rule, ok := m.validation[id]
	if !ok || rule.SiteID != siteID {
		return apperrors.ErrNotFound
	}
	rule.IsActive = active
	return nil
}

func (m *mockRuleService) DeleteValidationRule(_ context.Context, siteID, id uuid.UUID) error {
	rule, ok := m.validation[id]
	if !ok || rule.SiteID != siteID {
		return apperrors.ErrNotFound
	}
	delete(m.validation, id)
	return nil
}

// newTestAuthMiddleware builds an auth middleware that resolves every
// request to the given user.
func newTestAuthMiddleware(user *models.User) *auth.Middleware {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.IdpSubject,
			Issuer:  user.IdpIssuer,
		},
		Email: user.Email,
	}
	return auth.NewMiddleware(&stubAuthService{claims: claims}, &stubUserService{user: user}, zap.NewNop())
}
