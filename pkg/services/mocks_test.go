package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// In-memory repository fakes shared by the service tests. Each mirrors the
// real repository's not-found behavior: a wrapped apperrors.ErrNotFound.

type mockUserRepo struct {
	users []*models.User

	createErr error
	getErr    error
	updateErr error

	// createConflict simulates losing a first-login provisioning race:
	// Create reports ErrConflict after storing the winner's row.
	createConflict *models.User
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.createConflict != nil {
		m.users = append(m.users, m.createConflict)
		m.createConflict = nil
		return fmt.Errorf("user with identity already exists: %w", apperrors.ErrConflict)
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users = append(m.users, user)
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

func (m *mockUserRepo) GetByIdentity(_ context.Context, subject, issuer string) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.IdpSubject == subject && u.IdpIssuer == issuer {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, email string, name *string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, u := range m.users {
		if u.ID == id {
			u.Email = email
			u.Name = name
			return nil
		}
	}
	return fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

func (m *mockUserRepo) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	for _, u := range m.users {
		if u.ID == id {
			now := time.Now()
			u.LastLogin = &now
			return nil
		}
	}
	return fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, u := range m.users {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

func (m *mockUserRepo) List(_ context.Context) ([]*models.User, error) {
	return m.users, nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("user: %w", apperrors.ErrNotFound)
}

type mockAccessRepo struct {
	grants []*models.UserSiteAccess

	getErr    error
	upsertErr error
}

func (m *mockAccessRepo) Get(_ context.Context, userID, siteID uuid.UUID) (*models.UserSiteAccess, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, g := range m.grants {
		if g.UserID == userID && g.SiteID == siteID {
			return g, nil
		}
	}
	return nil, fmt.Errorf("site access: %w", apperrors.ErrNotFound)
}

func (m *mockAccessRepo) Upsert(_ context.Context, access *models.UserSiteAccess) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, g := range m.grants {
		if g.UserID == access.UserID && g.SiteID == access.SiteID {
			g.Role = access.Role
			return nil
		}
	}
	access.CreatedAt = time.Now()
	m.grants = append(m.grants, access)
	return nil
}

func (m *mockAccessRepo) Delete(_ context.Context, userID, siteID uuid.UUID) error {
	for i, g := range m.grants {
		if g.UserID == userID && g.SiteID == siteID {
			m.grants = append(m.grants[:i], m.grants[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockAccessRepo) ListSiteIDsForUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, g := range m.grants {
		if g.UserID == userID {
			ids = append(ids, g.SiteID)
		}
	}
	return ids, nil
}

func (m *mockAccessRepo) ListForSite(_ context.Context, siteID uuid.UUID) ([]*models.UserSiteAccess, error) {
	var out []*models.UserSiteAccess
	for _, g := range m.grants {
		if g.SiteID == siteID {
			out = append(out, g)
		}
	}
	return out, nil
}

type mockSiteRepo struct {
	sites []*models.Site

	getErr    error
	updateErr error
}

func (m *mockSiteRepo) Create(_ context.Context, site *models.Site) error {
	site.ID = uuid.New()
	site.CreatedAt = time.Now()
	site.UpdatedAt = site.CreatedAt
	m.sites = append(m.sites, site)
	return nil
}

func (m *mockSiteRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Site, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, s := range m.sites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("site: %w", apperrors.ErrNotFound)
}

func (m *mockSiteRepo) Update(_ context.Context, site *models.Site) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for i, s := range m.sites {
		if s.ID == site.ID {
			m.sites[i] = site
			return nil
		}
	}
	return fmt.Errorf("site: %w", apperrors.ErrNotFound)
}

func (m *mockSiteRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, s := range m.sites {
		if s.ID == id {
			m.sites = append(m.sites[:i], m.sites[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("site: %w", apperrors.ErrNotFound)
}

func (m *mockSiteRepo) ListByCompany(_ context.Context, companyID uuid.UUID) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range m.sites {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSiteRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Site, error) {
	var out []*models.Site
	for _, s := range m.sites {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *mockSiteRepo) ListAll(_ context.Context) ([]*models.Site, error) {
	return m.sites, nil
}

func (m *mockSiteRepo) ListAllIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(m.sites))
	for _, s := range m.sites {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (m *mockSiteRepo) SetCurrentSchema(_ context.Context, siteID uuid.UUID, schemaID *uuid.UUID) error {
	for _, s := range m.sites {
		if s.ID == siteID {
			s.CurrentSchemaVersionID = schemaID
			return nil
		}
	}
	return fmt.Errorf("site: %w", apperrors.ErrNotFound)
}

type mockSchemaRepo struct {
	schemas []*models.SiteDataSchema

	getErr error
}

func (m *mockSchemaRepo) Create(_ context.Context, schema *models.SiteDataSchema) error {
	schema.ID = uuid.New()
	schema.CreatedAt = time.Now()
	m.schemas = append(m.schemas, schema)
	return nil
}

func (m *mockSchemaRepo) GetByID(_ context.Context, id uuid.UUID) (*models.SiteDataSchema, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, s := range m.schemas {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("schema version: %w", apperrors.ErrNotFound)
}

func (m *mockSchemaRepo) ListBySite(_ context.Context, siteID uuid.UUID) ([]*models.SiteDataSchema, error) {
	var out []*models.SiteDataSchema
	for _, s := range m.schemas {
		if s.SiteID == siteID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSchemaRepo) LatestVersionNumber(_ context.Context, siteID uuid.UUID) (int, error) {
	latest := 0
	for _, s := range m.schemas {
		if s.SiteID == siteID && s.VersionNumber > latest {
			latest = s.VersionNumber
		}
	}
	return latest, nil
}

type mockUploadRepo struct {
	uploads []*models.Upload

	createErr error
	updateErr error
}

func (m *mockUploadRepo) Create(_ context.Context, upload *models.Upload) error {
	if m.createErr != nil {
		return m.createErr
	}
	upload.ID = uuid.New()
	upload.UploadedAt = time.Now()
	if upload.ValidationStatus == "" {
		upload.ValidationStatus = models.UploadStatusPending
	}
	m.uploads = append(m.uploads, upload)
	return nil
}

func (m *mockUploadRepo) Update(_ context.Context, upload *models.Upload) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for i, u := range m.uploads {
		if u.ID == upload.ID {
			m.uploads[i] = upload
			return nil
		}
	}
	return fmt.Errorf("upload: %w", apperrors.ErrNotFound)
}

func (m *mockUploadRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Upload, error) {
	for _, u := range m.uploads {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("upload: %w", apperrors.ErrNotFound)
}

func (m *mockUploadRepo) ListBySite(_ context.Context, siteID uuid.UUID, limit int) ([]*models.Upload, error) {
	var out []*models.Upload
	for _, u := range m.uploads {
		if u.SiteID == siteID {
			out = append(out, u)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// mockDataRowRepo keys rows by UTC day. insertDenied simulates losing an
// insert race: the first insert for each denied date reports no row written.
type mockDataRowRepo struct {
	rows         map[time.Time]*models.DataRow
	insertDenied map[time.Time]bool

	insertErr error
	updateErr error
}

func newMockDataRowRepo() *mockDataRowRepo {
	return &mockDataRowRepo{
		rows:         make(map[time.Time]*models.DataRow),
		insertDenied: make(map[time.Time]bool),
	}
}

func (m *mockDataRowRepo) ExistingDates(_ context.Context, siteID uuid.UUID, dates []time.Time) (map[time.Time]bool, error) {
	out := make(map[time.Time]bool)
	for _, d := range dates {
		if row, ok := m.rows[d]; ok && row.SiteID == siteID {
			out[d] = true
		}
	}
	return out, nil
}

func (m *mockDataRowRepo) Insert(_ context.Context, row *models.DataRow) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.insertDenied[row.Date] {
		delete(m.insertDenied, row.Date)
		m.rows[row.Date] = &models.DataRow{SiteID: row.SiteID, Date: row.Date}
		return false, nil
	}
	if _, ok := m.rows[row.Date]; ok {
		return false, nil
	}
	row.ID = uuid.New()
	row.CreatedAt = time.Now()
	m.rows[row.Date] = row
	return true, nil
}

func (m *mockDataRowRepo) UpdateBySiteDate(_ context.Context, siteID uuid.UUID, date time.Time, data models.SensorData, schemaVersionID *uuid.UUID) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	row, ok := m.rows[date]
	if !ok || row.SiteID != siteID {
		return fmt.Errorf("data row: %w", apperrors.ErrNotFound)
	}
	row.SensorData = data
	row.SchemaVersionID = schemaVersionID
	return nil
}

func (m *mockDataRowRepo) GetBySiteDate(_ context.Context, siteID uuid.UUID, date time.Time) (*models.DataRow, error) {
	row, ok := m.rows[date]
	if !ok || row.SiteID != siteID {
		return nil, fmt.Errorf("data row: %w", apperrors.ErrNotFound)
	}
	return row, nil
}

func (m *mockDataRowRepo) ListBySiteRange(_ context.Context, siteID uuid.UUID, from, to time.Time) ([]*models.DataRow, error) {
	var out []*models.DataRow
	for _, row := range m.rows {
		if row.SiteID == siteID && !row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockDataRowRepo) CountBySite(_ context.Context, siteID uuid.UUID) (int, error) {
	n := 0
	for _, row := range m.rows {
		if row.SiteID == siteID {
			n++
		}
	}
	return n, nil
}

type mockModelRepo struct {
	models []*models.ModelVersion

	getActiveErr error
}

func (m *mockModelRepo) Create(_ context.Context, model *models.ModelVersion) error {
	model.ID = uuid.New()
	m.models = append(m.models, model)
	return nil
}

func (m *mockModelRepo) GetActiveForSite(_ context.Context, siteID uuid.UUID) (*models.ModelVersion, error) {
	if m.getActiveErr != nil {
		return nil, m.getActiveErr
	}
	var best *models.ModelVersion
	for _, mv := range m.models {
		if mv.SiteID == siteID && mv.IsActive {
			if best == nil || mv.VersionNumber > best.VersionNumber {
				best = mv
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("active model: %w", apperrors.ErrNotFound)
	}
	return best, nil
}

func (m *mockModelRepo) ListBySite(_ context.Context, siteID uuid.UUID) ([]*models.ModelVersion, error) {
	var out []*models.ModelVersion
	for _, mv := range m.models {
		if mv.SiteID == siteID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *mockModelRepo) SetActive(_ context.Context, siteID, modelID uuid.UUID) error {
	for _, mv := range m.models {
		if mv.SiteID == siteID {
			mv.IsActive = mv.ID == modelID
		}
	}
	return nil
}

type mockInferenceRepo struct {
	requests []*models.InferenceRequest

	createErr error
}

func (m *mockInferenceRepo) Create(_ context.Context, req *models.InferenceRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	req.ID = uuid.New()
	req.RequestedAt = time.Now()
	if req.Status == "" {
		req.Status = models.InferenceStatusPending
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockInferenceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.InferenceRequest, error) {
	for _, r := range m.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("inference request: %w", apperrors.ErrNotFound)
}

func (m *mockInferenceRepo) ListBySite(_ context.Context, siteID uuid.UUID, limit int) ([]*models.InferenceRequest, error) {
	var out []*models.InferenceRequest
	for _, r := range m.requests {
		if r.SiteID == siteID {
			out = append(out, r)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockTrainingJobRepo struct {
	jobs []*models.TrainingJob
}

func (m *mockTrainingJobRepo) Create(_ context.Context, job *models.TrainingJob) error {
	job.ID = uuid.New()
	job.ScheduledAt = time.Now()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockTrainingJobRepo) GetByID(_ context.Context, id uuid.UUID) (*models.TrainingJob, error) {
	for _, j := range m.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, fmt.Errorf("training job: %w", apperrors.ErrNotFound)
}

func (m *mockTrainingJobRepo) ListBySite(_ context.Context, siteID uuid.UUID, limit int) ([]*models.TrainingJob, error) {
	var out []*models.TrainingJob
	for _, j := range m.jobs {
		if j.SiteID == siteID {
			out = append(out, j)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockCompanyRepo struct {
	companies []*models.Company
}

func (m *mockCompanyRepo) Create(_ context.Context, company *models.Company) error {
	company.ID = uuid.New()
	company.CreatedAt = time.Now()
	company.UpdatedAt = company.CreatedAt
	m.companies = append(m.companies, company)
	return nil
}

func (m *mockCompanyRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	for _, c := range m.companies {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("company: %w", apperrors.ErrNotFound)
}

func (m *mockCompanyRepo) List(_ context.Context) ([]*models.Company, error) {
	return m.companies, nil
}

func (m *mockCompanyRepo) Update(_ context.Context, company *models.Company) error {
	for i, c := range m.companies {
		if c.ID == company.ID {
			m.companies[i] = company
			return nil
		}
	}
	return fmt.Errorf("company: %w", apperrors.ErrNotFound)
}

// stubValidator returns canned validation output.
type stubValidator struct {
	warnings []ValidationIssue
	errs     []ValidationIssue
	err      error
}

func (s *stubValidator) Validate(_ context.Context, _ *models.Site, _ []RowInput) ([]ValidationIssue, []ValidationIssue, error) {
	return s.warnings, s.errs, s.err
}

type mockDashboardRepo struct {
	dashboards []*models.Dashboard

	createErr error
	touchErr  error
	touched   []uuid.UUID
}

func (m *mockDashboardRepo) Create(_ context.Context, dashboard *models.Dashboard) error {
	if m.createErr != nil {
		return m.createErr
	}
	dashboard.ID = uuid.New()
	dashboard.CreatedAt = time.Now()
	dashboard.UpdatedAt = dashboard.CreatedAt
	m.dashboards = append(m.dashboards, dashboard)
	return nil
}

func (m *mockDashboardRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dashboard, error) {
	for _, d := range m.dashboards {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
}

func (m *mockDashboardRepo) Update(_ context.Context, dashboard *models.Dashboard) error {
	for i, d := range m.dashboards {
		if d.ID == dashboard.ID {
			m.dashboards[i] = dashboard
			return nil
		}
	}
	return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
}

func (m *mockDashboardRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, d := range m.dashboards {
		if d.ID == id {
			m.dashboards = append(m.dashboards[:i], m.dashboards[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
}

func (m *mockDashboardRepo) ListBySite(_ context.Context, siteID uuid.UUID) ([]*models.Dashboard, error) {
	var out []*models.Dashboard
	for _, d := range m.dashboards {
		if d.SiteID == siteID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDashboardRepo) TouchLastViewed(_ context.Context, id uuid.UUID) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touched = append(m.touched, id)
	for _, d := range m.dashboards {
		if d.ID == id {
			now := time.Now()
			d.LastViewedAt = &now
			return nil
		}
	}
	return fmt.Errorf("dashboard: %w", apperrors.ErrNotFound)
}

type mockCleaningRuleRepo struct {
	rules []*models.DataCleaningRule

	createErr error
}

func (m *mockCleaningRuleRepo) Create(_ context.Context, rule *models.DataCleaningRule) error {
	if m.createErr != nil {
		return m.createErr
	}
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	m.rules = append(m.rules, rule)
	return nil
}

func (m *mockCleaningRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.DataCleaningRule, error) {
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
}

func (m *mockCleaningRuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
}

func (m *mockCleaningRuleRepo) ListBySite(_ context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataCleaningRule, error) {
	var out []*models.DataCleaningRule
	for _, r := range m.rules {
		if r.SiteID == siteID && (!activeOnly || r.IsActive) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockCleaningRuleRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	for _, r := range m.rules {
		if r.ID == id {
			r.IsActive = active
			return nil
		}
	}
	return fmt.Errorf("cleaning rule: %w", apperrors.ErrNotFound)
}

type mockValidationRuleRepo struct {
	rules []*models.DataValidationRule

	createErr error
}

func (m *mockValidationRuleRepo) Create(_ context.Context, rule *models.DataValidationRule) error {
	if m.createErr != nil {
		return m.createErr
	}
	rule.ID = uuid.New()
	rule.CreatedAt = time.Now()
	m.rules = append(m.rules, rule)
	return nil
}

func (m *mockValidationRuleRepo) GetByID(_ context.Context, id uuid.UUID) (*models.DataValidationRule, error) {
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
}

func (m *mockValidationRuleRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
}

func (m *mockValidationRuleRepo) ListBySite(_ context.Context, siteID uuid.UUID, activeOnly bool) ([]*models.DataValidationRule, error) {
	var out []*models.DataValidationRule
	for _, r := range m.rules {
		if r.SiteID == siteID && (!activeOnly || r.IsActive) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockValidationRuleRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	for _, r := range m.rules {
		if r.ID == id {
			r.IsActive = active
			return nil
		}
	}
	return fmt.Errorf("validation rule: %w", apperrors.ErrNotFound)
}
