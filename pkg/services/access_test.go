package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

type accessFixture struct {
	userRepo   *mockUserRepo
	accessRepo *mockAccessRepo
	siteRepo   *mockSiteRepo
	svc        AccessService
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()
	f := &accessFixture{
		userRepo:   &mockUserRepo{},
		accessRepo: &mockAccessRepo{},
		siteRepo:   &mockSiteRepo{},
	}
	f.svc = NewAccessService(f.userRepo, f.accessRepo, f.siteRepo, nil, zap.NewNop())
	return f
}

func (f *accessFixture) addUser(t *testing.T, role string) *models.User {
	t.Helper()
	user := &models.User{Email: "u@example.com", Role: role}
	require.NoError(t, f.userRepo.Create(context.Background(), user))
	return user
}

func (f *accessFixture) addSite(t *testing.T) *models.Site {
	t.Helper()
	site := &models.Site{Name: "Plant A", Status: models.SiteStatusActive}
	require.NoError(t, f.siteRepo.Create(context.Background(), site))
	return site
}

func (f *accessFixture) grant(t *testing.T, user *models.User, site *models.Site, role string) {
	t.Helper()
	require.NoError(t, f.svc.GrantSiteAccess(context.Background(), user.ID, site.ID, role))
}

func TestAccess_HasSiteAccess_WithGrant(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)
	f.grant(t, user, site, models.SiteRoleViewer)

	ok, err := f.svc.HasSiteAccess(context.Background(), user.ID, site.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccess_HasSiteAccess_NoGrant(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)

	ok, err := f.svc.HasSiteAccess(context.Background(), user.ID, site.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccess_AdminBypassesGrants(t *testing.T) {
	f := newAccessFixture(t)
	site := f.addSite(t)

	for _, role := range []string{models.GlobalRoleAdmin, models.GlobalRoleSuperUser} {
		user := f.addUser(t, role)
		ok, err := f.svc.HasSiteAccess(context.Background(), user.ID, site.ID)
		require.NoError(t, err)
		assert.True(t, ok, role)

		ok, err = f.svc.HasSiteRole(context.Background(), user.ID, site.ID, []string{models.SiteRoleOwner})
		require.NoError(t, err)
		assert.True(t, ok, role)
	}
}

func TestAccess_ManagerDoesNotBypass(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleManager)
	site := f.addSite(t)

	ok, err := f.svc.HasSiteAccess(context.Background(), user.ID, site.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccess_UnknownUserDenied(t *testing.T) {
	f := newAccessFixture(t)
	site := f.addSite(t)

	ok, err := f.svc.HasSiteAccess(context.Background(), uuid.New(), site.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccess_GetUserSiteRole_IgnoresGlobalRole(t *testing.T) {
	f := newAccessFixture(t)
	admin := f.addUser(t, models.GlobalRoleAdmin)
	site := f.addSite(t)

	role, found, err := f.svc.GetUserSiteRole(context.Background(), admin.ID, site.ID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, role)
}

func TestAccess_HasSiteRole_ExactMembership(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)
	f.grant(t, user, site, models.SiteRoleOwner)

	// Site roles are a membership check, not a hierarchy: owner does not
	// imply operator.
	ok, err := f.svc.HasSiteRole(context.Background(), user.ID, site.ID, []string{models.SiteRoleOperator})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.HasSiteRole(context.Background(), user.ID, site.ID, []string{models.SiteRoleOwner, models.SiteRoleSiteAdmin})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccess_GrantUpdatesExistingRole(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)
	f.grant(t, user, site, models.SiteRoleViewer)
	f.grant(t, user, site, models.SiteRoleOperator)

	role, found, err := f.svc.GetUserSiteRole(context.Background(), user.ID, site.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.SiteRoleOperator, role)
	assert.Len(t, f.accessRepo.grants, 1)
}

func TestAccess_GrantRejectsInvalidRole(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)

	err := f.svc.GrantSiteAccess(context.Background(), user.ID, site.ID, "janitor")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRole))
}

func TestAccess_GrantRejectsMissingSite(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)

	err := f.svc.GrantSiteAccess(context.Background(), user.ID, uuid.New(), models.SiteRoleViewer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAccess_RevokeRemovesGrant(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)
	f.grant(t, user, site, models.SiteRoleViewer)

	require.NoError(t, f.svc.RevokeSiteAccess(context.Background(), user.ID, site.ID))

	ok, err := f.svc.HasSiteAccess(context.Background(), user.ID, site.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccess_RevokeMissingGrantIsNoop(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	site := f.addSite(t)

	require.NoError(t, f.svc.RevokeSiteAccess(context.Background(), user.ID, site.ID))
}

func TestAccess_AccessibleSiteIDs(t *testing.T) {
	f := newAccessFixture(t)
	user := f.addUser(t, models.GlobalRoleUser)
	siteA := f.addSite(t)
	siteB := f.addSite(t)
	f.addSite(t)
	f.grant(t, user, siteA, models.SiteRoleViewer)
	f.grant(t, user, siteB, models.SiteRoleOwner)

	ids, err := f.svc.GetUserAccessibleSiteIDs(context.Background(), user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{siteA.ID, siteB.ID}, ids)
}

func TestAccess_AccessibleSiteIDs_PrivilegedSeesAll(t *testing.T) {
	f := newAccessFixture(t)
	admin := f.addUser(t, models.GlobalRoleAdmin)
	siteA := f.addSite(t)
	siteB := f.addSite(t)

	ids, err := f.svc.GetUserAccessibleSiteIDs(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{siteA.ID, siteB.ID}, ids)
}
