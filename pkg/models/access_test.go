package models

import "testing"

func TestIsValidGlobalRole(t *testing.T) {
	for _, role := range ValidGlobalRoles {
		if !IsValidGlobalRole(role) {
			t.Errorf("expected %q to be valid", role)
		}
	}
	if IsValidGlobalRole("root") {
		t.Error("expected \"root\" to be invalid")
	}
	if IsValidGlobalRole("") {
		t.Error("expected empty role to be invalid")
	}
}

func TestIsGloballyPrivileged(t *testing.T) {
	if !IsGloballyPrivileged(GlobalRoleAdmin) || !IsGloballyPrivileged(GlobalRoleSuperUser) {
		t.Error("admin and superuser must be globally privileged")
	}
	if IsGloballyPrivileged(GlobalRoleUser) || IsGloballyPrivileged(GlobalRoleManager) {
		t.Error("user and manager must not be globally privileged")
	}
}

func TestGlobalRoleAtLeast(t *testing.T) {
	if !GlobalRoleAtLeast(GlobalRoleSuperUser, GlobalRoleAdmin) {
		t.Error("superuser must satisfy an admin requirement")
	}
	if !GlobalRoleAtLeast(GlobalRoleManager, GlobalRoleManager) {
		t.Error("a role must satisfy itself")
	}
	if GlobalRoleAtLeast(GlobalRoleUser, GlobalRoleManager) {
		t.Error("user must not satisfy a manager requirement")
	}
	if GlobalRoleAtLeast("root", GlobalRoleUser) {
		t.Error("unknown roles must rank below every valid role")
	}
}

func TestIsValidSiteRole(t *testing.T) {
	for _, role := range ValidSiteRoles {
		if !IsValidSiteRole(role) {
			t.Errorf("expected %q to be valid", role)
		}
	}
	if IsValidSiteRole("admin") {
		t.Error("global role name must not be a valid site role")
	}
}
