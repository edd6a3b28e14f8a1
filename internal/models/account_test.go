package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("dean")
	assert.False(t, ok)
}

func TestProfileNormalize(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	t.Run("MainAdminGetsFullAccess", func(t *testing.T) {
		p := Profile{
			Personal: PersonalInfo{DateOfBirth: time.Date(1980, 11, 1, 0, 0, 0, 0, time.UTC)},
			Academic: &AcademicInfo{Course: "MBA"},
			Professional: &ProfessionalInfo{
				IsMainAdmin: true,
				ReportingTo: "nobody",
				JoiningDate: time.Date(2020, 10, 15, 0, 0, 0, 0, time.UTC),
			},
		}
		p.Normalize(RoleAdmin, now)

		assert.Equal(t, 45, p.Personal.Age)
		assert.Equal(t, 6, p.Professional.Experience)
		assert.Equal(t, "full", p.Professional.AccessLevel)
		assert.Equal(t, AdminPermissions, p.Professional.Permissions)
		assert.Empty(t, p.Professional.ReportingTo)
		assert.Nil(t, p.Academic)
		assert.Equal(t, "India", p.Address.Country)
	})

	t.Run("StudentDropsProfessional", func(t *testing.T) {
		p := Profile{Professional: &ProfessionalInfo{Department: "IT"}}
		p.Normalize(RoleStudent, now)
		assert.Nil(t, p.Professional)
	})
}

func TestAccountPrincipal(t *testing.T) {
	acc := &Account{ID: "id-1", Email: "a@u.edu", Role: RoleTeacher, FullName: "Asha K"}
	assert.Equal(t, &Principal{ID: "id-1", Email: "a@u.edu", Role: RoleTeacher, Name: "Asha K"}, acc.Principal())
}
