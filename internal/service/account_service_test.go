package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jainuniversity/campus-portal/internal/audit"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

func newAccountService(t *testing.T, f *authFixture) (*AccountService, *audit.Logger) {
	t.Helper()
	auditLogger, err := audit.NewLogger(nil, filepath.Join(t.TempDir(), "audit.log"), false, nil)
	require.NoError(t, err)
	t.Cleanup(func() { auditLogger.Close() })

	svc := NewAccountService(f.store, f.hasher, auditLogger, nil)
	svc.now = func() time.Time { return f.now }
	return svc, auditLogger
}

func studentRequest() models.RegisterRequest {
	return models.RegisterRequest{
		BusinessID: "ADM2026001",
		Username:   "ravi_k",
		FullName:   "Ravi Kumar",
		Email:      "Ravi@Uni.edu",
		Password:   "ravi-pass",
		Profile: models.Profile{
			Personal: models.PersonalInfo{DateOfBirth: time.Date(2006, 3, 1, 0, 0, 0, 0, time.UTC)},
			Contact:  models.ContactInfo{Phone: "9876543210"},
			Address:  models.Address{Pincode: "560001"},
			Academic: &models.AcademicInfo{Course: "BCA", AcademicYear: "2026-2027"},
			Professional: &models.ProfessionalInfo{
				Department: "ignored for students",
			},
		},
	}
}

func TestRegisterStudent(t *testing.T) {
	f := newAuthFixture(t)
	svc, auditLogger := newAccountService(t, f)
	ctx := context.Background()

	account, err := svc.Register(ctx, nil, models.RoleStudent, studentRequest(), false)
	require.NoError(t, err)
	assert.Equal(t, "ravi@uni.edu", account.Email)
	assert.True(t, account.IsActive)
	assert.NotEqual(t, "ravi-pass", account.PasswordHash)
	assert.Equal(t, 20, account.Profile.Personal.Age)
	assert.Equal(t, "India", account.Profile.Address.Country)
	assert.Nil(t, account.Profile.Professional)

	// The new account can sign in straight away.
	_, err = f.service.Login(ctx, login("ravi@uni.edu", "ravi-pass", "student"), "")
	require.NoError(t, err)

	events, err := auditLogger.QueryLogs(audit.QueryFilters{Action: audit.ActionRegisterSuccess})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	t.Run("EmailUniqueAcrossRoles", func(t *testing.T) {
		req := studentRequest()
		req.BusinessID = "T-1"
		req.Username = "ravi_teacher"
		_, err := svc.Register(ctx, nil, models.RoleTeacher, req, false)
		assert.ErrorIs(t, err, errors.ErrAccountExists)
	})
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	svc, _ := newAccountService(t, f)
	ctx := context.Background()

	cases := map[string]func(*models.RegisterRequest){
		"missing username": func(r *models.RegisterRequest) { r.Username = "" },
		"bad email":        func(r *models.RegisterRequest) { r.Email = "ravi" },
		"bad username":     func(r *models.RegisterRequest) { r.Username = "ra" },
		"short password":   func(r *models.RegisterRequest) { r.Password = "abc" },
		"bad phone":        func(r *models.RegisterRequest) { r.Profile.Contact.Phone = "12345" },
		"bad pincode":      func(r *models.RegisterRequest) { r.Profile.Address.Pincode = "5600" },
		"bad year":         func(r *models.RegisterRequest) { r.Profile.Academic.AcademicYear = "2026" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := studentRequest()
			mutate(&req)
			_, err := svc.Register(ctx, nil, models.RoleStudent, req, false)
			require.Error(t, err)
			assert.Equal(t, 400, errors.StatusCode(err))
		})
	}
}

func TestRegisterAdminRequiresAdmin(t *testing.T) {
	f := newAuthFixture(t)
	svc, _ := newAccountService(t, f)
	ctx := context.Background()

	req := models.RegisterRequest{
		BusinessID: "ADM-1",
		Username:   "root_admin",
		FullName:   "Root Admin",
		Email:      "root@uni.edu",
		Password:   "Str0ng!Pass",
		Profile:    models.Profile{Professional: &models.ProfessionalInfo{IsMainAdmin: true}},
	}

	_, err := svc.Register(ctx, nil, models.RoleAdmin, req, false)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = svc.Register(ctx, &models.Principal{ID: "t", Role: models.RoleTeacher}, models.RoleAdmin, req, false)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	weak := req
	weak.Password = "weakpass"
	_, err = svc.Register(ctx, nil, models.RoleAdmin, weak, true)
	assert.ErrorIs(t, err, errors.ErrWeakPassword)

	account, err := svc.Register(ctx, nil, models.RoleAdmin, req, true)
	require.NoError(t, err)
	assert.Equal(t, "full", account.Profile.Professional.AccessLevel)
	assert.Len(t, account.Profile.Professional.Permissions, len(models.AdminPermissions))
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	svc, _ := newAccountService(t, f)
	ctx := context.Background()
	account := f.seed(t, models.RoleTeacher, "t@u.edu", "old-pass")
	principal := account.Principal()

	err := svc.ChangePassword(ctx, principal, models.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "new-pass"})
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, principal, models.ChangePasswordRequest{CurrentPassword: "old-pass", NewPassword: "abc"})
	assert.ErrorIs(t, err, errors.ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, principal, models.ChangePasswordRequest{CurrentPassword: "old-pass", NewPassword: "new-pass"}))

	_, err = f.service.Login(ctx, login("t@u.edu", "old-pass", "teacher"), "")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, login("t@u.edu", "new-pass", "teacher"), "")
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, nil, models.ChangePasswordRequest{}), errors.ErrNotAuthenticated)
}

func TestSetActiveAndUnlock(t *testing.T) {
	f := newAuthFixture(t)
	svc, _ := newAccountService(t, f)
	ctx := context.Background()

	admin := f.seed(t, models.RoleAdmin, "admin@u.edu", "Secret123!").Principal()
	student := f.seed(t, models.RoleStudent, "s@u.edu", "student-pass")

	assert.ErrorIs(t, svc.SetActive(ctx, nil, models.RoleStudent, student.ID, false), errors.ErrNotAuthenticated)
	assert.ErrorIs(t, svc.SetActive(ctx, &models.Principal{Role: models.RoleTeacher}, models.RoleStudent, student.ID, false), errors.ErrForbidden)
	assert.ErrorIs(t, svc.SetActive(ctx, admin, models.RoleStudent, "missing", false), errors.ErrAccountNotFound)
	assert.Error(t, svc.SetActive(ctx, admin, models.RoleAdmin, admin.ID, false))

	require.NoError(t, svc.SetActive(ctx, admin, models.RoleStudent, student.ID, false))
	_, err := f.service.Login(ctx, login("s@u.edu", "student-pass", "student"), "")
	assert.ErrorIs(t, err, errors.ErrAccountDeactivated)
	require.NoError(t, svc.SetActive(ctx, admin, models.RoleStudent, student.ID, true))

	for i := 0; i < 5; i++ {
		_, _ = f.service.Login(ctx, login("s@u.edu", "wrong", "student"), "")
	}
	_, err = f.service.Login(ctx, login("s@u.edu", "student-pass", "student"), "")
	require.ErrorIs(t, err, errors.ErrAccountLocked)

	require.NoError(t, svc.Unlock(ctx, admin, models.RoleStudent, student.ID))
	_, err = f.service.Login(ctx, login("s@u.edu", "student-pass", "student"), "")
	assert.NoError(t, err)
}
