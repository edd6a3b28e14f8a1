package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

func TestValidateEmail(t *testing.T) {
	v := New()

	valid := []string{"a@u.edu", "first.last@campus.ac.in", "user-1@mail.example.com"}
	for _, email := range valid {
		assert.NoError(t, v.ValidateEmail(email), email)
	}

	invalid := []string{"", "plain", "a@b", "a@b.c", "@u.edu", "a@.edu", "a b@u.edu"}
	for _, email := range invalid {
		assert.ErrorIs(t, v.ValidateEmail(email), errors.ErrInvalidEmail, email)
	}
}

func TestValidatePassword(t *testing.T) {
	v := New()

	t.Run("Relaxed", func(t *testing.T) {
		assert.NoError(t, v.ValidatePassword("secret", false))
		assert.ErrorIs(t, v.ValidatePassword("short", false), errors.ErrWeakPassword)
	})

	t.Run("Strict", func(t *testing.T) {
		assert.NoError(t, v.ValidatePassword("Secret123!", true))
		assert.ErrorIs(t, v.ValidatePassword("secret123!", true), errors.ErrWeakPassword)
		assert.ErrorIs(t, v.ValidatePassword("Secret123", true), errors.ErrWeakPassword)
		assert.ErrorIs(t, v.ValidatePassword("Se1!", true), errors.ErrWeakPassword)
		assert.ErrorIs(t, v.ValidatePassword("Secret123#", true), errors.ErrWeakPassword)
	})
}

func TestProfileFieldValidation(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidatePhone("9876543210"))
	assert.ErrorIs(t, v.ValidatePhone("1234567890"), errors.ErrValidation)

	assert.NoError(t, v.ValidatePincode("560001"))
	assert.ErrorIs(t, v.ValidatePincode("5600"), errors.ErrValidation)

	assert.NoError(t, v.ValidateAcademicYear("2024-2028"))
	assert.ErrorIs(t, v.ValidateAcademicYear("2024/28"), errors.ErrValidation)

	assert.NoError(t, v.ValidateUsername("asha_k"))
	assert.ErrorIs(t, v.ValidateUsername("a!"), errors.ErrInvalidUsername)
}

func TestRequired(t *testing.T) {
	v := New()

	err := v.Required(map[string]string{"email": "a@u.edu", "password": " "}, "email", "password")
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Equal(t, "password is required", errors.PublicMessage(err))

	assert.Equal(t, "a@u.edu", v.NormalizeEmail("  A@U.edu\x00 "))
}
