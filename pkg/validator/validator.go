package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

var (
	// Email: deliberately permissive shape check, not RFC 5322
	emailRegex = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

	// Username: 3-20 alphanumeric characters and underscores
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	phoneRegex        = regexp.MustCompile(`^[6-9]\d{9}$`)
	pincodeRegex      = regexp.MustCompile(`^\d{6}$`)
	academicYearRegex = regexp.MustCompile(`^\d{4}-\d{4}$`)
)

const (
	adminPasswordMinLength   = 8
	defaultPasswordMinLength = 6
	passwordMaxLength        = 72 // bcrypt ignores input beyond 72 bytes
	adminSpecialChars        = "@$!%*?&"
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateEmail checks if email format is valid
func (v *Validator) ValidateEmail(email string) error {
	if len(email) == 0 || len(email) > 255 {
		return errors.ErrInvalidEmail
	}

	if !emailRegex.MatchString(email) {
		return errors.ErrInvalidEmail
	}

	return nil
}

// ValidateUsername checks if username is valid
func (v *Validator) ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.ErrInvalidUsername
	}
	return nil
}

// ValidatePassword checks password strength. Admin accounts need at least
// one upper case letter, lower case letter, digit and one of @$!%*?&.
func (v *Validator) ValidatePassword(password string, strict bool) error {
	if len(password) > passwordMaxLength {
		return errors.ErrWeakPassword
	}

	if !strict {
		if len(password) < defaultPasswordMinLength {
			return errors.ErrWeakPassword
		}
		return nil
	}

	if len(password) < adminPasswordMinLength {
		return errors.ErrWeakPassword
	}

	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case strings.ContainsRune(adminSpecialChars, char):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasNumber || !hasSpecial {
		return errors.ErrWeakPassword
	}

	return nil
}

// ValidatePhone checks a ten digit Indian mobile number
func (v *Validator) ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return errors.Validation("Please enter a valid Indian phone number")
	}
	return nil
}

// ValidatePincode checks a six digit postal code
func (v *Validator) ValidatePincode(pincode string) error {
	if !pincodeRegex.MatchString(pincode) {
		return errors.Validation("Please enter a valid 6-digit pincode")
	}
	return nil
}

// ValidateAcademicYear checks the YYYY-YYYY format
func (v *Validator) ValidateAcademicYear(year string) error {
	if !academicYearRegex.MatchString(year) {
		return errors.Validation("Academic year must be in format YYYY-YYYY")
	}
	return nil
}

// Required returns a validation error naming the first empty field.
func (v *Validator) Required(fields map[string]string, order ...string) error {
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			return errors.Validation(name + " is required")
		}
	}
	return nil
}

// SanitizeString removes null bytes and surrounding whitespace
func (v *Validator) SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// NormalizeEmail sanitizes and lower-cases an email address
func (v *Validator) NormalizeEmail(email string) string {
	return strings.ToLower(v.SanitizeString(email))
}
