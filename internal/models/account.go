package models

import (
	"strings"
	"time"
)

// Role discriminates the three account collections.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Roles lists every role in a stable order.
var Roles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// ParseRole maps a submitted role name onto a Role.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	return role, role.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Lockout is the failed-login state carried by every account.
type Lockout struct {
	LoginAttempts int        `json:"loginAttempts" bson:"loginAttempts"`
	AccountLocked bool       `json:"accountLocked" bson:"accountLocked"`
	LockedUntil   *time.Time `json:"lockedUntil,omitempty" bson:"lockedUntil,omitempty"`
}

// Account is the role-independent view of a student, teacher or admin record.
type Account struct {
	ID                string     `json:"id" bson:"_id"`
	Role              Role       `json:"role" bson:"role"`
	BusinessID        string     `json:"businessId" bson:"businessId"`
	Username          string     `json:"username" bson:"username"`
	FullName          string     `json:"fullName" bson:"fullName"`
	Email             string     `json:"email" bson:"email"`
	PasswordHash      string     `json:"-" bson:"password"`
	PasswordChangedAt time.Time  `json:"passwordChangedAt" bson:"passwordChangedAt"`
	IsActive          bool       `json:"isActive" bson:"isActive"`
	LastLogin         *time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`
	Lockout           Lockout    `json:"-" bson:"systemAccess"`
	Profile           Profile    `json:"profile" bson:"profile"`
	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Principal returns the normalized identity handed to protected handlers.
func (a *Account) Principal() *Principal {
	return &Principal{
		ID:    a.ID,
		Email: a.Email,
		Role:  a.Role,
		Name:  a.FullName,
	}
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginResult carries the issued session token alongside the principal.
type LoginResult struct {
	Principal *Principal
	Token     string
	ExpiresAt time.Time
}

type RegisterRequest struct {
	BusinessID string  `json:"businessId"`
	Username   string  `json:"username"`
	FullName   string  `json:"fullName"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Profile    Profile `json:"profile"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type StatusRequest struct {
	IsActive *bool `json:"isActive"`
}
