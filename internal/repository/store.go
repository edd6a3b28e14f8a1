package repository

import (
	"context"
	"time"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// AccountStore persists student, teacher and admin accounts. Every method
// except EmailTaken touches exactly one role's collection.
type AccountStore interface {
	FindByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error)
	FindByID(ctx context.Context, role models.Role, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	EmailTaken(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, role models.Role, id string, at time.Time) error

	// RecordFailedLogin increments the attempt counter and locks the account
	// until now+lockFor once the counter reaches threshold. The increment
	// happens in the store so concurrent failures are never lost.
	RecordFailedLogin(ctx context.Context, role models.Role, id string, threshold int, lockFor time.Duration, now time.Time) (models.Lockout, error)
	ResetLockout(ctx context.Context, role models.Role, id string) error
	SetActive(ctx context.Context, role models.Role, id string, active bool) error
	UpdatePassword(ctx context.Context, role models.Role, id, hash string, at time.Time) error
	Ping(ctx context.Context) error
}

var collections = map[models.Role]string{
	models.RoleStudent: "students",
	models.RoleTeacher: "teachers",
	models.RoleAdmin:   "admins",
}

// collectionFor resolves the table or collection holding accounts of role.
func collectionFor(role models.Role) (string, error) {
	name, ok := collections[role]
	if !ok {
		return "", errors.ErrInvalidRole
	}
	return name, nil
}
