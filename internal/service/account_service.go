package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/internal/audit"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/repository"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/pkg/errors"
	"github.com/jainuniversity/campus-portal/pkg/validator"
)

// AccountService manages the account lifecycle around authentication:
// registration, password changes and administrative status changes.
type AccountService struct {
	store       repository.AccountStore
	hasher      *security.PasswordHasher
	validator   *validator.Validator
	auditLogger *audit.Logger
	log         *zap.Logger
	now         func() time.Time
}

// NewAccountService creates a new account service. auditLogger may be nil.
func NewAccountService(store repository.AccountStore, hasher *security.PasswordHasher, auditLogger *audit.Logger, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		store:       store,
		hasher:      hasher,
		validator:   validator.New(),
		auditLogger: auditLogger,
		log:         log.Named("account"),
		now:         time.Now,
	}
}

// Register creates an account of role. Students and teachers may register
// themselves; admin accounts can only be created by another admin or by the
// operator tooling, which passes a nil actor and trusted=true.
func (s *AccountService) Register(ctx context.Context, actor *models.Principal, role models.Role, req models.RegisterRequest, trusted bool) (*models.Account, error) {
	if !role.Valid() {
		return nil, errors.Validation("Invalid role")
	}
	if role == models.RoleAdmin && !trusted && (actor == nil || actor.Role != models.RoleAdmin) {
		return nil, errors.ErrForbidden
	}

	req.BusinessID = s.validator.SanitizeString(req.BusinessID)
	req.Username = s.validator.SanitizeString(req.Username)
	req.FullName = s.validator.SanitizeString(req.FullName)
	req.Email = s.validator.NormalizeEmail(req.Email)

	if err := s.validator.Required(map[string]string{
		"businessId": req.BusinessID,
		"username":   req.Username,
		"fullName":   req.FullName,
		"email":      req.Email,
		"password":   req.Password,
	}, "businessId", "username", "fullName", "email", "password"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePassword(req.Password, role == models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validateProfile(role, &req.Profile); err != nil {
		return nil, err
	}

	taken, err := s.store.EmailTaken(ctx, req.Email)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if taken {
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			Role:     role.String(),
			Action:   audit.ActionRegisterDuplicate,
			Resource: "account",
		})
		return nil, errors.ErrAccountExists
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to hash password: %w", err))
	}

	now := s.now().UTC()
	profile := req.Profile
	profile.Normalize(role, now)

	account := &models.Account{
		ID:                uuid.NewString(),
		Role:              role,
		BusinessID:        req.BusinessID,
		Username:          req.Username,
		FullName:          req.FullName,
		Email:             req.Email,
		PasswordHash:      hash,
		PasswordChangedAt: now,
		IsActive:          true,
		Profile:           profile,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Create(ctx, account); err != nil {
		if stderrors.Is(err, errors.ErrAccountExists) {
			return nil, err
		}
		return nil, errors.Internal(fmt.Errorf("failed to create account: %w", err))
	}

	event := &audit.Event{
		Level:    audit.LevelInfo,
		UserID:   account.ID,
		Role:     role.String(),
		Action:   audit.ActionRegisterSuccess,
		Resource: "account",
		Success:  true,
	}
	if actor != nil {
		event.Metadata = "created by " + actor.ID
	}
	s.audit(event)

	return account, nil
}

func (s *AccountService) validateProfile(role models.Role, p *models.Profile) error {
	if p.Contact.Phone != "" {
		if err := s.validator.ValidatePhone(p.Contact.Phone); err != nil {
			return err
		}
	}
	if p.Contact.EmergencyContact != "" {
		if err := s.validator.ValidatePhone(p.Contact.EmergencyContact); err != nil {
			return err
		}
	}
	if p.Address.Pincode != "" {
		if err := s.validator.ValidatePincode(p.Address.Pincode); err != nil {
			return err
		}
	}
	if role == models.RoleStudent && p.Academic != nil && p.Academic.AcademicYear != "" {
		if err := s.validator.ValidateAcademicYear(p.Academic.AcademicYear); err != nil {
			return err
		}
	}
	if role == models.RoleStudent && p.Parent != nil && p.Parent.ParentPhone != "" {
		if err := s.validator.ValidatePhone(p.Parent.ParentPhone); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword replaces the principal's password after re-verifying the
// current one. Existing tokens stay valid until they expire.
func (s *AccountService) ChangePassword(ctx context.Context, principal *models.Principal, req models.ChangePasswordRequest) error {
	if principal == nil {
		return errors.ErrNotAuthenticated
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return errors.Validation("Current and new password are required")
	}
	if err := s.validator.ValidatePassword(req.NewPassword, principal.Role == models.RoleAdmin); err != nil {
		return err
	}

	account, err := s.store.FindByID(ctx, principal.Role, principal.ID)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return errors.ErrNotAuthenticated
		}
		return errors.Internal(err)
	}

	valid, err := s.hasher.Verify(ctx, req.CurrentPassword, account.PasswordHash)
	if err != nil {
		s.log.Error("password verification failed", zap.String("user_id", account.ID), zap.Error(err))
		valid = false
	}
	if !valid {
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			UserID:   account.ID,
			Role:     account.Role.String(),
			Action:   audit.ActionPasswordChangeFailed,
			Resource: "account",
		})
		return errors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return errors.Internal(fmt.Errorf("failed to hash password: %w", err))
	}
	if err := s.store.UpdatePassword(ctx, account.Role, account.ID, hash, s.now().UTC()); err != nil {
		return errors.Internal(err)
	}

	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   account.ID,
		Role:     account.Role.String(),
		Action:   audit.ActionPasswordChanged,
		Resource: "account",
		Success:  true,
	})
	return nil
}

// SetActive activates or deactivates an account. Deactivation takes effect
// on the account's next request because sessions re-resolve the account.
func (s *AccountService) SetActive(ctx context.Context, actor *models.Principal, role models.Role, id string, active bool) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if !role.Valid() {
		return errors.Validation("Invalid role")
	}
	if !active && role == models.RoleAdmin && actor.ID == id {
		return errors.Validation("Admins cannot deactivate their own account")
	}

	if err := s.store.SetActive(ctx, role, id, active); err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return err
		}
		return errors.Internal(err)
	}

	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   id,
		Role:     role.String(),
		Action:   audit.ActionAccountStatus,
		Resource: "account",
		Success:  true,
		Metadata: fmt.Sprintf("active=%t by %s", active, actor.ID),
	})
	return nil
}

// Unlock clears an account's failed-login counter and lock.
func (s *AccountService) Unlock(ctx context.Context, actor *models.Principal, role models.Role, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if !role.Valid() {
		return errors.Validation("Invalid role")
	}

	if err := s.store.ResetLockout(ctx, role, id); err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return err
		}
		return errors.Internal(err)
	}

	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   id,
		Role:     role.String(),
		Action:   audit.ActionAccountUnlocked,
		Resource: "account",
		Success:  true,
		Metadata: "by " + actor.ID,
	})
	return nil
}

func requireAdmin(actor *models.Principal) error {
	if actor == nil {
		return errors.ErrNotAuthenticated
	}
	if actor.Role != models.RoleAdmin {
		return errors.ErrForbidden
	}
	return nil
}

func (s *AccountService) audit(event *audit.Event) {
	if s.auditLogger == nil {
		return
	}
	if err := s.auditLogger.Log(event); err != nil {
		s.log.Warn("failed to record audit event", zap.String("action", event.Action), zap.Error(err))
	}
}
