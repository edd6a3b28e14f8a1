package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/internal/audit"
	"github.com/jainuniversity/campus-portal/internal/metrics"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/ratelimit"
	"github.com/jainuniversity/campus-portal/internal/repository"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/pkg/errors"
	"github.com/jainuniversity/campus-portal/pkg/validator"
)

const (
	msgLoginFieldsRequired = "Email, password, and role are required"
	msgInvalidEmail        = "Please provide a valid email address"
)

type AuthService struct {
	store       repository.AccountStore
	hasher      *security.PasswordHasher
	tokens      *security.TokenService
	policy      security.LockoutPolicy
	validator   *validator.Validator
	rateLimiter ratelimit.Limiter
	auditLogger *audit.Logger
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewAuthService creates a new authentication service. rateLimiter,
// auditLogger and m may be nil.
func NewAuthService(
	store repository.AccountStore,
	hasher *security.PasswordHasher,
	tokens *security.TokenService,
	policy security.LockoutPolicy,
	rateLimiter ratelimit.Limiter,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		policy:      policy,
		validator:   validator.New(),
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
		metrics:     m,
		log:         log.Named("auth"),
		now:         time.Now,
	}
}

// Login authenticates email and password against the collection selected by
// role and issues a session token. Unknown accounts, wrong passwords, locked
// accounts and unknown roles all fail with the same client-facing message.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, clientIP string) (*models.LoginResult, error) {
	result, err := s.login(ctx, req, clientIP)
	if err != nil && stderrors.Is(err, errors.ErrInternal) {
		s.recordAttempt(req.Role, metrics.OutcomeError)
	}
	return result, err
}

func (s *AuthService) login(ctx context.Context, req models.LoginRequest, clientIP string) (*models.LoginResult, error) {
	email := s.validator.NormalizeEmail(req.Email)
	roleName := strings.TrimSpace(req.Role)

	if email == "" || req.Password == "" || roleName == "" {
		return nil, errors.Validation(msgLoginFieldsRequired)
	}
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, errors.Validation(msgInvalidEmail)
	}

	role, ok := models.ParseRole(roleName)
	if !ok {
		s.hasher.DummyVerify(ctx, req.Password)
		s.recordAttempt(roleName, metrics.OutcomeInvalid)
		s.audit(&audit.Event{
			Level:     audit.LevelWarning,
			Action:    audit.ActionLoginUserNotFound,
			Resource:  "auth",
			IPAddress: clientIP,
			Metadata:  "unknown role",
		})
		return nil, errors.ErrInvalidRole
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckLimit(ctx, fmt.Sprintf("login:%s:%s", role, email)); err != nil {
			if !stderrors.Is(err, errors.ErrRateLimitExceeded) {
				return nil, errors.Internal(err)
			}
			s.recordAttempt(role.String(), metrics.OutcomeRateLimited)
			s.audit(&audit.Event{
				Level:     audit.LevelWarning,
				Role:      role.String(),
				Action:    audit.ActionLoginRateLimited,
				Resource:  "auth",
				IPAddress: clientIP,
				ErrorMsg:  "rate limit exceeded",
			})
			return nil, err
		}
	}

	account, err := s.store.FindByEmail(ctx, role, email)
	if err != nil {
		if !stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, errors.Internal(fmt.Errorf("failed to load account: %w", err))
		}
		s.hasher.DummyVerify(ctx, req.Password)
		s.recordAttempt(role.String(), metrics.OutcomeInvalid)
		s.audit(&audit.Event{
			Level:     audit.LevelWarning,
			Role:      role.String(),
			Action:    audit.ActionLoginUserNotFound,
			Resource:  "auth",
			IPAddress: clientIP,
		})
		return nil, errors.ErrInvalidCredentials
	}

	if !account.IsActive {
		s.recordAttempt(role.String(), metrics.OutcomeDeactivated)
		s.audit(s.accountEvent(account, audit.LevelWarning, audit.ActionLoginInactive, clientIP))
		return nil, errors.ErrAccountDeactivated
	}

	now := s.now().UTC()
	switch security.LockStatus(now, account.Lockout) {
	case security.Locked:
		s.hasher.DummyVerify(ctx, req.Password)
		s.recordAttempt(role.String(), metrics.OutcomeLocked)
		event := s.accountEvent(account, audit.LevelWarning, audit.ActionLoginLocked, clientIP)
		event.Metadata = fmt.Sprintf("remaining=%s", security.RemainingLock(now, account.Lockout).Round(time.Second))
		s.audit(event)
		return nil, errors.ErrAccountLocked
	case security.ExpiredLock:
		// The expired window is cleared before this attempt is judged, so a
		// wrong password here counts as the first failure of a new window.
		if err := s.store.ResetLockout(ctx, role, account.ID); err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to clear expired lock: %w", err))
		}
		account.Lockout = models.Lockout{}
		s.audit(s.accountEvent(account, audit.LevelInfo, audit.ActionLoginLockExpired, clientIP))
	}

	started := time.Now()
	valid, err := s.hasher.Verify(ctx, req.Password, account.PasswordHash)
	if s.metrics != nil {
		s.metrics.ObserveVerify(time.Since(started).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Internal(ctxErr)
		}
		// An unreadable stored hash never authenticates.
		s.log.Error("password verification failed",
			zap.String("role", role.String()),
			zap.String("user_id", account.ID),
			zap.Error(err),
		)
		event := s.accountEvent(account, audit.LevelError, audit.ActionLoginVerifyError, clientIP)
		event.ErrorMsg = err.Error()
		s.audit(event)
		valid = false
	}

	if !valid {
		return nil, s.failLogin(ctx, account, now, clientIP)
	}

	if account.Lockout.LoginAttempts > 0 || account.Lockout.AccountLocked {
		if err := s.store.ResetLockout(ctx, role, account.ID); err != nil {
			s.log.Warn("failed to reset login attempts", zap.String("user_id", account.ID), zap.Error(err))
		}
	}

	principal := account.Principal()
	token, expiresAt, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to issue token: %w", err))
	}

	// Best effort: a failed bookkeeping write never fails the login.
	if err := s.store.UpdateLastLogin(ctx, role, account.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", account.ID), zap.Error(err))
	}
	s.upgradeHash(ctx, account, req.Password)

	s.recordAttempt(role.String(), metrics.OutcomeSuccess)
	success := s.accountEvent(account, audit.LevelInfo, audit.ActionLoginSuccess, clientIP)
	success.Success = true
	s.audit(success)

	return &models.LoginResult{
		Principal: principal,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// failLogin records a wrong password against the account and returns the
// uniform credentials error.
func (s *AuthService) failLogin(ctx context.Context, account *models.Account, now time.Time, clientIP string) error {
	state, err := s.store.RecordFailedLogin(ctx, account.Role, account.ID, s.policy.Threshold, s.policy.Duration, now)
	if err != nil {
		return errors.Internal(fmt.Errorf("failed to record failed login: %w", err))
	}

	s.recordAttempt(account.Role.String(), metrics.OutcomeInvalid)
	s.audit(s.accountEvent(account, audit.LevelWarning, audit.ActionLoginInvalidPassword, clientIP))

	if state.AccountLocked {
		if s.metrics != nil {
			s.metrics.Lockout(account.Role.String())
		}
		event := s.accountEvent(account, audit.LevelCritical, audit.ActionLoginAutoLocked, clientIP)
		event.ErrorMsg = fmt.Sprintf("account locked after %d failed attempts", state.LoginAttempts)
		s.audit(event)
		s.log.Warn("account locked",
			zap.String("role", account.Role.String()),
			zap.String("user_id", account.ID),
			zap.Int("attempts", state.LoginAttempts),
		)
	}

	return errors.ErrInvalidCredentials
}

// upgradeHash replaces legacy or outdated hashes after a successful login.
func (s *AuthService) upgradeHash(ctx context.Context, account *models.Account, password string) {
	if !s.hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.log.Warn("failed to rehash password", zap.String("user_id", account.ID), zap.Error(err))
		return
	}
	if err := s.store.UpdatePassword(ctx, account.Role, account.ID, hash, account.PasswordChangedAt); err != nil {
		s.log.Warn("failed to store rehashed password", zap.String("user_id", account.ID), zap.Error(err))
	}
}

// Authenticate verifies a session token and re-resolves its account, so
// deactivated or deleted accounts lose access before their token expires.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	account, err := s.store.FindByID(ctx, claims.Role, claims.UserID)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, errors.NewAppError(errors.ErrInvalidCredentials, errors.MsgUserNotFound, http.StatusUnauthorized)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load session account: %w", err))
	}
	if !account.IsActive {
		return nil, errors.NewAppError(errors.ErrAccountDeactivated, errors.MsgUserNotFound, http.StatusUnauthorized)
	}

	return account.Principal(), nil
}

// Logout records the end of a session. Tokens are stateless, so the cookie
// is cleared by the caller.
func (s *AuthService) Logout(ctx context.Context, clientIP string) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return
	}
	s.audit(&audit.Event{
		Level:     audit.LevelInfo,
		UserID:    p.ID,
		Role:      p.Role.String(),
		Action:    audit.ActionLogout,
		Resource:  "auth",
		IPAddress: clientIP,
		Success:   true,
	})
}

func (s *AuthService) accountEvent(account *models.Account, level audit.LogLevel, action, clientIP string) *audit.Event {
	return &audit.Event{
		Level:     level,
		UserID:    account.ID,
		Role:      account.Role.String(),
		Action:    action,
		Resource:  "auth",
		IPAddress: clientIP,
	}
}

func (s *AuthService) audit(event *audit.Event) {
	if s.auditLogger == nil {
		return
	}
	if err := s.auditLogger.Log(event); err != nil {
		s.log.Warn("failed to record audit event", zap.String("action", event.Action), zap.Error(err))
	}
}

func (s *AuthService) recordAttempt(role, outcome string) {
	if s.metrics == nil {
		return
	}
	parsed, ok := models.ParseRole(role)
	if !ok {
		parsed = "unknown"
	}
	s.metrics.LoginAttempt(parsed.String(), outcome)
}
