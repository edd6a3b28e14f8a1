package repository

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jainuniversity/campus-portal/internal/database"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

func newTestRepository(t *testing.T) *AccountRepository {
	t.Helper()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "accounts.db"), strings.Repeat("k", 32))
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	encryptor, err := security.NewFieldEncryptor([]byte(strings.Repeat("e", 32)))
	require.NoError(t, err)

	return NewAccountRepository(db, encryptor)
}

func newAccount(role models.Role, email string) *models.Account {
	now := time.Now().UTC().Truncate(time.Second)
	id := uuid.NewString()
	return &models.Account{
		ID:                id,
		Role:              role,
		BusinessID:        "B-" + id[:8],
		Username:          "user_" + id[:8],
		FullName:          "Test User",
		Email:             email,
		PasswordHash:      "$2a$04$abcdefghijklmnopqrstuuJ2wQ8XG5Zb5z4n0H8nYkPZq2cQ3fX7a",
		PasswordChangedAt: now,
		IsActive:          true,
		Profile: models.Profile{
			Contact: models.ContactInfo{Phone: "9876543210"},
			Address: models.Address{City: "Bengaluru", Country: "India"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAccountRepositoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	account := newAccount(models.RoleTeacher, "Teacher@Uni.edu")
	require.NoError(t, repo.Create(ctx, account))

	found, err := repo.FindByEmail(ctx, models.RoleTeacher, "teacher@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.Equal(t, models.RoleTeacher, found.Role)
	assert.Equal(t, "teacher@uni.edu", found.Email)
	assert.True(t, found.IsActive)
	assert.Equal(t, "Bengaluru", found.Profile.Address.City)
	assert.Zero(t, found.Lockout.LoginAttempts)
	assert.Nil(t, found.LastLogin)

	byID, err := repo.FindByID(ctx, models.RoleTeacher, account.ID)
	require.NoError(t, err)
	assert.Equal(t, found.Email, byID.Email)

	t.Run("RoleScoped", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, models.RoleStudent, "teacher@uni.edu")
		assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	})

	t.Run("Duplicate", func(t *testing.T) {
		dup := newAccount(models.RoleTeacher, "teacher@uni.edu")
		assert.ErrorIs(t, repo.Create(ctx, dup), errors.ErrAccountExists)
	})

	t.Run("DuplicateAcrossRoles", func(t *testing.T) {
		other := newAccount(models.RoleStudent, "TEACHER@uni.edu")
		assert.ErrorIs(t, repo.Create(ctx, other), errors.ErrAccountExists)

		_, err := repo.FindByEmail(ctx, models.RoleStudent, "teacher@uni.edu")
		assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	})

	t.Run("EmailTakenAcrossRoles", func(t *testing.T) {
		taken, err := repo.EmailTaken(ctx, "TEACHER@uni.edu")
		require.NoError(t, err)
		assert.True(t, taken)

		taken, err = repo.EmailTaken(ctx, "nobody@uni.edu")
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("InvalidRole", func(t *testing.T) {
		_, err := repo.FindByID(ctx, models.Role("guest"), account.ID)
		assert.ErrorIs(t, err, errors.ErrInvalidRole)
	})
}

func TestAccountRepositoryLockout(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	account := newAccount(models.RoleStudent, "student@uni.edu")
	require.NoError(t, repo.Create(ctx, account))

	now := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 4; i++ {
		state, err := repo.RecordFailedLogin(ctx, models.RoleStudent, account.ID, 5, 30*time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i, state.LoginAttempts)
		assert.False(t, state.AccountLocked)
		assert.Nil(t, state.LockedUntil)
	}

	state, err := repo.RecordFailedLogin(ctx, models.RoleStudent, account.ID, 5, 30*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 5, state.LoginAttempts)
	assert.True(t, state.AccountLocked)
	require.NotNil(t, state.LockedUntil)
	assert.True(t, state.LockedUntil.Equal(now.Add(30*time.Minute)))

	stored, err := repo.FindByID(ctx, models.RoleStudent, account.ID)
	require.NoError(t, err)
	assert.Equal(t, state.LoginAttempts, stored.Lockout.LoginAttempts)
	assert.True(t, stored.Lockout.AccountLocked)

	require.NoError(t, repo.ResetLockout(ctx, models.RoleStudent, account.ID))
	stored, err = repo.FindByID(ctx, models.RoleStudent, account.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Lockout.LoginAttempts)
	assert.False(t, stored.Lockout.AccountLocked)
	assert.Nil(t, stored.Lockout.LockedUntil)

	_, err = repo.RecordFailedLogin(ctx, models.RoleStudent, "missing", 5, time.Minute, now)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestAccountRepositoryConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	account := newAccount(models.RoleAdmin, "admin@uni.edu")
	require.NoError(t, repo.Create(ctx, account))

	const attempts = 8
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordFailedLogin(ctx, models.RoleAdmin, account.ID, 5, time.Minute, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.FindByID(ctx, models.RoleAdmin, account.ID)
	require.NoError(t, err)
	assert.Equal(t, attempts, stored.Lockout.LoginAttempts)
	assert.True(t, stored.Lockout.AccountLocked)
}

func TestAccountRepositoryUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	account := newAccount(models.RoleStudent, "updates@uni.edu")
	require.NoError(t, repo.Create(ctx, account))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(ctx, models.RoleStudent, account.ID, at))
	require.NoError(t, repo.SetActive(ctx, models.RoleStudent, account.ID, false))
	require.NoError(t, repo.UpdatePassword(ctx, models.RoleStudent, account.ID, "$2a$04$new", at))

	stored, err := repo.FindByID(ctx, models.RoleStudent, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(at))
	assert.False(t, stored.IsActive)
	assert.Equal(t, "$2a$04$new", stored.PasswordHash)

	assert.ErrorIs(t, repo.SetActive(ctx, models.RoleTeacher, account.ID, true), errors.ErrAccountNotFound)
	assert.NoError(t, repo.Ping(ctx))
}

func TestAccountRepositoryConcurrentCrossRoleCreate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < workers; i++ {
		role := models.Roles[i%len(models.Roles)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, newAccount(role, "shared@uni.edu"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case stderrors.Is(err, errors.ErrAccountExists):
				exists++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, exists)

	var owners int
	for _, role := range models.Roles {
		if _, err := repo.FindByEmail(ctx, role, "shared@uni.edu"); err == nil {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}
