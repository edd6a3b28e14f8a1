package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/repository"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// memStore is an in-memory AccountStore for service tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[models.Role]map[string]*models.Account

	failLastLogin error
}

var _ repository.AccountStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{accounts: map[models.Role]map[string]*models.Account{
		models.RoleStudent: {},
		models.RoleTeacher: {},
		models.RoleAdmin:   {},
	}}
}

func (m *memStore) get(role models.Role, id string) (*models.Account, error) {
	byID, ok := m.accounts[role]
	if !ok {
		return nil, errors.ErrInvalidRole
	}
	a, ok := byID[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return a, nil
}

func (m *memStore) FindByEmail(_ context.Context, role models.Role, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.accounts[role]
	if !ok {
		return nil, errors.ErrInvalidRole
	}
	for _, a := range byID {
		if a.Email == strings.ToLower(email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errors.ErrAccountNotFound
}

func (m *memStore) FindByID(_ context.Context, role models.Role, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.get(role, id)
	if err != nil {
		return nil, err
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts[account.Role] {
		if a.Email == account.Email || a.Username == account.Username || a.BusinessID == account.BusinessID {
			return errors.ErrAccountExists
		}
	}
	cp := *account
	m.accounts[account.Role][account.ID] = &cp
	return nil
}

func (m *memStore) EmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, byID := range m.accounts {
		for _, a := range byID {
			if a.Email == strings.ToLower(email) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) UpdateLastLogin(_ context.Context, role models.Role, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLastLogin != nil {
		return m.failLastLogin
	}
	a, err := m.get(role, id)
	if err != nil {
		return err
	}
	a.LastLogin = &at
	return nil
}

func (m *memStore) RecordFailedLogin(_ context.Context, role models.Role, id string, threshold int, lockFor time.Duration, now time.Time) (models.Lockout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.get(role, id)
	if err != nil {
		return models.Lockout{}, err
	}
	policy := security.LockoutPolicy{Threshold: threshold, Duration: lockFor}
	a.Lockout = policy.NextFailure(now, a.Lockout)
	return a.Lockout, nil
}

func (m *memStore) ResetLockout(_ context.Context, role models.Role, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.get(role, id)
	if err != nil {
		return err
	}
	a.Lockout = models.Lockout{}
	return nil
}

func (m *memStore) SetActive(_ context.Context, role models.Role, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.get(role, id)
	if err != nil {
		return err
	}
	a.IsActive = active
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, role models.Role, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.get(role, id)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.PasswordChangedAt = at
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) lockout(role models.Role, id string) models.Lockout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[role][id].Lockout
}

// mockStore lets a test script individual store failures.
type mockStore struct {
	mock.Mock
	repository.AccountStore
}

func (m *mockStore) FindByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	args := m.Called(ctx, role, email)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *mockStore) FindByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	args := m.Called(ctx, role, id)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *mockStore) RecordFailedLogin(ctx context.Context, role models.Role, id string, threshold int, lockFor time.Duration, now time.Time) (models.Lockout, error) {
	args := m.Called(ctx, role, id, threshold, lockFor, now)
	return args.Get(0).(models.Lockout), args.Error(1)
}
