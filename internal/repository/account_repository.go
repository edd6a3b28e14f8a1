package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/jainuniversity/campus-portal/internal/database"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

const accountColumns = `id, business_id, username, full_name, email, password_hash,
               password_changed_at, is_active, last_login, login_attempts,
               account_locked, locked_until, profile_encrypted, created_at, updated_at`

// AccountRepository is the SQLCipher-backed AccountStore.
type AccountRepository struct {
	db        *sql.DB
	tm        *database.TransactionManager
	encryptor *security.FieldEncryptor
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, encryptor *security.FieldEncryptor) *AccountRepository {
	return &AccountRepository{
		db:        db,
		tm:        database.NewTransactionManager(db),
		encryptor: encryptor,
	}
}

var _ AccountStore = (*AccountRepository)(nil)

// Create inserts a new account into its role table. The cross-role email
// check and the insert share one immediate transaction, so two concurrent
// registrations for the same email cannot both land in different tables.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	table, err := collectionFor(account.Role)
	if err != nil {
		return err
	}

	profile, err := r.encryptor.EncryptJSON(account.Profile)
	if err != nil {
		return err
	}

	email := strings.ToLower(account.Email)
	query := fmt.Sprintf(`
        INSERT INTO %s (
            id, business_id, username, full_name, email, password_hash,
            password_changed_at, is_active, login_attempts, account_locked,
            profile_encrypted, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
    `, table)

	return r.tm.Execute(ctx, func(tx *sql.Tx) error {
		taken, err := emailTaken(ctx, tx, email)
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrAccountExists
		}

		_, err = tx.ExecContext(ctx, query,
			account.ID,
			account.BusinessID,
			account.Username,
			account.FullName,
			email,
			account.PasswordHash,
			account.PasswordChangedAt.UTC(),
			account.IsActive,
			profile,
			account.CreatedAt.UTC(),
			account.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.ErrAccountExists
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

// FindByEmail retrieves an account of role by its email address
func (r *AccountRepository) FindByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	table, err := collectionFor(role)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = ?`, accountColumns, table)
	return r.scanAccount(r.db.QueryRowContext(ctx, query, strings.ToLower(email)), role)
}

// FindByID retrieves an account of role by its ID
func (r *AccountRepository) FindByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	table, err := collectionFor(role)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, accountColumns, table)
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id), role)
}

// EmailTaken reports whether any role already uses email
func (r *AccountRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	return emailTaken(ctx, r.db, strings.ToLower(email))
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func emailTaken(ctx context.Context, q rowQuerier, email string) (bool, error) {
	for _, role := range models.Roles {
		table, _ := collectionFor(role)
		var exists bool
		query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE email = ?)`, table)
		if err := q.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// UpdateLastLogin records a successful sign-in time
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, role models.Role, id string, at time.Time) error {
	return r.exec(ctx, role, `SET last_login = ?, updated_at = ? WHERE id = ?`, at.UTC(), at.UTC(), id)
}

// RecordFailedLogin increments failed login attempts and locks the account
// once threshold is reached. SQLite evaluates every SET expression against
// the pre-update row, so the CASE arms see the old counter.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, role models.Role, id string, threshold int, lockFor time.Duration, now time.Time) (models.Lockout, error) {
	table, err := collectionFor(role)
	if err != nil {
		return models.Lockout{}, err
	}

	now = now.UTC()
	lockedUntil := now.Add(lockFor)

	update := fmt.Sprintf(`
        UPDATE %s
        SET login_attempts = login_attempts + 1,
            account_locked = CASE WHEN login_attempts + 1 >= ? THEN 1 ELSE account_locked END,
            locked_until = CASE WHEN login_attempts + 1 >= ? THEN ? ELSE locked_until END,
            updated_at = ?
        WHERE id = ?
    `, table)
	selectState := fmt.Sprintf(`SELECT login_attempts, account_locked, locked_until FROM %s WHERE id = ?`, table)

	var state models.Lockout
	err = r.tm.Execute(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, update, threshold, threshold, lockedUntil, now, id)
		if err != nil {
			return fmt.Errorf("failed to increment failed logins: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return errors.ErrAccountNotFound
		}

		var until sql.NullTime
		if err := tx.QueryRowContext(ctx, selectState, id).Scan(&state.LoginAttempts, &state.AccountLocked, &until); err != nil {
			return fmt.Errorf("failed to read lockout state: %w", err)
		}
		state.LockedUntil = timePtr(until)
		return nil
	})
	if err != nil {
		return models.Lockout{}, err
	}

	return state, nil
}

// ResetLockout clears the failed-login counter and any lock
func (r *AccountRepository) ResetLockout(ctx context.Context, role models.Role, id string) error {
	return r.exec(ctx, role,
		`SET login_attempts = 0, account_locked = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
}

// SetActive activates or deactivates an account
func (r *AccountRepository) SetActive(ctx context.Context, role models.Role, id string, active bool) error {
	return r.exec(ctx, role, `SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
}

// UpdatePassword replaces the stored hash
func (r *AccountRepository) UpdatePassword(ctx context.Context, role models.Role, id, hash string, at time.Time) error {
	return r.exec(ctx, role,
		`SET password_hash = ?, password_changed_at = ?, updated_at = ? WHERE id = ?`,
		hash, at.UTC(), at.UTC(), id)
}

// Ping verifies the store is reachable
func (r *AccountRepository) Ping(ctx context.Context) error {
	return database.Ping(ctx, r.db)
}

// exec runs an UPDATE against role's table and maps a missing row to
// ErrAccountNotFound.
func (r *AccountRepository) exec(ctx context.Context, role models.Role, clause string, args ...any) error {
	table, err := collectionFor(role)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s %s", table, clause), args...)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return errors.ErrAccountNotFound
	}

	return nil
}

func (r *AccountRepository) scanAccount(row *sql.Row, role models.Role) (*models.Account, error) {
	var (
		account   = &models.Account{Role: role}
		lastLogin sql.NullTime
		until     sql.NullTime
		profile   string
	)

	err := row.Scan(
		&account.ID,
		&account.BusinessID,
		&account.Username,
		&account.FullName,
		&account.Email,
		&account.PasswordHash,
		&account.PasswordChangedAt,
		&account.IsActive,
		&lastLogin,
		&account.Lockout.LoginAttempts,
		&account.Lockout.AccountLocked,
		&until,
		&profile,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.LastLogin = timePtr(lastLogin)
	account.Lockout.LockedUntil = timePtr(until)

	if err := r.encryptor.DecryptJSON(profile, &account.Profile); err != nil {
		return nil, err
	}

	return account, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
