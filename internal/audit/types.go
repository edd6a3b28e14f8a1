package audit

import (
	"strings"
	"time"
)

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// Actions recorded by the authentication and account services.
const (
	ActionLoginSuccess         = "LOGIN_SUCCESS"
	ActionLoginRateLimited     = "LOGIN_RATE_LIMITED"
	ActionLoginUserNotFound    = "LOGIN_USER_NOT_FOUND"
	ActionLoginInactive        = "LOGIN_ACCOUNT_INACTIVE"
	ActionLoginLocked          = "LOGIN_ACCOUNT_LOCKED"
	ActionLoginLockExpired     = "LOGIN_LOCK_EXPIRED"
	ActionLoginInvalidPassword = "LOGIN_INVALID_PASSWORD"
	ActionLoginAutoLocked      = "LOGIN_ACCOUNT_LOCKED_AUTO"
	ActionLoginVerifyError     = "LOGIN_VERIFY_ERROR"
	ActionLogout               = "LOGOUT"
	ActionRegisterSuccess      = "REGISTER_SUCCESS"
	ActionRegisterDuplicate    = "REGISTER_DUPLICATE_EMAIL"
	ActionPasswordChanged      = "PASSWORD_CHANGED"
	ActionPasswordChangeFailed = "PASSWORD_CHANGE_FAILED"
	ActionAccountStatus        = "ACCOUNT_STATUS_CHANGED"
	ActionAccountUnlocked      = "ACCOUNT_UNLOCKED"
	ActionFailedLoginThreshold = "FAILED_LOGIN_THRESHOLD"
)

// Event is one audit record. It never carries passwords, hashes or tokens.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IPAddress string    `json:"ip_address,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
}

type QueryFilters struct {
	StartTime    *time.Time
	EndTime      *time.Time
	UserID       string
	Action       string
	ActionPrefix string
	Level        LogLevel
	Limit        int
}

func (f QueryFilters) matches(e *Event) bool {
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActionPrefix != "" && !strings.HasPrefix(e.Action, f.ActionPrefix) {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}

// sql renders the filters as a query against audit_log, newest first.
func (f QueryFilters) sql() (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}

	if f.StartTime != nil {
		add("timestamp >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		add("timestamp <= ?", *f.EndTime)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.ActionPrefix != "" {
		add("action LIKE ?", f.ActionPrefix+"%")
	}
	if f.Level != "" {
		add("level = ?", string(f.Level))
	}

	query := "SELECT id, timestamp, level, user_id, role, action, resource, ip_address, success, error_msg, metadata FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	return query, append(args, f.Limit)
}
