package security

import (
	"time"

	"github.com/jainuniversity/campus-portal/internal/models"
)

// LockState is the evaluated state of an account's lockout fields.
type LockState int

const (
	// Unlocked accepts login attempts.
	Unlocked LockState = iota
	// Locked rejects attempts until LockedUntil passes.
	Locked
	// ExpiredLock is still flagged locked in the store but its lock window
	// has passed; the next authentication write clears it.
	ExpiredLock
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case ExpiredLock:
		return "expired-lock"
	default:
		return "unlocked"
	}
}

// LockoutPolicy configures when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks for 30 minutes after 5 consecutive failures.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}

// LockStatus evaluates lockout state at now. It never mutates l.
func LockStatus(now time.Time, l models.Lockout) LockState {
	if !l.AccountLocked {
		return Unlocked
	}
	if l.LockedUntil != nil && now.Before(*l.LockedUntil) {
		return Locked
	}
	return ExpiredLock
}

// RemainingLock returns how long the lock still holds at now.
func RemainingLock(now time.Time, l models.Lockout) time.Duration {
	if LockStatus(now, l) != Locked {
		return 0
	}
	return l.LockedUntil.Sub(now)
}

// NextFailure returns the lockout state after one more failed attempt. Stores
// apply the same transition atomically; this is the reference for it.
func (p LockoutPolicy) NextFailure(now time.Time, l models.Lockout) models.Lockout {
	next := models.Lockout{
		LoginAttempts: l.LoginAttempts + 1,
		AccountLocked: l.AccountLocked,
		LockedUntil:   l.LockedUntil,
	}
	if next.LoginAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		next.AccountLocked = true
		next.LockedUntil = &until
	}
	return next
}
