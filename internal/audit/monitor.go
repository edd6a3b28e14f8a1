package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// failedAttempts are the actions that each stand for one rejected login.
// Lock bookkeeping events accompany or follow these and are not counted.
var failedAttempts = map[string]bool{
	ActionLoginInvalidPassword: true,
	ActionLoginUserNotFound:    true,
	ActionLoginLocked:          true,
	ActionLoginVerifyError:     true,
}

// Monitor scans recent audit events for failed-login bursts that the
// per-account lockout alone would not surface, such as one account being
// hit from many addresses.
type Monitor struct {
	logger    *Logger
	log       *zap.Logger
	window    time.Duration
	threshold int
	now       func() time.Time
}

// NewMonitor creates a new security monitor
func NewMonitor(logger *Logger, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		logger:    logger,
		log:       log.Named("audit.monitor"),
		window:    5 * time.Minute,
		threshold: 5,
		now:       time.Now,
	}
}

// Alert describes one account that crossed the failed-login threshold.
type Alert struct {
	UserID   string
	Role     string
	Failures int
	Sources  int
}

// DetectFailedLogins reports accounts with at least threshold failed logins
// inside the window and records a critical event for each.
func (m *Monitor) DetectFailedLogins() ([]Alert, error) {
	now := m.now().UTC()
	since := now.Add(-m.window)

	events, err := m.logger.QueryLogs(QueryFilters{
		StartTime:    &since,
		EndTime:      &now,
		ActionPrefix: "LOGIN_",
		Limit:        1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	type key struct{ userID, role string }
	failures := make(map[key]int)
	sources := make(map[key]map[string]struct{})
	var order []key

	for _, event := range events {
		if !failedAttempts[event.Action] || event.UserID == "" {
			continue
		}
		k := key{event.UserID, event.Role}
		if _, seen := failures[k]; !seen {
			order = append(order, k)
			sources[k] = make(map[string]struct{})
		}
		failures[k]++
		if event.IPAddress != "" {
			sources[k][event.IPAddress] = struct{}{}
		}
	}

	var alerts []Alert
	for _, k := range order {
		if failures[k] < m.threshold {
			continue
		}
		alert := Alert{UserID: k.userID, Role: k.role, Failures: failures[k], Sources: len(sources[k])}
		alerts = append(alerts, alert)

		m.log.Warn("failed login threshold reached",
			zap.String("user_id", alert.UserID),
			zap.String("role", alert.Role),
			zap.Int("failures", alert.Failures),
			zap.Int("sources", alert.Sources),
			zap.Duration("window", m.window),
		)
		if err := m.logger.Log(&Event{
			Level:    LevelCritical,
			UserID:   alert.UserID,
			Role:     alert.Role,
			Action:   ActionFailedLoginThreshold,
			Resource: "auth",
			Success:  false,
			ErrorMsg: fmt.Sprintf("%d failed attempts from %d sources detected", alert.Failures, alert.Sources),
		}); err != nil {
			m.log.Error("failed to record alert", zap.Error(err))
		}
	}

	return alerts, nil
}

// Run checks for bursts every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.DetectFailedLogins(); err != nil {
				m.log.Error("failed login detection failed", zap.Error(err))
			}
		}
	}
}
