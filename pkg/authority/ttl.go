package authority

import (
	"errors"
	"log/slog"
	"time"
)

// ErrTTLNotInitialized is returned when the deadline is requested before
// Initialize fixed the start time.
var ErrTTLNotInitialized = errors.New("session TTL not initialized")

// TTLEnforcer enforces an absolute session deadline. When the TTL expires
// the session must terminate: no grace periods, and no extension operation
// exists.
type TTLEnforcer struct {
	ttl       time.Duration
	createdAt *time.Time
	logger    *slog.Logger
}

// NewTTLEnforcer creates an enforcer with the given TTL. The countdown does
// not start until Initialize is called.
func NewTTLEnforcer(ttl time.Duration, logger *slog.Logger) *TTLEnforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TTLEnforcer{ttl: ttl, logger: logger}
}

// TTL returns the configured session lifetime.
func (e *TTLEnforcer) TTL() time.Duration { return e.ttl }

// Initialize fixes the start of the TTL countdown.
func (e *TTLEnforcer) Initialize(createdAt time.Time) {
	t := createdAt
	e.createdAt = &t
	e.logger.Info("session TTL initialized", "ttl", e.ttl.String(), "expires_at", t.Add(e.ttl).UTC())
}

// Deadline returns the absolute expiry instant.
func (e *TTLEnforcer) Deadline() (time.Time, error) {
	if e.createdAt == nil {
		return time.Time{}, ErrTTLNotInitialized
	}
	return e.createdAt.Add(e.ttl), nil
}

// IsExpired reports whether the TTL has expired at now. The boundary is
// inclusive. Before initialization nothing has expired.
func (e *TTLEnforcer) IsExpired(now time.Time) bool {
	if e.createdAt == nil {
		return false
	}
	expired := !now.Before(e.createdAt.Add(e.ttl))
	if expired {
		e.logger.Warn("session TTL expired", "at", now.UTC())
	}
	return expired
}

// Remaining returns the remaining session lifetime, clamped to zero.
func (e *TTLEnforcer) Remaining(now time.Time) time.Duration {
	if e.createdAt == nil {
		return 0
	}
	remaining := e.createdAt.Add(e.ttl).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
