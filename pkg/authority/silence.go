package authority

import (
	"log/slog"
	"time"
)

// SilenceTracker tracks the last explicit user action and detects silence.
// Silence triggers an ACC checkpoint: the system checkpoints rather than
// continues when the user has gone quiet.
type SilenceTracker struct {
	timeout    time.Duration
	lastAction *time.Time
	logger     *slog.Logger
}

// NewSilenceTracker creates a tracker with the given timeout.
func NewSilenceTracker(timeout time.Duration, logger *slog.Logger) *SilenceTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SilenceTracker{timeout: timeout, logger: logger}
}

// Timeout returns the configured silence timeout.
func (s *SilenceTracker) Timeout() time.Duration { return s.timeout }

// RecordUserAction records that the user took an explicit action at ts.
func (s *SilenceTracker) RecordUserAction(ts time.Time) {
	t := ts
	s.lastAction = &t
	s.logger.Debug("user action recorded", "at", ts.UTC())
}

// CheckSilence reports whether the silence timeout has elapsed at now.
// No action ever recorded is conservatively treated as silence. The
// comparison is strict: exactly at the boundary is not yet silent.
func (s *SilenceTracker) CheckSilence(now time.Time) bool {
	if s.lastAction == nil {
		return true
	}
	elapsed := now.Sub(*s.lastAction)
	silent := elapsed > s.timeout
	if silent {
		s.logger.Info("silence detected", "elapsed", elapsed.String(), "timeout", s.timeout.String())
	}
	return silent
}

// TimeUntilSilence returns the remaining time before the silence timeout,
// clamped to zero. Zero when no action was ever recorded.
func (s *SilenceTracker) TimeUntilSilence(now time.Time) time.Duration {
	if s.lastAction == nil {
		return 0
	}
	remaining := s.timeout - now.Sub(*s.lastAction)
	if remaining < 0 {
		return 0
	}
	return remaining
}
