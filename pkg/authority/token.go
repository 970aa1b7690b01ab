// Package authority implements the time-bounded authority token lifecycle.
// Authority is the permission to execute: tokens are issued, scoped,
// time-bounded, and revocable. Authority never persists silently: silence
// and expiry collapse it, and revocation is immediate and total.
package authority

import "time"

// Token represents delegated authority to execute, scoped to a session.
// Tokens are created by issuance only and are never deleted; revocation
// flips Revoked exactly once and is never reset.
type Token struct {
	ID        string
	SessionID string
	IssuedAt  time.Time
	TTL       time.Duration
	Scope     string
	Revoked   bool
	RevokedAt *time.Time
}

// ExpiresAt returns the absolute expiry instant.
func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

// IsExpired reports whether the token has expired by TTL. The boundary is
// inclusive: at exactly the expiry instant the token is already expired.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// IsValid reports whether the token is currently valid: not revoked and not
// expired. Revocation overrides TTL; a revoked but unexpired token is
// invalid.
func (t *Token) IsValid(now time.Time) bool {
	return !t.Revoked && !t.IsExpired(now)
}

// Remaining returns the remaining lifetime, clamped to zero.
func (t *Token) Remaining(now time.Time) time.Duration {
	remaining := t.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// revoke marks the token revoked. Monotonic: the first revocation wins and
// the recorded instant is never overwritten.
func (t *Token) revoke(at time.Time) {
	if t.Revoked {
		return
	}
	t.Revoked = true
	ts := at
	t.RevokedAt = &ts
}
