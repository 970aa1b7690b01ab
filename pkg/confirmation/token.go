package confirmation

import "time"

// Status is the explicit lifecycle state of a confirmation token. A single
// variant replaces independent used/valid booleans so impossible
// combinations are unrepresentable; expiry is derived from the clock, not
// stored.
type Status string

const (
	// StatusActive means issued and not yet consumed.
	StatusActive Status = "ACTIVE"
	// StatusConsumed means validated once; WasValid records the outcome.
	StatusConsumed Status = "CONSUMED"
	// StatusRevoked means administratively voided; permanently unusable.
	StatusRevoked Status = "REVOKED"
)

// Token is a single-use confirmation bound to one ACC event.
//
// Invariants: consumed exactly once, never replayed, response bound to a
// cryptographic hash, time-bounded independently of the session TTL.
type Token struct {
	ID        string
	SessionID string
	// ACCEventID names the specific checkpoint this token guards.
	ACCEventID string
	Type       Type
	IssuedAt   time.Time
	TTL        time.Duration

	// ChallengePayload is shown to the user; ChallengeHash is the SHA-256
	// digest of the expected response.
	ChallengePayload string
	ChallengeHash    string

	Status   Status
	UsedAt   *time.Time
	WasValid bool // meaningful only once Status is CONSUMED or REVOKED
}

// IsExpired reports whether the token has expired by its own TTL. The
// boundary is inclusive.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.IssuedAt.Add(t.TTL))
}

// CanValidate reports whether the token is in a state where validation is
// still possible: active and unexpired.
func (t *Token) CanValidate(now time.Time) bool {
	return t.Status == StatusActive && !t.IsExpired(now)
}

// consume marks the token consumed with the given outcome. First use wins:
// once the token left StatusActive its recorded outcome never changes.
func (t *Token) consume(valid bool, at time.Time, status Status) {
	if t.Status != StatusActive {
		return
	}
	t.Status = status
	t.WasValid = valid
	ts := at
	t.UsedAt = &ts
}
