package authority

import (
	"testing"
	"time"
)

func TestTokenExpiryBoundaryInclusive(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tok := &Token{ID: "t1", SessionID: "s1", IssuedAt: t0, TTL: 60 * time.Second}

	if tok.IsExpired(t0.Add(59 * time.Second)) {
		t.Fatal("expired before TTL elapsed")
	}
	if !tok.IsExpired(t0.Add(60 * time.Second)) {
		t.Fatal("not expired at exactly the expiry instant")
	}
	if !tok.IsExpired(t0.Add(65 * time.Second)) {
		t.Fatal("not expired past TTL")
	}
	if tok.IsValid(t0.Add(65 * time.Second)) {
		t.Fatal("expired token reported valid")
	}
}

func TestRevocationOverridesTTL(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tok := &Token{ID: "t1", IssuedAt: t0, TTL: time.Hour}

	if !tok.IsValid(t0.Add(time.Minute)) {
		t.Fatal("fresh token invalid")
	}
	tok.revoke(t0.Add(time.Minute))
	if tok.IsValid(t0.Add(2 * time.Minute)) {
		t.Fatal("revoked token still valid inside TTL")
	}
	if tok.IsExpired(t0.Add(2 * time.Minute)) {
		t.Fatal("revocation must not masquerade as expiry")
	}
}

func TestRevokeIsMonotonic(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tok := &Token{ID: "t1", IssuedAt: t0, TTL: time.Hour}

	tok.revoke(t0.Add(time.Minute))
	first := *tok.RevokedAt
	tok.revoke(t0.Add(10 * time.Minute))

	if !tok.RevokedAt.Equal(first) {
		t.Fatalf("revocation instant overwritten: %v -> %v", first, tok.RevokedAt)
	}
}

func TestRemainingClamped(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	tok := &Token{ID: "t1", IssuedAt: t0, TTL: time.Minute}

	if got := tok.Remaining(t0.Add(30 * time.Second)); got != 30*time.Second {
		t.Fatalf("remaining = %s", got)
	}
	if got := tok.Remaining(t0.Add(2 * time.Minute)); got != 0 {
		t.Fatalf("remaining past expiry = %s", got)
	}
}
