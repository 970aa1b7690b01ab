package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfsession/selfsession/pkg/audit"
)

// fixedClock is a test clock that returns a controllable time.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
}

func newManager(t *testing.T) (*Manager, *audit.Log, *fixedClock) {
	t.Helper()
	clk := newFixedClock()
	log := audit.NewLog()
	return NewManager(log, clk, nil), log, clk
}

func TestIssueTokenAudits(t *testing.T) {
	m, log, clk := newManager(t)

	tok := m.IssueToken("sess-1", 30*time.Minute, "session")
	require.NotEmpty(t, tok.ID)
	assert.Equal(t, "sess-1", tok.SessionID)
	assert.True(t, tok.IssuedAt.Equal(clk.Now()))
	assert.Equal(t, 30*time.Minute, tok.TTL)

	issued := log.EntriesByType(audit.EventAuthorityIssued)
	require.Len(t, issued, 1)
	require.NotNil(t, issued[0].AuthorityValid)
	assert.True(t, *issued[0].AuthorityValid)
	assert.Equal(t, "session", issued[0].Extra["scope"])
}

func TestValidateKnownTokenAppendsCheck(t *testing.T) {
	m, log, clk := newManager(t)
	tok := m.IssueToken("sess-1", time.Minute, "session")

	assert.True(t, m.ValidateToken(tok.ID, clk.Now()))

	clk.Advance(65 * time.Second)
	assert.False(t, m.ValidateToken(tok.ID, clk.Now()))

	checks := log.EntriesByType(audit.EventAuthorityCheck)
	require.Len(t, checks, 2)
	assert.True(t, *checks[0].AuthorityValid)
	assert.False(t, *checks[1].AuthorityValid)
}

func TestValidateUnknownTokenLeavesLogUntouched(t *testing.T) {
	m, log, clk := newManager(t)

	assert.False(t, m.ValidateToken("no-such-token", clk.Now()))
	assert.Equal(t, 0, log.Len())
}

func TestRevokeImmediate(t *testing.T) {
	m, log, clk := newManager(t)
	tok := m.IssueToken("sess-1", time.Hour, "session")

	m.RevokeToken(tok.ID, clk.Now())
	assert.False(t, m.ValidateToken(tok.ID, clk.Now()))

	revoked := log.EntriesByType(audit.EventAuthorityRevoked)
	require.Len(t, revoked, 1)
	assert.False(t, *revoked[0].AuthorityValid)
}

func TestRevokeUnknownIsNoop(t *testing.T) {
	m, log, clk := newManager(t)
	m.RevokeToken("no-such-token", clk.Now())
	assert.Equal(t, 0, log.Len())
}

func TestRevokeSessionTokensCascade(t *testing.T) {
	m, log, clk := newManager(t)
	a := m.IssueToken("sess-1", time.Hour, "session")
	b := m.IssueToken("sess-1", time.Hour, "session")
	other := m.IssueToken("sess-2", time.Hour, "session")

	m.RevokeSessionTokens("sess-1", clk.Now())

	assert.False(t, m.ValidateToken(a.ID, clk.Now()))
	assert.False(t, m.ValidateToken(b.ID, clk.Now()))
	assert.True(t, m.ValidateToken(other.ID, clk.Now()))
	assert.Len(t, log.EntriesByType(audit.EventAuthorityRevoked), 2)
}

func TestSessionTokensInIssueOrder(t *testing.T) {
	m, _, _ := newManager(t)
	a := m.IssueToken("sess-1", time.Hour, "session")
	b := m.IssueToken("sess-1", time.Hour, "session")

	tokens := m.SessionTokens("sess-1")
	require.Len(t, tokens, 2)
	assert.Equal(t, a.ID, tokens[0].ID)
	assert.Equal(t, b.ID, tokens[1].ID)
}
