package authority

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/selfsession/selfsession/pkg/audit"
)

// Manager owns the authority token lifecycle: issue, validate, revoke.
// Known-id operations are audited; unknown-id lookups log a warning only.
//
// Manager is not safe for concurrent use; callers serialize access per
// session.
type Manager struct {
	tokens    map[string]*Token
	bySession map[string][]string
	log       *audit.Log
	clock     audit.Clock
	logger    *slog.Logger
}

// NewManager creates a Manager writing to the given audit log. Nil clock
// and logger fall back to system defaults.
func NewManager(log *audit.Log, clock audit.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = audit.SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tokens:    make(map[string]*Token),
		bySession: make(map[string][]string),
		log:       log,
		clock:     clock,
		logger:    logger,
	}
}

// IssueToken creates a token with a fresh id, indexes it under the session,
// and appends an AUTHORITY_ISSUED entry.
func (m *Manager) IssueToken(sessionID string, ttl time.Duration, scope string) *Token {
	now := m.clock.Now()
	token := &Token{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		IssuedAt:  now,
		TTL:       ttl,
		Scope:     scope,
	}

	m.tokens[token.ID] = token
	m.bySession[sessionID] = append(m.bySession[sessionID], token.ID)

	m.logger.Info("authority token issued",
		"session_id", sessionID,
		"token_id", shortID(token.ID),
		"ttl", ttl.String(),
		"scope", scope)

	m.append(audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventAuthorityIssued,
		Reason:         fmt.Sprintf("token %s issued with TTL %s", shortID(token.ID), ttl),
		AuthorityValid: audit.Bool(true),
		Extra: map[string]interface{}{
			"token_id":   shortID(token.ID),
			"session_id": sessionID,
			"scope":      scope,
		},
	})
	return token
}

// ValidateToken reports whether the token is valid at now. An unknown id
// returns false immediately with no audit entry; a known id always appends
// an AUTHORITY_CHECK entry carrying the verdict.
func (m *Manager) ValidateToken(tokenID string, now time.Time) bool {
	token, ok := m.tokens[tokenID]
	if !ok {
		m.logger.Warn("token validation failed: unknown token", "token_id", shortID(tokenID))
		return false
	}

	valid := token.IsValid(now)
	if !valid {
		if token.Revoked {
			m.logger.Info("token validation failed: revoked", "token_id", shortID(tokenID))
		} else {
			m.logger.Info("token validation failed: expired", "token_id", shortID(tokenID))
		}
	}

	m.append(audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventAuthorityCheck,
		Reason:         fmt.Sprintf("token %s validation: %t", shortID(tokenID), valid),
		AuthorityValid: audit.Bool(valid),
	})
	return valid
}

// RevokeToken revokes a token immediately. Unknown ids are a warned no-op.
// Revocation is monotonic and idempotent; every call on a known id appends
// an AUTHORITY_REVOKED entry.
func (m *Manager) RevokeToken(tokenID string, now time.Time) {
	token, ok := m.tokens[tokenID]
	if !ok {
		m.logger.Warn("revoke failed: unknown token", "token_id", shortID(tokenID))
		return
	}

	token.revoke(now)
	m.logger.Info("authority token revoked", "token_id", shortID(tokenID), "at", now.UTC())

	m.append(audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventAuthorityRevoked,
		Reason:         fmt.Sprintf("token %s revoked", shortID(tokenID)),
		AuthorityValid: audit.Bool(false),
	})
}

// RevokeSessionTokens revokes every token indexed under the session.
func (m *Manager) RevokeSessionTokens(sessionID string, now time.Time) {
	ids := m.bySession[sessionID]
	for _, id := range ids {
		m.RevokeToken(id, now)
	}
	if len(ids) > 0 {
		m.logger.Info("all session tokens revoked", "session_id", sessionID, "count", len(ids))
	}
}

// Token retrieves a token by id.
func (m *Manager) Token(tokenID string) (*Token, bool) {
	t, ok := m.tokens[tokenID]
	return t, ok
}

// SessionTokens returns all tokens issued under a session, in issue order.
func (m *Manager) SessionTokens(sessionID string) []*Token {
	ids := m.bySession[sessionID]
	out := make([]*Token, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.tokens[id])
	}
	return out
}

func (m *Manager) append(e audit.Entry) {
	if m.log == nil {
		return
	}
	if err := m.log.Append(e); err != nil {
		m.logger.Error("audit append failed", "event_type", string(e.EventType), "error", err)
	}
}

// shortID truncates ids for log readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
