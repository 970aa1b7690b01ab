package confirmation

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/selfsession/selfsession/pkg/audit"
)

// DefaultTTL is the token lifetime used when the caller does not override it.
const DefaultTTL = 5 * time.Minute

// Manager issues and validates ACC confirmation tokens. Every confirmation
// is single-use, cryptographically bound, non-reflexive, and audited.
//
// Manager is not safe for concurrent use; callers serialize access per
// session.
type Manager struct {
	tokens  map[string]*Token
	byEvent map[string][]string
	log     *audit.Log
	clock   audit.Clock
	logger  *slog.Logger
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
		tokens:  make(map[string]*Token),
		byEvent: make(map[string][]string),
		log:     log,
		clock:   clock,
		logger:  logger,
	}
}

// IssueConfirmation builds a challenge of the given type and stores a fresh
// single-use token for the ACC event. ttl <= 0 selects DefaultTTL. The
// token's lifetime is its own, not the session TTL.
func (m *Manager) IssueConfirmation(sessionID, accEventID string, t Type, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	payload, hash, err := GenerateChallenge(t)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	token := &Token{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		ACCEventID:       accEventID,
		Type:             t,
		IssuedAt:         now,
		TTL:              ttl,
		ChallengePayload: payload,
		ChallengeHash:    hash,
		Status:           StatusActive,
	}

	m.tokens[token.ID] = token
	m.byEvent[accEventID] = append(m.byEvent[accEventID], token.ID)

	m.logger.Info("confirmation token issued",
		"session_id", sessionID,
		"token_id", shortID(token.ID),
		"type", string(t),
		"ttl", ttl.String())

	m.append(audit.Entry{
		Timestamp: now,
		EventType: audit.EventConfirmationTokenIssued,
		Reason:    fmt.Sprintf("ACC token %s issued for event %s", shortID(token.ID), shortID(accEventID)),
		Extra: map[string]interface{}{
			"token_id":          shortID(token.ID),
			"acc_event_id":      shortID(accEventID),
			"confirmation_type": string(t),
		},
	})
	return token, nil
}

// ValidateConfirmation checks a user response against its token. A token can
// only ever produce one authoritative outcome: the first legitimate
// validation wins, and any attempt on an active token consumes it.
// Unknown ids return false with no mutation.
func (m *Manager) ValidateConfirmation(tokenID, userResponse string, now time.Time) bool {
	token, ok := m.tokens[tokenID]
	if !ok {
		m.logger.Warn("validation failed: unknown token", "token_id", shortID(tokenID))
		return false
	}

	if token.Status != StatusActive {
		// Replay of a consumed or revoked token. The recorded outcome of
		// the first use is never overwritten.
		m.logger.Warn("validation failed: token already consumed", "token_id", shortID(tokenID))
		m.appendValidated(token, false, "replay on consumed token", now)
		return false
	}

	if token.IsExpired(now) {
		m.logger.Warn("validation failed: token expired", "token_id", shortID(tokenID))
		token.consume(false, now, StatusConsumed)
		m.appendValidated(token, false, "token expired", now)
		return false
	}

	responseHash := HashResponse(userResponse)
	valid := subtle.ConstantTimeCompare([]byte(responseHash), []byte(token.ChallengeHash)) == 1
	if token.ChallengeHash == SentinelHash {
		// Semantic validation tokens have no automatic path; even a
		// response that happens to hash to the sentinel must not pass.
		valid = false
	}

	token.consume(valid, now, StatusConsumed)

	if valid {
		m.logger.Info("confirmation validated", "token_id", shortID(tokenID), "type", string(token.Type))
	} else {
		m.logger.Warn("confirmation rejected: response mismatch", "token_id", shortID(tokenID))
	}
	m.appendValidated(token, valid, fmt.Sprintf("response validation: %t", valid), now)
	return valid
}

// RevokeToken forces a token permanently unusable, e.g. on session halt.
// Unknown ids are a warned no-op.
func (m *Manager) RevokeToken(tokenID string, now time.Time) {
	token, ok := m.tokens[tokenID]
	if !ok {
		m.logger.Warn("revoke failed: unknown token", "token_id", shortID(tokenID))
		return
	}

	token.consume(false, now, StatusRevoked)
	m.logger.Info("confirmation token revoked", "token_id", shortID(tokenID))

	m.append(audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventConfirmationTokenRevoked,
		Reason:         fmt.Sprintf("token %s revoked", shortID(tokenID)),
		AuthorityValid: audit.Bool(false),
	})
}

// RevokeSessionTokens voids every still-active token issued under the
// session, leaving no confirmation usable after a halt.
func (m *Manager) RevokeSessionTokens(sessionID string, now time.Time) {
	for _, token := range m.tokens {
		if token.SessionID == sessionID && token.Status == StatusActive {
			m.RevokeToken(token.ID, now)
		}
	}
}

// Token retrieves a token by id.
func (m *Manager) Token(tokenID string) (*Token, bool) {
	t, ok := m.tokens[tokenID]
	return t, ok
}

// TokensForEvent returns every token issued for an ACC event, in issue order.
func (m *Manager) TokensForEvent(accEventID string) []*Token {
	ids := m.byEvent[accEventID]
	out := make([]*Token, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.tokens[id])
	}
	return out
}

func (m *Manager) appendValidated(token *Token, valid bool, reason string, now time.Time) {
	m.append(audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventConfirmationValidated,
		Reason:         fmt.Sprintf("token %s: %s (%s)", shortID(token.ID), reason, token.Type),
		AuthorityValid: audit.Bool(valid),
		Extra: map[string]interface{}{
			"token_id":          shortID(token.ID),
			"confirmation_type": string(token.Type),
			"valid":             valid,
		},
	})
}

func (m *Manager) append(e audit.Entry) {
	if m.log == nil {
		return
	}
	if err := m.log.Append(e); err != nil {
		m.logger.Error("audit append failed", "event_type", string(e.EventType), "error", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
