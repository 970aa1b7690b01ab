package session

import (
	"log/slog"

	"github.com/selfsession/selfsession/pkg/audit"
)

// StateMachine owns the current state of one session and enforces the
// transition graph. Every successful transition and every authority check
// appends exactly one audit entry; rejected transitions append nothing.
//
// StateMachine is not safe for concurrent use; within a session all mutating
// calls are serialized by the caller.
type StateMachine struct {
	sessionID string
	current   State
	log       *audit.Log
	clock     audit.Clock
	logger    *slog.Logger
}

// NewStateMachine creates a state machine in S0_INACTIVE. A nil log gets a
// fresh audit log; nil clock and logger fall back to system defaults.
func NewStateMachine(sessionID string, log *audit.Log, clock audit.Clock, logger *slog.Logger) *StateMachine {
	if log == nil {
		log = audit.NewLog()
	}
	if clock == nil {
		clock = audit.SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		sessionID: sessionID,
		current:   StateInactive,
		log:       log,
		clock:     clock,
		logger:    logger,
	}
}

// SessionID returns the id of the session this machine governs.
func (m *StateMachine) SessionID() string { return m.sessionID }

// CurrentState returns the current state.
func (m *StateMachine) CurrentState() State { return m.current }

// AuditLog returns the session's audit log.
func (m *StateMachine) AuditLog() *audit.Log { return m.log }

// Transition attempts a state transition. If the transition is not in the
// legal graph it returns IllegalTransitionError with state unchanged and no
// audit entry written. On success the transition is logged first, then the
// state mutates.
func (m *StateMachine) Transition(to State, reason string, authorityValid *bool) error {
	if !CanTransition(m.current, to) {
		return &IllegalTransitionError{From: m.current, To: to, Reason: reason}
	}

	from := m.current
	entry := audit.Entry{
		Timestamp:      m.clock.Now(),
		EventType:      audit.EventStateTransition,
		FromState:      string(from),
		ToState:        string(to),
		Reason:         reason,
		AuthorityValid: authorityValid,
	}
	if err := m.log.Append(entry); err != nil {
		return err
	}

	m.current = to
	m.logger.Info("session transition",
		"session_id", m.sessionID,
		"from", string(from),
		"to", string(to),
		"reason", reason)
	return nil
}

// CheckCanExecute reports whether execution may proceed: only true in
// S3_EXECUTING. Every call appends an AUTHORITY_CHECK entry regardless of
// outcome, so polling this grows the log.
func (m *StateMachine) CheckCanExecute() bool {
	ok := m.current == StateExecuting
	entry := audit.Entry{
		Timestamp:      m.clock.Now(),
		EventType:      audit.EventAuthorityCheck,
		FromState:      string(m.current),
		Reason:         "can_execute check",
		AuthorityValid: audit.Bool(ok),
	}
	if err := m.log.Append(entry); err != nil {
		m.logger.Error("audit append failed", "session_id", m.sessionID, "error", err)
	}
	return ok
}

// Pure state predicates; no side effects.

func (m *StateMachine) IsExecuting() bool  { return m.current == StateExecuting }
func (m *StateMachine) IsPaused() bool     { return m.current == StatePaused }
func (m *StateMachine) IsHalted() bool     { return m.current == StateHalted }
func (m *StateMachine) IsCheckpoint() bool { return m.current == StateACCCheckpoint }
func (m *StateMachine) IsInactive() bool   { return m.current == StateInactive }
