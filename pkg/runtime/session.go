// Package runtime composes the state machine, authority manager,
// confirmation manager, and execution guard into one session facade. Hosts
// that do not need custom wiring drive the whole lifecycle through a single
// Session value.
//
// Session is not safe for concurrent use; the host serializes all calls for
// one session.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/selfsession/selfsession/pkg/audit"
	"github.com/selfsession/selfsession/pkg/authority"
	"github.com/selfsession/selfsession/pkg/boundary"
	"github.com/selfsession/selfsession/pkg/capability"
	"github.com/selfsession/selfsession/pkg/confirmation"
	"github.com/selfsession/selfsession/pkg/guard"
	"github.com/selfsession/selfsession/pkg/observability"
	"github.com/selfsession/selfsession/pkg/session"
)

// ErrNoPendingConfirmation is returned by Resume when no checkpoint
// confirmation is outstanding.
var ErrNoPendingConfirmation = errors.New("runtime: no pending confirmation")

// Options configures a Session. Zero durations fall back to defaults; a nil
// Registry disables the capability check, and a zero Scope disables boundary
// tracking.
type Options struct {
	SessionID string
	Clock     audit.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics

	AuthorityTTL    time.Duration
	SessionTTL      time.Duration
	SilenceTimeout  time.Duration
	ConfirmationTTL time.Duration

	Registry *capability.Registry
	Scope    boundary.Context
}

// Defaults for zero-valued Options durations.
const (
	DefaultAuthorityTTL   = 30 * time.Minute
	DefaultSessionTTL     = 30 * time.Minute
	DefaultSilenceTimeout = 5 * time.Minute
)

// Session drives one consent-bounded execution session through its full
// lifecycle: request, consent, execution, checkpoints, and termination.
type Session struct {
	id      string
	clock   audit.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	log           *audit.Log
	machine       *session.StateMachine
	authority     *authority.Manager
	confirmations *confirmation.Manager
	silence       *authority.SilenceTracker
	ttl           *authority.TTLEnforcer
	guard         *guard.Guard
	registry      *capability.Registry
	scope         boundary.Context

	confirmationTTL time.Duration
	authorityTTL    time.Duration

	tokenID string
	pending *confirmation.Token
}

// New builds a Session in S0_INACTIVE with all components sharing one audit
// log and one clock.
func New(opts Options) *Session {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.Clock == nil {
		opts.Clock = audit.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AuthorityTTL <= 0 {
		opts.AuthorityTTL = DefaultAuthorityTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = DefaultSilenceTimeout
	}
	if opts.ConfirmationTTL <= 0 {
		opts.ConfirmationTTL = confirmation.DefaultTTL
	}

	log := audit.NewLog()
	if opts.Metrics != nil {
		metrics, sessionID := opts.Metrics, opts.SessionID
		log.OnAppend(func(e audit.Entry) {
			if e.EventType == audit.EventStateTransition {
				metrics.RecordTransition(context.Background(), sessionID, e.FromState, e.ToState)
			}
		})
	}
	machine := session.NewStateMachine(opts.SessionID, log, opts.Clock, opts.Logger)
	auth := authority.NewManager(log, opts.Clock, opts.Logger)

	return &Session{
		id:              opts.SessionID,
		clock:           opts.Clock,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		log:             log,
		machine:         machine,
		authority:       auth,
		confirmations:   confirmation.NewManager(log, opts.Clock, opts.Logger),
		silence:         authority.NewSilenceTracker(opts.SilenceTimeout, opts.Logger),
		ttl:             authority.NewTTLEnforcer(opts.SessionTTL, opts.Logger),
		guard:           guard.New(machine, auth, "", opts.Logger),
		registry:        opts.Registry,
		scope:           opts.Scope,
		confirmationTTL: opts.ConfirmationTTL,
		authorityTTL:    opts.AuthorityTTL,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() session.State { return s.machine.CurrentState() }

// AuditLog returns the session's audit log.
func (s *Session) AuditLog() *audit.Log { return s.log }

// Authority returns the authority manager, for hosts that inspect tokens.
func (s *Session) Authority() *authority.Manager { return s.authority }

// Confirmations returns the confirmation manager.
func (s *Session) Confirmations() *confirmation.Manager { return s.confirmations }

// PendingConfirmation returns the outstanding checkpoint confirmation, if any.
func (s *Session) PendingConfirmation() *confirmation.Token { return s.pending }

// Request moves S0 to S1: the agent has asked for a session and is waiting
// for the user. The ask itself counts as a user-visible event, not a user
// action.
func (s *Session) Request(reason string) error {
	return s.machine.Transition(session.StateSessionRequested, reason, nil)
}

// Dismiss moves S1 back to S0: the user declined or the request timed out.
func (s *Session) Dismiss(reason string) error {
	return s.machine.Transition(session.StateInactive, reason, audit.Bool(false))
}

// GrantConsent moves S1 to S2, issues the session's authority token, starts
// the TTL countdown, and records the grant as a user action.
func (s *Session) GrantConsent(reason string) error {
	if err := s.machine.Transition(session.StateConsentGranted, reason, audit.Bool(true)); err != nil {
		return err
	}

	now := s.clock.Now()
	token := s.authority.IssueToken(s.id, s.authorityTTL, "session")
	s.tokenID = token.ID
	s.guard.SetToken(token.ID)
	s.ttl.Initialize(now)
	s.silence.RecordUserAction(now)
	return nil
}

// BeginExecution moves S2 to S3.
func (s *Session) BeginExecution(reason string) error {
	return s.machine.Transition(session.StateExecuting, reason, audit.Bool(true))
}

// ExecuteStep runs the execution guard for one capability invocation and, on
// success, appends an EXECUTION_STEP entry. Confidence nil means not
// monitored. The returned error is a guard.ViolationError when any guard
// condition fails; the caller must not perform the step.
func (s *Session) ExecuteStep(ctx context.Context, capabilityID string, current boundary.Context, confidence *float64) error {
	now := s.clock.Now()
	req := guard.StepRequest{
		CapabilityID: capabilityID,
		Now:          now,
		TTL:          s.ttl,
		Silence:      s.silence,
		Registry:     s.registry,
		Confidence:   confidence,
	}
	if !s.scope.IsZero() {
		req.Boundary = &boundary.Check{Current: current, Session: s.scope}
	}

	err := s.guard.EnforceHaltOnFailure(req)
	var violation *guard.ViolationError
	if errors.As(err, &violation) {
		s.metrics.RecordGuardEvaluation(ctx, s.id, capabilityID, false, violation.Failed)
		return err
	}
	if err != nil {
		return err
	}

	s.metrics.RecordGuardEvaluation(ctx, s.id, capabilityID, true, nil)

	entry := audit.Entry{
		Timestamp:      now,
		EventType:      audit.EventExecutionStep,
		FromState:      string(s.machine.CurrentState()),
		Reason:         fmt.Sprintf("capability %s executed", capabilityID),
		AuthorityValid: audit.Bool(true),
		Extra: map[string]interface{}{
			"capability_id": capabilityID,
		},
	}
	if err := s.log.Append(entry); err != nil {
		s.logger.Error("audit append failed", "event_type", string(entry.EventType), "error", err)
	}
	return nil
}

// RecordMutation appends a STATE_MUTATION entry describing a change the
// agent made to host state during execution.
func (s *Session) RecordMutation(target, description string) {
	entry := audit.Entry{
		Timestamp: s.clock.Now(),
		EventType: audit.EventStateMutation,
		FromState: string(s.machine.CurrentState()),
		Reason:    description,
		Extra: map[string]interface{}{
			"target": target,
		},
	}
	if err := s.log.Append(entry); err != nil {
		s.logger.Error("audit append failed", "event_type", string(entry.EventType), "error", err)
	}
}

// TriggerCheckpoint moves S3 to S4 and issues a confirmation challenge for
// the checkpoint. An empty type selects one at random, which is the normal
// mode: varying the challenge prevents habituation.
func (s *Session) TriggerCheckpoint(reason string, t confirmation.Type) (*confirmation.Token, error) {
	if t == "" {
		var err error
		t, err = confirmation.RandomType()
		if err != nil {
			return nil, err
		}
	}

	if err := s.machine.Transition(session.StateACCCheckpoint, reason, audit.Bool(true)); err != nil {
		return nil, err
	}

	token, err := s.confirmations.IssueConfirmation(s.id, uuid.New().String(), t, s.confirmationTTL)
	if err != nil {
		return nil, err
	}
	s.pending = token
	return token, nil
}

// Resume validates the user's response to the pending checkpoint
// confirmation. A valid response moves S4 back to S3 and counts as a user
// action; an invalid one leaves the session at the checkpoint with the token
// burned, and the host must issue a fresh challenge or halt.
func (s *Session) Resume(userResponse string) (bool, error) {
	if s.pending == nil {
		return false, ErrNoPendingConfirmation
	}

	now := s.clock.Now()
	valid := s.confirmations.ValidateConfirmation(s.pending.ID, userResponse, now)
	s.metrics.RecordConfirmation(context.Background(), s.id, string(s.pending.Type), valid)
	s.pending = nil

	if !valid {
		return false, nil
	}

	if err := s.machine.Transition(session.StateExecuting, "checkpoint confirmed", audit.Bool(true)); err != nil {
		return false, err
	}
	s.silence.RecordUserAction(now)
	return true, nil
}

// Pause moves S4 to S5: the checkpoint went unanswered but the session is
// preserved rather than torn down.
func (s *Session) Pause(reason string) error {
	return s.machine.Transition(session.StatePaused, reason, nil)
}

// Reengage moves S5 back to S4 and issues a fresh confirmation challenge.
// Returning from a pause always goes through a checkpoint, never straight to
// execution.
func (s *Session) Reengage(reason string) (*confirmation.Token, error) {
	if err := s.machine.Transition(session.StateACCCheckpoint, reason, nil); err != nil {
		return nil, err
	}

	t, err := confirmation.RandomType()
	if err != nil {
		return nil, err
	}
	token, err := s.confirmations.IssueConfirmation(s.id, uuid.New().String(), t, s.confirmationTTL)
	if err != nil {
		return nil, err
	}
	s.pending = token
	return token, nil
}

// Halt moves the session to S6 and revokes every authority and confirmation
// token issued under it. Nothing issued before the halt survives it.
func (s *Session) Halt(reason string) error {
	if err := s.machine.Transition(session.StateHalted, reason, audit.Bool(false)); err != nil {
		return err
	}

	now := s.clock.Now()
	s.authority.RevokeSessionTokens(s.id, now)
	s.confirmations.RevokeSessionTokens(s.id, now)
	s.pending = nil
	s.tokenID = ""
	s.guard.SetToken("")

	s.logger.Warn("session halted", "session_id", s.id, "reason", reason)
	return nil
}

// Complete moves S3 to S7: the task finished normally. The authority token
// is revoked; completed sessions hold no residual authority.
func (s *Session) Complete(reason string) error {
	if err := s.machine.Transition(session.StateCompleted, reason, audit.Bool(true)); err != nil {
		return err
	}
	s.authority.RevokeSessionTokens(s.id, s.clock.Now())
	s.tokenID = ""
	s.guard.SetToken("")
	return nil
}

// Reset moves a terminal session (S6 or S7) back to S0 so the same id can
// host a future session. The audit log is never reset.
func (s *Session) Reset(reason string) error {
	return s.machine.Transition(session.StateInactive, reason, nil)
}

// RecordUserAction marks explicit user activity at the session clock's now,
// feeding the silence tracker.
func (s *Session) RecordUserAction() {
	s.silence.RecordUserAction(s.clock.Now())
}

// TimeRemaining returns the remaining session TTL, zero before consent.
func (s *Session) TimeRemaining() time.Duration {
	return s.ttl.Remaining(s.clock.Now())
}
