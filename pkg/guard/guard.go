// Package guard composes the state machine, authority manager, and session
// monitors into one conjunctive go/no-go decision per execution step. The
// guard holds no cached verdicts: every call evaluates every condition
// fresh, because any of them may have changed since the last step.
package guard

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/selfsession/selfsession/pkg/audit"
	"github.com/selfsession/selfsession/pkg/authority"
	"github.com/selfsession/selfsession/pkg/boundary"
	"github.com/selfsession/selfsession/pkg/capability"
	"github.com/selfsession/selfsession/pkg/session"
)

// Condition names, as they appear in audit entries. A halt's cause is
// reconstructable from these alone.
const (
	CondExecutingState = "in_executing_state"
	CondAuthorityValid = "authority_valid"
	CondTTLValid       = "ttl_valid"
	CondSilence        = "silence_not_exceeded"
	CondBoundary       = "boundary_not_crossed"
	CondCapability     = "capability_in_registry"
	CondConfidence     = "confidence_not_degraded"
)

// ConfidenceThreshold is the score below which the system is considered
// degraded (unexpected API results, misalignment signals).
const ConfidenceThreshold = 0.5

// ViolationError is a fatal per-step contract violation from
// EnforceHaltOnFailure. The caller must not perform the guarded action;
// recovery requires re-entering through a proper state path, never a retry.
type ViolationError struct {
	CapabilityID string
	Failed       []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("execution guard violation: cannot execute %s (failed: %s)",
		e.CapabilityID, strings.Join(e.Failed, ", "))
}

// StepRequest carries everything the guard needs for one step decision.
// Optional monitors that are nil pass vacuously: omitting a monitor disables
// its check, it does not fail it. The caller is responsible for supplying
// every monitor relevant to the deployment.
type StepRequest struct {
	CapabilityID string
	Now          time.Time

	TTL      *authority.TTLEnforcer
	Silence  *authority.SilenceTracker
	Registry *capability.Registry
	Boundary *boundary.Check

	// Confidence is the current system confidence score; nil means not
	// monitored (treated as 1.0).
	Confidence *float64
}

// Confidence wraps a score for StepRequest.Confidence.
func Confidence(score float64) *float64 { return &score }

// Guard evaluates the seven execution preconditions for one session.
type Guard struct {
	machine   *session.StateMachine
	authority *authority.Manager
	tokenID   string
	logger    *slog.Logger
}

// New creates a Guard. tokenID may be empty until an authority token is
// issued; SetToken installs it later.
func New(machine *session.StateMachine, auth *authority.Manager, tokenID string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{machine: machine, authority: auth, tokenID: tokenID, logger: logger}
}

// SetToken installs the authority token the guard validates on each step.
func (g *Guard) SetToken(tokenID string) { g.tokenID = tokenID }

// CanExecuteStep evaluates all seven conditions. It returns true only when
// every condition holds; on any failure it appends one
// EXECUTION_GUARD_FAILED entry naming every failed condition and returns
// false. It never partially passes.
func (g *Guard) CanExecuteStep(req StepRequest) bool {
	ok, _ := g.check(req)
	return ok
}

// EnforceHaltOnFailure evaluates the guard and returns ViolationError when
// any condition fails. The caller must treat the error as fatal for the
// step: the guarded action must not run until the underlying condition is
// corrected through a proper state path.
func (g *Guard) EnforceHaltOnFailure(req StepRequest) error {
	ok, failed := g.check(req)
	if ok {
		return nil
	}
	return &ViolationError{CapabilityID: req.CapabilityID, Failed: failed}
}

// check runs every condition once and, on failure, logs and appends the
// single EXECUTION_GUARD_FAILED entry.
func (g *Guard) check(req StepRequest) (bool, []string) {
	var failed []string
	for _, c := range []struct {
		name string
		ok   bool
	}{
		{CondExecutingState, g.checkExecutingState()},
		{CondAuthorityValid, g.checkAuthority(req.Now)},
		{CondTTLValid, checkTTL(req.TTL, req.Now)},
		{CondSilence, checkSilence(req.Silence, req.Now)},
		{CondBoundary, checkBoundary(req.Boundary)},
		{CondCapability, checkCapability(req.Registry, req.CapabilityID)},
		{CondConfidence, checkConfidence(req.Confidence)},
	} {
		if !c.ok {
			failed = append(failed, c.name)
		}
	}

	if len(failed) == 0 {
		return true, nil
	}

	g.logger.Error("execution guard failed",
		"capability_id", req.CapabilityID,
		"failed_conditions", strings.Join(failed, ", "))

	entry := audit.Entry{
		Timestamp:      req.Now,
		EventType:      audit.EventExecutionGuardFailed,
		FromState:      string(g.machine.CurrentState()),
		Reason:         "conditions failed: " + strings.Join(failed, ", "),
		AuthorityValid: audit.Bool(false),
		Extra: map[string]interface{}{
			"capability_id":     req.CapabilityID,
			"failed_conditions": failed,
		},
	}
	if err := g.machine.AuditLog().Append(entry); err != nil {
		g.logger.Error("audit append failed", "event_type", string(entry.EventType), "error", err)
	}
	return false, failed
}

// Condition 1: the session must be in S3_EXECUTING.
func (g *Guard) checkExecutingState() bool {
	ok := g.machine.CurrentState() == session.StateExecuting
	if !ok {
		g.logger.Warn("guard: not in executing state", "current", string(g.machine.CurrentState()))
	}
	return ok
}

// Condition 2: an authority token must be present and valid. Validation
// goes through the manager, so a known token id also appends its own
// AUTHORITY_CHECK entry.
func (g *Guard) checkAuthority(now time.Time) bool {
	if g.tokenID == "" {
		g.logger.Warn("guard: no authority token")
		return false
	}
	valid := g.authority.ValidateToken(g.tokenID, now)
	if !valid {
		g.logger.Warn("guard: authority token invalid or expired")
	}
	return valid
}

// Condition 3: the session TTL must not be exceeded.
func checkTTL(ttl *authority.TTLEnforcer, now time.Time) bool {
	if ttl == nil {
		return true
	}
	return !ttl.IsExpired(now)
}

// Condition 4: the silence timeout must not be exceeded.
func checkSilence(tracker *authority.SilenceTracker, now time.Time) bool {
	if tracker == nil {
		return true
	}
	return !tracker.CheckSilence(now)
}

// Condition 5: the context boundary must not have changed.
func checkBoundary(check *boundary.Check) bool {
	if check == nil || check.Current.IsZero() {
		return true
	}
	return !check.Crossed()
}

// Condition 6: the requested capability must be in the approved registry.
func checkCapability(registry *capability.Registry, capabilityID string) bool {
	if registry == nil {
		return true
	}
	return registry.Contains(capabilityID)
}

// Condition 7: system confidence must not be degraded below threshold.
func checkConfidence(score *float64) bool {
	if score == nil {
		return true
	}
	return *score >= ConfidenceThreshold
}
