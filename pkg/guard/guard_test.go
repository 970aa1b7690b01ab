package guard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfsession/selfsession/pkg/audit"
	"github.com/selfsession/selfsession/pkg/authority"
	"github.com/selfsession/selfsession/pkg/boundary"
	"github.com/selfsession/selfsession/pkg/capability"
	"github.com/selfsession/selfsession/pkg/guard"
	"github.com/selfsession/selfsession/pkg/session"
)

// fixedClock is a test clock that returns a controllable time.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	guard   *guard.Guard
	machine *session.StateMachine
	auth    *authority.Manager
	log     *audit.Log
	clk     *fixedClock
	token   *authority.Token
}

// newHarness builds a session in S3_EXECUTING with a valid 30-minute
// authority token.
func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &fixedClock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	log := audit.NewLog()
	machine := session.NewStateMachine("sess-1", log, clk, nil)
	auth := authority.NewManager(log, clk, nil)

	for _, s := range []session.State{session.StateSessionRequested, session.StateConsentGranted, session.StateExecuting} {
		require.NoError(t, machine.Transition(s, "setup", nil))
	}
	token := auth.IssueToken("sess-1", 30*time.Minute, "session")

	return &harness{
		guard:   guard.New(machine, auth, token.ID, nil),
		machine: machine,
		auth:    auth,
		log:     log,
		clk:     clk,
		token:   token,
	}
}

func (h *harness) request(capabilityID string) guard.StepRequest {
	return guard.StepRequest{CapabilityID: capabilityID, Now: h.clk.Now()}
}

func guardFailures(log *audit.Log) []audit.Entry {
	return log.EntriesByType(audit.EventExecutionGuardFailed)
}

func TestAllConditionsPass(t *testing.T) {
	h := newHarness(t)

	ttl := authority.NewTTLEnforcer(30*time.Minute, nil)
	ttl.Initialize(h.clk.Now())
	silence := authority.NewSilenceTracker(5*time.Minute, nil)
	silence.RecordUserAction(h.clk.Now())
	registry := capability.NewRegistry("edit_file")

	req := h.request("edit_file")
	req.TTL = ttl
	req.Silence = silence
	req.Registry = registry
	req.Boundary = &boundary.Check{
		Current: boundary.Context{Tool: "editor"},
		Session: boundary.Context{Tool: "editor"},
	}
	req.Confidence = guard.Confidence(0.9)

	assert.True(t, h.guard.CanExecuteStep(req))
	assert.NoError(t, h.guard.EnforceHaltOnFailure(req))
	assert.Empty(t, guardFailures(h.log))
}

func TestNilMonitorsPassVacuously(t *testing.T) {
	h := newHarness(t)
	assert.True(t, h.guard.CanExecuteStep(h.request("anything")))
}

func TestNotExecutingState(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.machine.Transition(session.StateACCCheckpoint, "checkpoint", nil))

	assert.False(t, h.guard.CanExecuteStep(h.request("edit_file")))

	failures := guardFailures(h.log)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Extra["failed_conditions"], "in_executing_state")
}

func TestExpiredAuthority(t *testing.T) {
	h := newHarness(t)
	h.clk.Advance(31 * time.Minute)

	err := h.guard.EnforceHaltOnFailure(h.request("edit_file"))
	require.Error(t, err)

	var violation *guard.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, []string{"authority_valid"}, violation.Failed)
	assert.Equal(t, "edit_file", violation.CapabilityID)
}

func TestRevokedAuthority(t *testing.T) {
	h := newHarness(t)
	h.auth.RevokeToken(h.token.ID, h.clk.Now())

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(h.request("edit_file")), &violation)
	assert.Equal(t, []string{"authority_valid"}, violation.Failed)
}

func TestMissingToken(t *testing.T) {
	h := newHarness(t)
	h.guard.SetToken("")

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(h.request("edit_file")), &violation)
	assert.Equal(t, []string{"authority_valid"}, violation.Failed)
}

func TestSessionTTLExpired(t *testing.T) {
	h := newHarness(t)
	ttl := authority.NewTTLEnforcer(10*time.Minute, nil)
	ttl.Initialize(h.clk.Now())
	h.clk.Advance(10 * time.Minute)

	req := h.request("edit_file")
	req.TTL = ttl

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{"ttl_valid"}, violation.Failed)
}

func TestSilenceExceeded(t *testing.T) {
	h := newHarness(t)
	// No user action was ever recorded: conservatively silent.
	req := h.request("edit_file")
	req.Silence = authority.NewSilenceTracker(5*time.Minute, nil)

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{"silence_not_exceeded"}, violation.Failed)
}

func TestBoundaryCrossed(t *testing.T) {
	h := newHarness(t)
	req := h.request("edit_file")
	req.Boundary = &boundary.Check{
		Current: boundary.Context{Tool: "browser"},
		Session: boundary.Context{Tool: "editor"},
	}

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{"boundary_not_crossed"}, violation.Failed)
}

func TestCapabilityNotApproved(t *testing.T) {
	h := newHarness(t)
	req := h.request("delete_repo")
	req.Registry = capability.NewRegistry("read_file", "edit_file")

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{"capability_in_registry"}, violation.Failed)
}

func TestConfidenceDegraded(t *testing.T) {
	h := newHarness(t)

	req := h.request("edit_file")
	req.Confidence = guard.Confidence(0.3)

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{"confidence_not_degraded"}, violation.Failed)

	// Exactly at the threshold is not degraded.
	req.Confidence = guard.Confidence(0.5)
	assert.NoError(t, h.guard.EnforceHaltOnFailure(req))
}

func TestMultipleFailuresReportedTogether(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.machine.Transition(session.StateHalted, "halt", nil))
	h.auth.RevokeToken(h.token.ID, h.clk.Now())

	req := h.request("delete_repo")
	req.Registry = capability.NewRegistry("edit_file")
	req.Confidence = guard.Confidence(0.1)

	var violation *guard.ViolationError
	require.ErrorAs(t, h.guard.EnforceHaltOnFailure(req), &violation)
	assert.Equal(t, []string{
		"in_executing_state",
		"authority_valid",
		"capability_in_registry",
		"confidence_not_degraded",
	}, violation.Failed)
	assert.Contains(t, violation.Error(), "cannot execute delete_repo")

	failures := guardFailures(h.log)
	require.Len(t, failures, 1)
	assert.Equal(t, "delete_repo", failures[0].Extra["capability_id"])
}

func TestEachFailureAppendsOneEntry(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.machine.Transition(session.StateHalted, "halt", nil))

	require.False(t, h.guard.CanExecuteStep(h.request("edit_file")))
	require.Error(t, h.guard.EnforceHaltOnFailure(h.request("edit_file")))

	assert.Len(t, guardFailures(h.log), 2)
}
