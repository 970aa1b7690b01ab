// Package session implements the S0–S7 session state machine. Every
// transition is explicit, enumerated, and logged; illegal transitions are
// rejected before any mutation. The UX layer cannot override this.
package session

import "fmt"

// State is a canonical session state.
type State string

const (
	StateInactive         State = "S0_INACTIVE"
	StateSessionRequested State = "S1_SESSION_REQUESTED"
	StateConsentGranted   State = "S2_CONSENT_GRANTED"
	StateExecuting        State = "S3_EXECUTING"
	StateACCCheckpoint    State = "S4_ACC_CHECKPOINT"
	StatePaused           State = "S5_PAUSED"
	StateHalted           State = "S6_HALTED"
	StateCompleted        State = "S7_COMPLETED"
)

// States lists all canonical states in order.
func States() []State {
	return []State{
		StateInactive,
		StateSessionRequested,
		StateConsentGranted,
		StateExecuting,
		StateACCCheckpoint,
		StatePaused,
		StateHalted,
		StateCompleted,
	}
}

// legalTargets enumerates the full transition graph. The switch is
// exhaustive over all states; adding a state without defining its edges
// makes every transition from it illegal rather than silently permitted.
func legalTargets(from State) []State {
	switch from {
	case StateInactive:
		return []State{StateSessionRequested}
	case StateSessionRequested:
		// Dismissed/timeout back to inactive, or explicit confirmation.
		return []State{StateInactive, StateConsentGranted}
	case StateConsentGranted:
		// Revoke before execution, begin executing, or revoke-to-halt.
		return []State{StateInactive, StateExecuting, StateHalted}
	case StateExecuting:
		return []State{StateACCCheckpoint, StateHalted, StateCompleted}
	case StateACCCheckpoint:
		return []State{StateExecuting, StatePaused, StateHalted}
	case StatePaused:
		// Re-engagement, revocation, or TTL expiration.
		return []State{StateACCCheckpoint, StateHalted, StateInactive}
	case StateHalted:
		return []State{StateInactive}
	case StateCompleted:
		return []State{StateInactive}
	}
	return nil
}

// CanTransition reports whether from → to is in the legal transition graph.
func CanTransition(from, to State) bool {
	for _, t := range legalTargets(from) {
		if t == to {
			return true
		}
	}
	return false
}

// LegalTransitionsFrom returns the set of legal target states from a state.
func LegalTransitionsFrom(from State) []State {
	targets := legalTargets(from)
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// IllegalTransitionError is a fatal contract violation: an attempted
// transition outside the enumerated graph. It is raised before any mutation
// and must propagate; callers never silently swallow it.
type IllegalTransitionError struct {
	From   State
	To     State
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s → %s (reason: %s): contract violation", e.From, e.To, e.Reason)
}
