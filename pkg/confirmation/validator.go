package confirmation

// Validator checks that a confirmation mechanism meets the non-reflexive
// consent requirements: no simple clicks, deliberate engagement, single-use
// and cryptographically bound.
type Validator struct{}

// IsNonReflexive reports whether a confirmation type prevents reflexive or
// habitual responses. Every implemented type qualifies; a plain click/tap
// type is deliberately not implemented.
func (Validator) IsNonReflexive(t Type) bool {
	switch t {
	case TypeCode, VoicePhrase, DeliberateGesture, ArticulatedUnderstanding:
		return true
	}
	return false
}

// IsReplayProtected reports whether a token carries the three replay
// protections: single-use status, a bound response hash, and a TTL.
func (Validator) IsReplayProtected(t *Token) bool {
	return t != nil && t.ChallengeHash != "" && t.TTL > 0
}
