// Package confirmation implements single-use, cryptographically bound
// confirmation challenges for Active Consent Checkpoints. Challenge types
// are varied to prevent habituation: each one forces deliberate engagement
// rather than a reflexive tap.
package confirmation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Type classifies a confirmation method.
type Type string

const (
	// TypeCode requires the user to retype a displayed one-time code.
	TypeCode Type = "TYPE_CODE"
	// VoicePhrase requires the user to utter a specific phrase verbatim.
	VoicePhrase Type = "VOICE_PHRASE"
	// DeliberateGesture requires an intentional physical gesture.
	DeliberateGesture Type = "DELIBERATE_GESTURE"
	// ArticulatedUnderstanding requires the user to explain in their own
	// words; validation is semantic, never an automatic hash comparison.
	ArticulatedUnderstanding Type = "ARTICULATED_UNDERSTANDING"
)

// Types lists every confirmation type.
func Types() []Type {
	return []Type{TypeCode, VoicePhrase, DeliberateGesture, ArticulatedUnderstanding}
}

// RandomType picks a confirmation type uniformly at random. Varying the type
// across checkpoints is what prevents habituation.
func RandomType() (Type, error) {
	types := Types()
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(types))))
	if err != nil {
		return "", fmt.Errorf("confirmation: entropy source: %w", err)
	}
	return types[n.Int64()], nil
}

// semanticValidationSentinel is hashed into tokens whose responses require
// external semantic validation. Automatic comparison against it always
// fails; it is not a supported automatic path.
const semanticValidationSentinel = "REQUIRES_SEMANTIC_VALIDATION"

// SentinelHash is the stored challenge hash for ARTICULATED_UNDERSTANDING
// tokens.
var SentinelHash = HashResponse(semanticValidationSentinel)

// HashResponse returns the hex SHA-256 digest of a response string.
func HashResponse(response string) string {
	sum := sha256.Sum256([]byte(response))
	return hex.EncodeToString(sum[:])
}

var voicePhrases = []string{
	"i want to continue",
	"yes i understand",
	"lets keep going",
	"im still here",
	"i approve of this",
	"continue the mix",
	"proceed please",
	"this looks good",
}

var gestures = []string{
	"double_tap_center",
	"swipe_up_then_down",
	"pinch_expand",
	"long_press_3sec",
	"tap_top_left",
}

var understandingQuestions = []string{
	"Why are you continuing this session? (explain in 3+ words)",
	"What will happen next? (summarize in your own words)",
	"Are you sure you want to proceed? (say yes or no with reason)",
}

// GenerateChallenge builds the challenge payload and expected response hash
// for the given type.
func GenerateChallenge(t Type) (payload, hash string, err error) {
	switch t {
	case TypeCode:
		return generateTypeCode()
	case VoicePhrase:
		return generateVoicePhrase()
	case DeliberateGesture:
		return generateGesture()
	case ArticulatedUnderstanding:
		return generateUnderstanding()
	default:
		return "", "", fmt.Errorf("unknown confirmation type: %s", t)
	}
}

// generateTypeCode builds a random 6-character code the user must retype.
// Pattern: 2 letters, 1 digit, 2 letters, 1 digit.
func generateTypeCode() (string, string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"

	parts := []string{letters, letters, digits, letters, letters, digits}
	code := make([]byte, 0, len(parts))
	for _, alphabet := range parts {
		c, err := pick(alphabet)
		if err != nil {
			return "", "", err
		}
		code = append(code, c)
	}

	payload := fmt.Sprintf("Type this code to continue: %s", code)
	return payload, HashResponse(string(code)), nil
}

// generateVoicePhrase picks a phrase the user must say. Requires
// articulation, not silence.
func generateVoicePhrase() (string, string, error) {
	phrase, err := choose(voicePhrases)
	if err != nil {
		return "", "", err
	}
	payload := fmt.Sprintf("Say this to continue: %q", phrase)
	return payload, HashResponse(phrase), nil
}

// generateGesture picks a gesture identifier requiring physical deliberation.
func generateGesture() (string, string, error) {
	gesture, err := choose(gestures)
	if err != nil {
		return "", "", err
	}
	payload := fmt.Sprintf("Gesture: %s", gesture)
	return payload, HashResponse(gesture), nil
}

// generateUnderstanding picks a free-form question. No response hash can be
// precomputed, so the sentinel hash is stored instead.
func generateUnderstanding() (string, string, error) {
	question, err := choose(understandingQuestions)
	if err != nil {
		return "", "", err
	}
	payload := fmt.Sprintf("Answer this: %s", question)
	return payload, SentinelHash, nil
}

func choose(options []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(options))))
	if err != nil {
		return "", fmt.Errorf("confirmation: entropy source: %w", err)
	}
	return options[n.Int64()], nil
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("confirmation: entropy source: %w", err)
	}
	return alphabet[n.Int64()], nil
}
