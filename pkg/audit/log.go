// Package audit implements the append-only, ordered record of every
// state-changing or authority-deciding event in a session. The log is the
// proof layer: if it's not logged, it didn't happen. Entries are hash-chained
// over their RFC 8785 canonical form so tampering is detectable after the
// fact.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// EventType tags an audit entry with the kind of event it records.
type EventType string

const (
	EventStateTransition          EventType = "STATE_TRANSITION"
	EventAuthorityCheck           EventType = "AUTHORITY_CHECK"
	EventAuthorityIssued          EventType = "AUTHORITY_ISSUED"
	EventAuthorityRevoked         EventType = "AUTHORITY_REVOKED"
	EventConfirmationTokenIssued  EventType = "CONFIRMATION_TOKEN_ISSUED"
	EventConfirmationValidated    EventType = "CONFIRMATION_VALIDATED"
	EventConfirmationTokenRevoked EventType = "CONFIRMATION_TOKEN_REVOKED"
	EventExecutionGuardFailed     EventType = "EXECUTION_GUARD_FAILED"
	EventExecutionStep            EventType = "EXECUTION_STEP"
	EventStateMutation            EventType = "STATE_MUTATION"
)

// executionEvents are the entry types that prove the system acted.
// HasExecutionAfter scans for these to show no silent continuation occurred.
var executionEvents = map[EventType]struct{}{
	EventExecutionStep: {},
	EventStateMutation: {},
}

// Entry is a single audit record. Immutable once appended.
type Entry struct {
	Timestamp      time.Time
	EventType      EventType
	FromState      string // empty when not applicable
	ToState        string // empty when not applicable
	Reason         string
	AuthorityValid *bool // nil when the event carries no authority verdict
	Extra          map[string]interface{}

	// PreviousHash links this entry to the preceding one; Hash is the
	// SHA-256 digest of the canonicalized entry including PreviousHash.
	// Both are assigned by Log.Append.
	PreviousHash string
	Hash         string
}

// Bool returns a pointer to v, for populating Entry.AuthorityValid.
func Bool(v bool) *bool { return &v }

// Export returns the wire representation of the entry: ISO-8601 timestamp,
// nulls for absent from/to states and authority verdicts, and a non-nil
// extra map.
func (e Entry) Export() map[string]interface{} {
	var from, to interface{}
	if e.FromState != "" {
		from = e.FromState
	}
	if e.ToState != "" {
		to = e.ToState
	}
	var authority interface{}
	if e.AuthorityValid != nil {
		authority = *e.AuthorityValid
	}
	extra := e.Extra
	if extra == nil {
		extra = map[string]interface{}{}
	}
	return map[string]interface{}{
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type":      string(e.EventType),
		"from_state":      from,
		"to_state":        to,
		"reason":          e.Reason,
		"authority_valid": authority,
		"extra":           extra,
	}
}

// Handler is invoked after an entry has been appended, e.g. to mirror the
// log into durable storage. Handlers must not mutate the entry.
type Handler func(Entry)

// Log is the append-only audit log for one session.
//
// Log is not safe for concurrent use; within a session all mutating calls
// are serialized by the caller.
type Log struct {
	entries  []Entry
	handlers []Handler
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 64)}
}

// OnAppend registers a handler called for every appended entry.
func (l *Log) OnAppend(h Handler) {
	if h != nil {
		l.handlers = append(l.handlers, h)
	}
}

// Append adds an entry to the log, linking it to the previous entry's hash.
func (l *Log) Append(e Entry) error {
	prev := ""
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	e.PreviousHash = prev

	hash, err := computeEntryHash(e)
	if err != nil {
		return fmt.Errorf("audit: hashing entry: %w", err)
	}
	e.Hash = hash

	l.entries = append(l.entries, e)
	for _, h := range l.handlers {
		h(e)
	}
	return nil
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns a defensive copy of all entries in insertion order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesByType returns entries whose event type matches.
func (l *Log) EntriesByType(t EventType) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// EntriesAfter returns entries strictly after ts.
func (l *Log) EntriesAfter(ts time.Time) []Entry {
	var out []Entry
	for _, e := range l.entries {
		if e.Timestamp.After(ts) {
			out = append(out, e)
		}
	}
	return out
}

// HasExecutionAfter reports whether any execution-class event occurred
// strictly after ts. Used to prove no silent continuation past a cutoff.
func (l *Log) HasExecutionAfter(ts time.Time) bool {
	for _, e := range l.entries {
		if _, ok := executionEvents[e.EventType]; ok && e.Timestamp.After(ts) {
			return true
		}
	}
	return false
}

// VerifyChain checks the integrity of the log: each entry's PreviousHash
// must match the preceding entry's Hash, and each Hash must match the
// entry's canonical content.
func (l *Log) VerifyChain() error {
	for i, e := range l.entries {
		if i == 0 {
			if e.PreviousHash != "" {
				return fmt.Errorf("audit: genesis entry has non-empty previous hash")
			}
		} else if e.PreviousHash != l.entries[i-1].Hash {
			return fmt.Errorf("audit: chain broken at index %d: previous hash mismatch", i)
		}
		computed, err := computeEntryHash(e)
		if err != nil {
			return fmt.Errorf("audit: recomputing hash at index %d: %w", i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("audit: integrity failure at index %d: computed %s, stored %s", i, computed, e.Hash)
		}
	}
	return nil
}

// ExportJSON renders the full log in the export schema.
func (l *Log) ExportJSON() ([]byte, error) {
	out := make([]map[string]interface{}, 0, len(l.entries))
	for _, e := range l.entries {
		m := e.Export()
		m["previous_hash"] = e.PreviousHash
		m["hash"] = e.Hash
		out = append(out, m)
	}
	return json.MarshalIndent(out, "", "  ")
}

// computeEntryHash digests the canonical JSON form of the entry, excluding
// the Hash field itself.
func computeEntryHash(e Entry) (string, error) {
	basis := e.Export()
	basis["previous_hash"] = e.PreviousHash

	raw, err := json.Marshal(basis)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
