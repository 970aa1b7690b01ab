// Package capability maintains the set of action identifiers approved for a
// session. The registry decides membership only; whether a member may run
// right now is the execution guard's call.
package capability

import "sort"

// Registry is the approved capability set for a session.
//
// Registry is not safe for concurrent use; callers serialize access per
// session.
type Registry struct {
	caps map[string]struct{}
}

// NewRegistry creates a registry holding the given capability ids.
func NewRegistry(ids ...string) *Registry {
	r := &Registry{caps: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		r.caps[id] = struct{}{}
	}
	return r
}

// Contains reports whether the capability id is approved.
func (r *Registry) Contains(id string) bool {
	_, ok := r.caps[id]
	return ok
}

// Add approves a capability id. Idempotent.
func (r *Registry) Add(id string) {
	r.caps[id] = struct{}{}
}

// Remove withdraws approval for a capability id.
func (r *Registry) Remove(id string) {
	delete(r.caps, id)
}

// Len returns the number of approved capabilities.
func (r *Registry) Len() int { return len(r.caps) }

// IDs returns the approved capability ids, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.caps))
	for id := range r.caps {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
