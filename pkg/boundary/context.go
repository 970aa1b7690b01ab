// Package boundary tracks the file/tool/modality context a session was
// scoped to and detects boundary crossings. A crossing means consent no
// longer covers the current context and execution must checkpoint.
package boundary

import (
	"errors"
	"strings"
)

// ErrBoundaryCrossed signals that the current context left the perimeter the
// session was originally scoped to.
var ErrBoundaryCrossed = errors.New("session boundary crossed")

// Context is a snapshot of the execution context. Empty fields mean the
// dimension is not tracked.
type Context struct {
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Tool     string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Modality string `json:"modality,omitempty" yaml:"modality,omitempty"`
}

// IsZero reports whether no dimension is tracked.
func (c Context) IsZero() bool {
	return c.File == "" && c.Tool == "" && c.Modality == ""
}

// Check pairs the current context with the one recorded at consent time.
type Check struct {
	Current Context
	Session Context
}

// Crossed reports whether any tracked dimension differs between the current
// and session contexts. A dimension counts only when both sides carry a
// value; an untracked side never crosses.
func (c Check) Crossed() bool {
	return len(c.CrossedFields()) > 0
}

// CrossedFields names the dimensions that crossed, for audit reasons.
func (c Check) CrossedFields() []string {
	var fields []string
	if c.Current.File != "" && c.Session.File != "" && c.Current.File != c.Session.File {
		fields = append(fields, "file")
	}
	if c.Current.Tool != "" && c.Session.Tool != "" && c.Current.Tool != c.Session.Tool {
		fields = append(fields, "tool")
	}
	if c.Current.Modality != "" && c.Session.Modality != "" && c.Current.Modality != c.Session.Modality {
		fields = append(fields, "modality")
	}
	return fields
}

// Enforce returns ErrBoundaryCrossed (wrapped with the crossed fields) when
// the check fails, nil otherwise.
func (c Check) Enforce() error {
	fields := c.CrossedFields()
	if len(fields) == 0 {
		return nil
	}
	return errors.Join(ErrBoundaryCrossed, errors.New("crossed: "+strings.Join(fields, ", ")))
}
