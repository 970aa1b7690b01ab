package audit

import "time"

// Clock provides authority time for the session core. Every component that
// stamps audit entries derives time from an injected Clock rather than an
// implicit global, so behavior stays deterministic under test.
type Clock interface {
	Now() time.Time
}

// wallClock is the default clock used when none is injected.
type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall-clock Clock.
func SystemClock() Clock { return wallClock{} }
