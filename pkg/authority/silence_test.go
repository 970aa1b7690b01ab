package authority

import (
	"testing"
	"time"
)

func TestSilenceNeverRecordedIsSilent(t *testing.T) {
	s := NewSilenceTracker(5*time.Minute, nil)
	if !s.CheckSilence(time.Now()) {
		t.Fatal("tracker with no recorded action must report silence")
	}
	if s.TimeUntilSilence(time.Now()) != 0 {
		t.Fatal("time until silence must be zero before any action")
	}
}

func TestSilenceBoundaryIsStrict(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s := NewSilenceTracker(5*time.Minute, nil)
	s.RecordUserAction(t0)

	if s.CheckSilence(t0.Add(5 * time.Minute)) {
		t.Fatal("exactly at the timeout is not yet silent")
	}
	if !s.CheckSilence(t0.Add(5*time.Minute + time.Nanosecond)) {
		t.Fatal("past the timeout must be silent")
	}
}

func TestRecordUserActionResetsWindow(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s := NewSilenceTracker(5*time.Minute, nil)
	s.RecordUserAction(t0)
	s.RecordUserAction(t0.Add(4 * time.Minute))

	if s.CheckSilence(t0.Add(8 * time.Minute)) {
		t.Fatal("window not reset by later action")
	}
	if got := s.TimeUntilSilence(t0.Add(8 * time.Minute)); got != time.Minute {
		t.Fatalf("time until silence = %s", got)
	}
}

func TestTimeUntilSilenceClamped(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s := NewSilenceTracker(time.Minute, nil)
	s.RecordUserAction(t0)

	if got := s.TimeUntilSilence(t0.Add(time.Hour)); got != 0 {
		t.Fatalf("negative remaining not clamped: %s", got)
	}
}
