package clock

import "time"

// Clock supplies the engine's notion of "now". All correctness
// decisions use server-side Now(); client skew is diagnostic only.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time

	// SkewOffset reports how far a client-reported instant deviates
	// from server time. Positive means the client clock runs ahead.
	SkewOffset(clientTime time.Time) time.Duration
}

// System is a Clock backed by the host's wall clock.
type System struct{}

// NewSystem returns the standard system clock.
func NewSystem() *System {
	return &System{}
}

func (s *System) Now() time.Time {
	return time.Now().UTC()
}

func (s *System) SkewOffset(clientTime time.Time) time.Duration {
	return clientTime.Sub(s.Now())
}

// LocalWakeToUTC converts a wall-clock wake time expressed in the
// user's location to the UTC instant the engine schedules against.
func LocalWakeToUTC(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc).UTC()
}
