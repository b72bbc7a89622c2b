package payment

import "time"

const (
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = 15 * time.Minute

	// DefaultBackoffCap bounds the exponential growth.
	DefaultBackoffCap = 24 * time.Hour
)

// Backoff returns the delay before retry n (0-based), growing
// exponentially from base and capped at cap.
func Backoff(n int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if cap <= 0 {
		cap = DefaultBackoffCap
	}

	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
