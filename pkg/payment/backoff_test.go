package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBackoff tests exponential growth and the cap
func TestBackoff(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want time.Duration
	}{
		{"first retry", 0, 15 * time.Minute},
		{"second retry", 1, 30 * time.Minute},
		{"third retry", 2, time.Hour},
		{"deep retry hits cap", 10, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.n, DefaultBackoffBase, DefaultBackoffCap))
		})
	}
}

// TestBackoffCustomBase verifies tunable base and cap
func TestBackoffCustomBase(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0, time.Second, time.Minute))
	assert.Equal(t, 4*time.Second, Backoff(2, time.Second, time.Minute))
	assert.Equal(t, time.Minute, Backoff(20, time.Second, time.Minute))
}

// TestBackoffZeroConfigFallsBack verifies defaults kick in for
// unset durations
func TestBackoffZeroConfigFallsBack(t *testing.T) {
	assert.Equal(t, DefaultBackoffBase, Backoff(0, 0, 0))
	assert.Equal(t, 2*DefaultBackoffBase, Backoff(1, 0, 0))
}
