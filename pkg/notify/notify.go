package notify

import (
	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/idempotency"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
)

// Enqueuer records notification requests as a side effect of state
// transitions. Enqueueing is fire-and-forget: a failed insert is
// logged and dropped, it never fails the transition that produced it.
type Enqueuer struct {
	store storage.Store
	clock clock.Clock
}

// NewEnqueuer creates a new enqueuer
func NewEnqueuer(store storage.Store, clk clock.Clock) *Enqueuer {
	return &Enqueuer{store: store, clock: clk}
}

// Enqueue writes a pending notification request for the challenge.
// The request ID is the deterministic notify key, so duplicate
// enqueues of the same kind collapse into one row instead of
// double-messaging the user.
func (e *Enqueuer) Enqueue(challengeID string, kind types.NotificationKind, body string) {
	now := e.clock.Now()
	req := &types.NotificationRequest{
		ID:          idempotency.NotifyKey(challengeID, string(kind)),
		ChallengeID: challengeID,
		Kind:        kind,
		Body:        body,
		ScheduledAt: now,
		Status:      types.NotificationStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.CreateNotification(req); err != nil {
		logger := log.WithChallengeID(challengeID)
		logger.Error().
			Err(err).
			Str("kind", string(kind)).
			Msg("failed to enqueue notification")
		return
	}

	metrics.NotificationsEnqueuedTotal.WithLabelValues(string(kind)).Inc()
}
