package notify

import (
	"context"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
)

// Sender delivers a notification through an external push service.
type Sender interface {
	Send(ctx context.Context, req *types.NotificationRequest) error
}

// Dispatcher drains pending notification requests to a Sender on a
// fixed interval. Delivery failures mark the row failed; the engine
// never waits on any of this.
type Dispatcher struct {
	store    storage.Store
	sender   Sender
	clock    clock.Clock
	interval time.Duration
	stopCh   chan struct{}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(store storage.Store, sender Sender, clk clock.Clock, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		store:    store,
		sender:   sender,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the dispatch loop
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop stops the dispatcher
func (d *Dispatcher) Stop() {
	close(d.stopCh)
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.DispatchPending()
		case <-d.stopCh:
			return
		}
	}
}

// DispatchPending hands every pending request to the sender once.
// Exported so a cron-style caller can trigger a cycle directly.
func (d *Dispatcher) DispatchPending() {
	logger := log.WithComponent("notify")

	pending, err := d.store.ListPendingNotifications()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list pending notifications")
		return
	}

	for _, req := range pending {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := d.sender.Send(ctx, req)
		cancel()

		req.UpdatedAt = d.clock.Now()
		if err != nil {
			req.Status = types.NotificationStatusFailed
			logger.Warn().
				Err(err).
				Str("challenge_id", req.ChallengeID).
				Str("kind", string(req.Kind)).
				Msg("notification delivery failed")
		} else {
			req.Status = types.NotificationStatusSent
		}

		if err := d.store.UpdateNotification(req); err != nil {
			logger.Error().Err(err).Msg("failed to update notification status")
		}
	}
}

// LogSender is a Sender that only logs. Used when no push provider is
// configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, req *types.NotificationRequest) error {
	logger := log.WithComponent("notify")
	logger.Info().
		Str("challenge_id", req.ChallengeID).
		Str("kind", string(req.Kind)).
		Msg("notification (log sender)")
	return nil
}
