package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/engine"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/storage"
)

// ExpiryReconciler periodically finds challenges whose window elapsed
// without a judgment and drives them through the state machine as an
// automatic failure. It holds no state of its own; safety against
// duplicate firing comes entirely from the engine's conditional
// writes.
type ExpiryReconciler struct {
	store    storage.Store
	engine   *engine.Engine
	clock    clock.Clock
	interval time.Duration
	stopCh   chan struct{}
}

// NewExpiryReconciler creates a new expiry reconciler
func NewExpiryReconciler(store storage.Store, eng *engine.Engine, clk clock.Clock, interval time.Duration) *ExpiryReconciler {
	return &ExpiryReconciler{
		store:    store,
		engine:   eng,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *ExpiryReconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *ExpiryReconciler) Stop() {
	close(r.stopCh)
}

func (r *ExpiryReconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce performs one reconciliation cycle. Exported so an external
// cron trigger can drive the same code path.
func (r *ExpiryReconciler) RunOnce(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ExpirySweepDuration)
		metrics.ExpirySweepCyclesTotal.Inc()
	}()

	logger := log.WithComponent("expiry-reconciler")

	expired, err := r.store.ListExpiredChallenges(r.clock.Now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list expired challenges")
		return
	}

	for _, ch := range expired {
		out, err := r.engine.ReconcileExpired(ctx, ch.ID)
		switch {
		case err == nil:
			if out != nil && out.AlreadyResolved {
				continue
			}
			logger.Info().Str("challenge_id", ch.ID).Msg("expired challenge reconciled")
		case errors.Is(err, storage.ErrStatusConflict):
			// A user claim or another sweep got there first.
			continue
		case engine.IsTerminalSettlement(err):
			logger.Warn().Str("challenge_id", ch.ID).Msg("settlement exhausted, manual resolution required")
		default:
			// Transient; next cycle retries.
			logger.Error().Err(err).Str("challenge_id", ch.ID).Msg("failed to reconcile expired challenge")
		}
	}

	// Challenges stuck in fail (a crash between the fail transition
	// and the provider call, or a pending-retry attempt waiting out
	// its backoff) get their settlement re-driven here. Idempotent:
	// an attempt already in flight or scheduled is left alone.
	failures, err := r.store.ListUnsettledFailures()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list unsettled failures")
		return
	}
	for _, ch := range failures {
		if err := r.engine.EnsureSettlement(ctx, ch.ID); err != nil && !engine.IsTerminalSettlement(err) {
			logger.Error().Err(err).Str("challenge_id", ch.ID).Msg("failed to re-drive settlement")
		}
	}
}

// RetrySweeper periodically re-attempts settlement for payment
// attempts left in failed state inside their retry budget.
type RetrySweeper struct {
	store    storage.Store
	engine   *engine.Engine
	clock    clock.Clock
	interval time.Duration
	stopCh   chan struct{}
}

// NewRetrySweeper creates a new retry sweeper
func NewRetrySweeper(store storage.Store, eng *engine.Engine, clk clock.Clock, interval time.Duration) *RetrySweeper {
	return &RetrySweeper{
		store:    store,
		engine:   eng,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *RetrySweeper) Start() {
	go s.run()
}

// Stop stops the sweeper
func (s *RetrySweeper) Stop() {
	close(s.stopCh)
}

func (s *RetrySweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one retry sweep cycle.
func (s *RetrySweeper) RunOnce(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RetrySweepDuration)
		metrics.RetrySweepCyclesTotal.Inc()
	}()

	logger := log.WithComponent("retry-sweeper")

	due, err := s.store.ListDueRetries(s.clock.Now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list due retries")
		return
	}

	for _, attempt := range due {
		_, err := s.engine.RetryAttempt(ctx, attempt.ID)
		switch {
		case err == nil:
		case engine.IsTerminalSettlement(err):
			logger.Warn().
				Str("attempt_id", attempt.ID).
				Str("challenge_id", attempt.ChallengeID).
				Msg("settlement retries exhausted, manual resolution required")
		case errors.Is(err, storage.ErrStatusConflict):
			// A manual retry claimed the attempt first.
			continue
		default:
			logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("retry sweep failed for attempt")
		}
	}
}
