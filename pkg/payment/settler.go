package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/events"
	"github.com/daybreaklabs/daybreak/pkg/idempotency"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/notify"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/google/uuid"
)

// ErrRetriesExhausted is returned when a charge has failed maxRetries
// times. The challenge is settled with an unresolved-payment marker
// and requires manual resolution.
var ErrRetriesExhausted = errors.New("settlement retries exhausted")

// providerTimeout bounds a single processor call. Charge confirmation
// can be slow on the provider side.
const providerTimeout = 30 * time.Second

// Config tunes settlement behavior.
type Config struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultConfig returns the standard settlement configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  types.DefaultMaxRetries,
		BackoffBase: DefaultBackoffBase,
		BackoffCap:  DefaultBackoffCap,
	}
}

// Settler drives a failed challenge's penalty to a financial outcome:
// charged, pending retry, or manual resolution. Every provider call
// routes through a deterministic idempotency key, so duplicate
// invocations produce at most one real charge per challenge.
type Settler struct {
	store    storage.Store
	provider Provider
	clock    clock.Clock
	notifier *notify.Enqueuer
	broker   *events.Broker
	cfg      Config
}

// NewSettler creates a new settler. A zero MaxRetries is honored: the
// initial charge gets exactly one shot and a decline goes straight to
// manual resolution. Only a negative value falls back to the default.
func NewSettler(store storage.Store, provider Provider, clk clock.Clock, notifier *notify.Enqueuer, broker *events.Broker, cfg Config) *Settler {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = types.DefaultMaxRetries
	}
	return &Settler{
		store:    store,
		provider: provider,
		clock:    clk,
		notifier: notifier,
		broker:   broker,
		cfg:      cfg,
	}
}

// Settle runs the initial settlement of a challenge that entered
// fail. Idempotent: if an attempt is already processing or succeeded
// the existing attempt is returned untouched.
func (s *Settler) Settle(ctx context.Context, ch *types.Challenge) (*types.PaymentAttempt, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SettlementDuration)

	logger := log.WithChallengeID(ch.ID)

	existing, err := s.store.GetPaymentAttemptByChallenge(ch.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case types.PaymentStatusProcessing:
			return existing, nil
		case types.PaymentStatusSucceeded:
			// A prior call charged but may have died before settling
			// the challenge. Finish that half.
			s.settleChallenge(ch.ID, existing, false)
			return existing, nil
		case types.PaymentStatusFailed, types.PaymentStatusCanceled:
			// Retry path owns it from here.
			return existing, nil
		}
		// pending: a prior call died before reaching the provider.
		// Re-drive it; the create key makes the provider call safe.
		return s.charge(ctx, ch, existing, idempotency.SettleCreateKey(ch.ID))
	case errors.Is(err, storage.ErrNotFound):
		// First settlement for this challenge.
	default:
		return nil, fmt.Errorf("failed to look up payment attempt: %w", err)
	}

	now := s.clock.Now()
	attempt := &types.PaymentAttempt{
		ID:          uuid.New().String(),
		ChallengeID: ch.ID,
		Amount:      ch.PenaltyAmount,
		Currency:    ch.Currency,
		Status:      types.PaymentStatusPending,
		MaxRetries:  s.cfg.MaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreatePaymentAttempt(attempt); err != nil {
		if errors.Is(err, storage.ErrDuplicateAttempt) {
			// Lost the creation race; the winner drives settlement.
			logger.Debug().Msg("settlement already in flight")
			return s.store.GetPaymentAttemptByChallenge(ch.ID)
		}
		return nil, fmt.Errorf("failed to create payment attempt: %w", err)
	}

	metrics.ChargesCreatedTotal.Inc()
	return s.charge(ctx, ch, attempt, idempotency.SettleCreateKey(ch.ID))
}

// Retry re-attempts a failed settlement. Called by the retry sweeper
// and by user-initiated manual retries; the conditional
// failed->processing write serializes the two.
func (s *Settler) Retry(ctx context.Context, attemptID string) (*types.PaymentAttempt, error) {
	attempt, err := s.store.GetPaymentAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	ch, err := s.store.GetChallenge(attempt.ChallengeID)
	if err != nil {
		return nil, err
	}

	if attempt.Status == types.PaymentStatusSucceeded {
		return attempt, nil
	}
	if attempt.Exhausted() {
		return attempt, fmt.Errorf("attempt %s: %w", attempt.ID, ErrRetriesExhausted)
	}

	// Claim the attempt. A concurrent retry loses here and backs off.
	claimed, err := s.store.UpdatePaymentAttemptIf(attemptID, types.PaymentStatusFailed, func(a *types.PaymentAttempt) error {
		a.Status = types.PaymentStatusProcessing
		a.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return s.store.GetPaymentAttempt(attemptID)
		}
		return nil, err
	}

	// If a previous call reached the provider but we never saw the
	// answer, the charge may have landed. Check before charging again.
	if claimed.ExternalRef != "" {
		if res, err := s.retrieve(ctx, claimed.ExternalRef); err == nil && res.Status == ChargeStatusSucceeded {
			return s.finishSuccess(ch.ID, claimed, res)
		}
	}

	metrics.ChargeRetriesTotal.Inc()
	key := idempotency.SettleRetryKey(ch.ID, claimed.RetryCount+1)
	return s.charge(ctx, ch, claimed, key)
}

// charge performs one provider call for an attempt in pending or
// processing state and records the outcome.
func (s *Settler) charge(ctx context.Context, ch *types.Challenge, attempt *types.PaymentAttempt, key string) (*types.PaymentAttempt, error) {
	cctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	res, err := s.provider.CreateCharge(cctx, key, ch.CustomerRef, attempt.Amount, attempt.Currency)
	if err != nil {
		// Provider unreachable. Treat like a declined charge: the
		// bounded retry path will re-drive it with the same key space.
		res = &ChargeResult{
			Status:         ChargeStatusFailed,
			FailureCode:    "provider_unavailable",
			FailureMessage: err.Error(),
		}
	}

	switch res.Status {
	case ChargeStatusSucceeded:
		return s.finishSuccess(ch.ID, attempt, res)
	default:
		return s.finishFailure(ch.ID, attempt, res)
	}
}

func (s *Settler) retrieve(ctx context.Context, ref string) (*ChargeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	return s.provider.RetrieveCharge(cctx, ref)
}

// finishSuccess records a confirmed charge and settles the challenge.
func (s *Settler) finishSuccess(challengeID string, attempt *types.PaymentAttempt, res *ChargeResult) (*types.PaymentAttempt, error) {
	updated, err := s.store.UpdatePaymentAttemptIf(attempt.ID, attempt.Status, func(a *types.PaymentAttempt) error {
		a.Status = types.PaymentStatusSucceeded
		a.ExternalRef = res.ExternalRef
		a.FailureCode = ""
		a.FailureMessage = ""
		a.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return s.store.GetPaymentAttempt(attempt.ID)
		}
		return nil, err
	}

	metrics.ChargesSucceededTotal.Inc()
	s.settleChallenge(challengeID, updated, false)

	s.notifier.Enqueue(challengeID, types.NotifyPenaltyCharged, "Challenge failed, penalty charged.")
	s.publish(events.EventPaymentSucceeded, challengeID, "penalty charged")
	return updated, nil
}

// finishFailure records a declined or errored charge. Within the
// retry budget the attempt is rescheduled; past it the challenge is
// settled with an unresolved-payment marker and handed to manual
// resolution.
func (s *Settler) finishFailure(challengeID string, attempt *types.PaymentAttempt, res *ChargeResult) (*types.PaymentAttempt, error) {
	now := s.clock.Now()
	wasRetry := attempt.Status == types.PaymentStatusProcessing

	updated, err := s.store.UpdatePaymentAttemptIf(attempt.ID, attempt.Status, func(a *types.PaymentAttempt) error {
		if wasRetry {
			a.RetryCount++
		}
		a.Status = types.PaymentStatusFailed
		a.ExternalRef = res.ExternalRef
		a.FailureCode = res.FailureCode
		a.FailureMessage = res.FailureMessage
		a.NextRetryAt = now.Add(Backoff(a.RetryCount, s.cfg.BackoffBase, s.cfg.BackoffCap))
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return s.store.GetPaymentAttempt(attempt.ID)
		}
		return nil, err
	}

	metrics.ChargesFailedTotal.Inc()
	s.publish(events.EventPaymentFailed, challengeID, "charge failed: "+res.FailureCode)

	if updated.Exhausted() {
		// Retry ceiling hit. Never a further provider call; surface
		// the terminal failure instead of leaving the challenge in
		// limbo.
		s.settleChallenge(challengeID, updated, true)
		s.notifier.Enqueue(challengeID, types.NotifyPenaltyManual, "Challenge failed, manual payment required.")
		s.publish(events.EventPaymentExhausted, challengeID, "settlement retries exhausted")
		return updated, fmt.Errorf("attempt %s: %w", updated.ID, ErrRetriesExhausted)
	}

	s.notifier.Enqueue(challengeID, types.NotifyPenaltyRetry, "Challenge failed, payment pending retry.")
	return updated, nil
}

// settleChallenge moves a failed challenge to settled once its
// financial outcome is final. Losing the conditional write means
// another caller already settled it, which is fine.
func (s *Settler) settleChallenge(challengeID string, attempt *types.PaymentAttempt, unresolved bool) {
	_, err := s.store.TransitionChallenge(challengeID, types.ChallengeStatusFail, func(c *types.Challenge) error {
		c.Status = types.ChallengeStatusSettled
		c.PaymentIntentRef = attempt.ExternalRef
		c.UnresolvedPayment = unresolved
		c.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return
		}
		logger := log.WithChallengeID(challengeID)
		logger.Error().Err(err).Msg("failed to settle challenge")
		return
	}

	metrics.TransitionsTotal.WithLabelValues(string(types.ChallengeStatusFail), string(types.ChallengeStatusSettled)).Inc()
	s.publish(events.EventChallengeSettled, challengeID, "challenge settled")
}

func (s *Settler) publish(t events.EventType, challengeID, msg string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		ID:          uuid.New().String(),
		Type:        t,
		ChallengeID: challengeID,
		Timestamp:   s.clock.Now(),
		Message:     msg,
	})
}
