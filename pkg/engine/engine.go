package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/daybreaklabs/daybreak/pkg/clock"
	"github.com/daybreaklabs/daybreak/pkg/events"
	"github.com/daybreaklabs/daybreak/pkg/geo"
	"github.com/daybreaklabs/daybreak/pkg/log"
	"github.com/daybreaklabs/daybreak/pkg/metrics"
	"github.com/daybreaklabs/daybreak/pkg/notify"
	"github.com/daybreaklabs/daybreak/pkg/payment"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/google/uuid"
)

// Outcome is the engine's answer to any lifecycle operation: the
// challenge's recorded state plus, when relevant, the judgment and
// settlement summary. A second call on a terminal challenge gets the
// recorded outcome back with AlreadyResolved set, never a re-judgment.
type Outcome struct {
	ChallengeID       string                `json:"challenge_id"`
	Status            types.ChallengeStatus `json:"status"`
	AlreadyResolved   bool                  `json:"already_resolved,omitempty"`
	FailReason        types.FailReason      `json:"fail_reason,omitempty"`
	Judgment          *geo.Judgment         `json:"judgment,omitempty"`
	UnresolvedPayment bool                  `json:"unresolved_payment,omitempty"`
	Attempt           *types.PaymentAttempt `json:"attempt,omitempty"`
	Narrative         string                `json:"narrative"`
}

// Engine is the challenge state machine. It is the single writer of
// challenge status; every transition is one atomic conditional write
// keyed on the previous expected status.
type Engine struct {
	store    storage.Store
	clock    clock.Clock
	settler  *payment.Settler
	notifier *notify.Enqueuer
	broker   *events.Broker
}

// New creates a new engine with explicit dependencies. Substituting
// fakes for any of them keeps unit tests deterministic.
func New(store storage.Store, clk clock.Clock, settler *payment.Settler, notifier *notify.Enqueuer, broker *events.Broker) *Engine {
	return &Engine{
		store:    store,
		clock:    clk,
		settler:  settler,
		notifier: notifier,
		broker:   broker,
	}
}

// Schedule creates a challenge in scheduled status. Invoked by the
// external scheduling surface; validation happens here so no invalid
// challenge ever enters the state machine.
func (e *Engine) Schedule(ctx context.Context, ch *types.Challenge) (*types.Challenge, error) {
	if ch.StartAt.IsZero() || ch.EndAt.IsZero() || !ch.StartAt.Before(ch.EndAt) {
		return nil, &ValidationError{Field: "start_at", Reason: "start must precede end"}
	}
	if ch.PenaltyAmount < 0 {
		return nil, &ValidationError{Field: "penalty_amount", Reason: "must be non-negative"}
	}
	if ch.TargetLocation.Lat < -90 || ch.TargetLocation.Lat > 90 || ch.TargetLocation.Lng < -180 || ch.TargetLocation.Lng > 180 {
		return nil, &ValidationError{Field: "target_location", Reason: "coordinates out of range"}
	}
	if ch.TargetRadiusMeters <= 0 {
		ch.TargetRadiusMeters = types.DefaultTargetRadiusMeters
	}
	if ch.Currency == "" {
		return nil, &ValidationError{Field: "currency", Reason: "required"}
	}

	now := e.clock.Now()
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	ch.Status = types.ChallengeStatusScheduled
	ch.StartAt = ch.StartAt.UTC()
	ch.EndAt = ch.EndAt.UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now
	ch.Version = 1

	if err := e.store.CreateChallenge(ch); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to create challenge: %w", err)}
	}

	e.publish(events.EventChallengeScheduled, ch.ID, "challenge scheduled")
	return ch, nil
}

// RecordArrival judges a user's arrival claim and drives the
// challenge to success or fail. Idempotent: on a terminal challenge
// the recorded outcome is returned with AlreadyResolved set.
func (e *Engine) RecordArrival(ctx context.Context, challengeID string, ping *types.LocationPing) (*Outcome, error) {
	logger := log.WithChallengeID(challengeID)

	ch, err := e.store.GetChallenge(challengeID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if ch.Status.Terminal() {
		return e.resolvedOutcome(ch)
	}

	if ping == nil {
		return nil, &ValidationError{Field: "ping", Reason: "required"}
	}
	if ping.ObservedAt.After(ch.EndAt) {
		return nil, ErrChallengeExpired
	}

	now := e.clock.Now()
	if now.Before(ch.StartAt) {
		return nil, &ValidationError{Field: "challenge", Reason: "window has not started"}
	}

	// First observation inside the window activates the challenge.
	if ch.Status == types.ChallengeStatusScheduled {
		ch, err = e.activate(ch)
		if err != nil {
			return nil, err
		}
		if ch.Status.Terminal() {
			return e.resolvedOutcome(ch)
		}
	}

	judgment := geo.Judge(ping, ch.TargetLocation, ch.TargetRadiusMeters)

	// The observation is audit data regardless of how the judgment
	// lands.
	ping.ID = uuid.New().String()
	ping.ChallengeID = ch.ID
	ping.CreatedAt = now
	if err := e.store.CreatePing(ping); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to record ping: %w", err)}
	}

	target := types.ChallengeStatusFail
	if judgment.Passed {
		target = types.ChallengeStatusSuccess
	}

	updated, err := e.store.TransitionChallenge(ch.ID, types.ChallengeStatusActive, func(c *types.Challenge) error {
		c.Status = target
		// An unusable ping judges at infinite distance; the record
		// keeps no number for that.
		if d := judgment.DistanceMeters; !math.IsInf(d, 0) {
			c.JudgedDistanceMeters = &d
		}
		if !judgment.Passed {
			c.FailReason = types.FailReasonGeofence
		}
		c.UpdatedAt = e.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			// Lost to a concurrent claim or the expiry sweep.
			metrics.TransitionConflictsTotal.Inc()
			current, gerr := e.store.GetChallenge(ch.ID)
			if gerr != nil {
				return nil, wrapStoreErr(gerr)
			}
			return e.resolvedOutcome(current)
		}
		return nil, wrapStoreErr(err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(types.ChallengeStatusActive), string(target)).Inc()
	logger.Info().
		Str("status", string(target)).
		Float64("distance_m", judgment.DistanceMeters).
		Msg("arrival judged")

	if judgment.Passed {
		// Success owes nothing; the challenge settles immediately.
		e.notifier.Enqueue(ch.ID, types.NotifyChallengeSucceeded, "You made it. No penalty.")
		e.publish(events.EventChallengeSucceeded, ch.ID, "arrival inside geofence")
		updated, err = e.settleSuccess(updated)
		if err != nil {
			return nil, err
		}
		out, oerr := e.resolvedOutcome(updated)
		if oerr != nil {
			return nil, oerr
		}
		out.AlreadyResolved = false
		out.Judgment = &judgment
		return out, nil
	}

	e.notifier.Enqueue(ch.ID, types.NotifyChallengeFailed, "Arrival outside the target area.")
	e.publish(events.EventChallengeFailed, ch.ID, "arrival outside geofence")

	attempt, serr := e.settler.Settle(ctx, updated)
	out := &Outcome{
		ChallengeID: updated.ID,
		Status:      updated.Status,
		FailReason:  updated.FailReason,
		Judgment:    &judgment,
		Attempt:     attempt,
	}
	if current, gerr := e.store.GetChallenge(updated.ID); gerr == nil {
		out.Status = current.Status
		out.UnresolvedPayment = current.UnresolvedPayment
		out.Narrative = narrative(current, attempt)
	}
	if serr != nil {
		return out, mapSettleErr(updated.ID, attempt, serr)
	}
	return out, nil
}

// ReconcileExpired forces a challenge whose window elapsed without a
// judgment into fail and triggers settlement. Safe to call
// concurrently and redundantly: the conditional write picks exactly
// one winner, everyone else observes the resolved outcome.
func (e *Engine) ReconcileExpired(ctx context.Context, challengeID string) (*Outcome, error) {
	ch, err := e.store.GetChallenge(challengeID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if ch.Status.Terminal() {
		return e.resolvedOutcome(ch)
	}

	now := e.clock.Now()
	if !ch.EndAt.Before(now) {
		return nil, &ValidationError{Field: "challenge", Reason: "window has not ended"}
	}

	from := ch.Status
	updated, err := e.store.TransitionChallenge(ch.ID, from, func(c *types.Challenge) error {
		c.Status = types.ChallengeStatusFail
		c.FailReason = types.FailReasonTimeout
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			metrics.TransitionConflictsTotal.Inc()
			current, gerr := e.store.GetChallenge(ch.ID)
			if gerr != nil {
				return nil, wrapStoreErr(gerr)
			}
			return e.resolvedOutcome(current)
		}
		return nil, wrapStoreErr(err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(from), string(types.ChallengeStatusFail)).Inc()
	logger := log.WithChallengeID(ch.ID)
	logger.Info().
		Str("from", string(from)).
		Msg("challenge expired without judgment")

	e.notifier.Enqueue(ch.ID, types.NotifyChallengeFailed, "Time ran out on your challenge.")
	e.publish(events.EventChallengeFailed, ch.ID, "window elapsed without judgment")

	attempt, serr := e.settler.Settle(ctx, updated)
	out := &Outcome{
		ChallengeID: updated.ID,
		Status:      updated.Status,
		FailReason:  types.FailReasonTimeout,
		Attempt:     attempt,
	}
	if current, gerr := e.store.GetChallenge(updated.ID); gerr == nil {
		out.Status = current.Status
		out.UnresolvedPayment = current.UnresolvedPayment
		out.Narrative = narrative(current, attempt)
	}
	if serr != nil {
		return out, mapSettleErr(updated.ID, attempt, serr)
	}
	return out, nil
}

// EnsureSettlement re-drives settlement for a challenge stuck in fail
// whose attempt never got recorded (e.g. a crash between the fail
// transition and the provider call). Idempotent.
func (e *Engine) EnsureSettlement(ctx context.Context, challengeID string) error {
	ch, err := e.store.GetChallenge(challengeID)
	if err != nil {
		return wrapStoreErr(err)
	}
	if ch.Status != types.ChallengeStatusFail {
		return nil
	}
	_, serr := e.settler.Settle(ctx, ch)
	if serr != nil {
		return mapSettleErr(ch.ID, nil, serr)
	}
	return nil
}

// RetryAttempt re-attempts a failed settlement. Shared by the retry
// sweeper and user-initiated manual retries.
func (e *Engine) RetryAttempt(ctx context.Context, attemptID string) (*types.PaymentAttempt, error) {
	attempt, err := e.settler.Retry(ctx, attemptID)
	if err != nil {
		if errors.Is(err, payment.ErrRetriesExhausted) {
			id := attemptID
			chID := ""
			if attempt != nil {
				id = attempt.ID
				chID = attempt.ChallengeID
			}
			return attempt, &TerminalSettlementFailure{ChallengeID: chID, AttemptID: id}
		}
		return attempt, wrapStoreErr(err)
	}
	return attempt, nil
}

// GetStatus is a pure read of a challenge's current outcome.
func (e *Engine) GetStatus(ctx context.Context, challengeID string) (*Outcome, error) {
	ch, err := e.store.GetChallenge(challengeID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	out, err := e.resolvedOutcome(ch)
	if err != nil {
		return nil, err
	}
	out.AlreadyResolved = false
	return out, nil
}

// activate moves a scheduled challenge into active once now is inside
// its window.
func (e *Engine) activate(ch *types.Challenge) (*types.Challenge, error) {
	updated, err := e.store.TransitionChallenge(ch.ID, types.ChallengeStatusScheduled, func(c *types.Challenge) error {
		c.Status = types.ChallengeStatusActive
		c.UpdatedAt = e.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			metrics.TransitionConflictsTotal.Inc()
			return e.store.GetChallenge(ch.ID)
		}
		return nil, wrapStoreErr(err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(types.ChallengeStatusScheduled), string(types.ChallengeStatusActive)).Inc()
	e.notifier.Enqueue(ch.ID, types.NotifyChallengeActivated, "Your challenge window is open.")
	e.publish(events.EventChallengeActivated, ch.ID, "challenge active")
	return updated, nil
}

// settleSuccess finalizes a successful challenge. No charge is owed,
// so success settles in the same call.
func (e *Engine) settleSuccess(ch *types.Challenge) (*types.Challenge, error) {
	updated, err := e.store.TransitionChallenge(ch.ID, types.ChallengeStatusSuccess, func(c *types.Challenge) error {
		c.Status = types.ChallengeStatusSettled
		c.UpdatedAt = e.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return e.store.GetChallenge(ch.ID)
		}
		return nil, wrapStoreErr(err)
	}
	metrics.TransitionsTotal.WithLabelValues(string(types.ChallengeStatusSuccess), string(types.ChallengeStatusSettled)).Inc()
	e.publish(events.EventChallengeSettled, ch.ID, "challenge settled, no penalty")
	return updated, nil
}

// resolvedOutcome builds the recorded outcome of a challenge without
// side effects.
func (e *Engine) resolvedOutcome(ch *types.Challenge) (*Outcome, error) {
	out := &Outcome{
		ChallengeID:       ch.ID,
		Status:            ch.Status,
		AlreadyResolved:   ch.Status.Terminal(),
		FailReason:        ch.FailReason,
		UnresolvedPayment: ch.UnresolvedPayment,
	}
	if ch.JudgedDistanceMeters != nil {
		out.Judgment = &geo.Judgment{
			Passed:         ch.FailReason == "",
			DistanceMeters: *ch.JudgedDistanceMeters,
		}
	}

	attempt, err := e.store.GetPaymentAttemptByChallenge(ch.ID)
	if err == nil {
		out.Attempt = attempt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, wrapStoreErr(err)
	}

	out.Narrative = narrative(ch, out.Attempt)
	return out, nil
}

// narrative maps the recorded state onto the three user-visible
// terminal stories (plus the no-penalty success story).
func narrative(ch *types.Challenge, attempt *types.PaymentAttempt) string {
	switch ch.Status {
	case types.ChallengeStatusScheduled:
		return "challenge scheduled"
	case types.ChallengeStatusActive:
		return "challenge in progress"
	case types.ChallengeStatusSuccess:
		return "challenge succeeded, no penalty"
	case types.ChallengeStatusFail:
		if attempt != nil && attempt.Status == types.PaymentStatusFailed {
			return "challenge failed, payment pending retry"
		}
		return "challenge failed, penalty settlement in progress"
	case types.ChallengeStatusSettled:
		if ch.UnresolvedPayment {
			return "challenge failed, manual payment required"
		}
		if attempt != nil && attempt.Status == types.PaymentStatusSucceeded {
			return "challenge failed, penalty charged"
		}
		return "challenge succeeded, no penalty"
	}
	return string(ch.Status)
}

func (e *Engine) publish(t events.EventType, challengeID, msg string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(&events.Event{
		ID:          uuid.New().String(),
		Type:        t,
		ChallengeID: challengeID,
		Timestamp:   e.clock.Now(),
		Message:     msg,
	})
}

// wrapStoreErr classifies persistence failures: not-found and status
// conflicts pass through unmodified, everything else is transient.
func wrapStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrStatusConflict) {
		return err
	}
	return &TransientError{Err: err}
}

func mapSettleErr(challengeID string, attempt *types.PaymentAttempt, err error) error {
	if errors.Is(err, payment.ErrRetriesExhausted) {
		id := ""
		if attempt != nil {
			id = attempt.ID
		}
		return &TerminalSettlementFailure{ChallengeID: challengeID, AttemptID: id}
	}
	return &TransientError{Err: err}
}
