package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/notify"
	"github.com/daybreaklabs/daybreak/pkg/payment"
	"github.com/daybreaklabs/daybreak/pkg/storage"
	"github.com/daybreaklabs/daybreak/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) SkewOffset(clientTime time.Time) time.Duration {
	return clientTime.Sub(c.now)
}

type fakeProvider struct {
	mu      sync.Mutex
	results []*payment.ChargeResult
	calls   int
}

func (p *fakeProvider) CreateCharge(ctx context.Context, idempotencyKey, customerRef string, amount int64, currency string) (*payment.ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.results[p.calls]
	p.calls++
	return res, nil
}

func (p *fakeProvider) RetrieveCharge(ctx context.Context, externalRef string) (*payment.ChargeResult, error) {
	return nil, storage.ErrNotFound
}

func approved(ref string) *payment.ChargeResult {
	return &payment.ChargeResult{Status: payment.ChargeStatusSucceeded, ExternalRef: ref}
}

func declined() *payment.ChargeResult {
	return &payment.ChargeResult{Status: payment.ChargeStatusFailed, FailureCode: "card_declined", FailureMessage: "card declined"}
}

type fixture struct {
	engine   *Engine
	store    storage.Store
	clock    *fakeClock
	provider *fakeProvider
}

func newFixture(t *testing.T, provider *fakeProvider) *fixture {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := &fakeClock{now: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)}
	notifier := notify.NewEnqueuer(store, clk)
	settler := payment.NewSettler(store, provider, clk, notifier, nil, payment.DefaultConfig())
	return &fixture{
		engine:   New(store, clk, settler, notifier, nil),
		store:    store,
		clock:    clk,
		provider: provider,
	}
}

func (f *fixture) schedule(t *testing.T, startOffset, endOffset time.Duration) *types.Challenge {
	t.Helper()
	ch, err := f.engine.Schedule(context.Background(), &types.Challenge{
		UserRef:        "user-1",
		CustomerRef:    "cus_1",
		StartAt:        f.clock.now.Add(startOffset),
		EndAt:          f.clock.now.Add(endOffset),
		TargetLocation: types.GeoPoint{Lat: 35.0, Lng: 139.0},
		PenaltyAmount:  500,
		Currency:       "usd",
	})
	require.NoError(t, err)
	return ch
}

func pingAt(lat, lng float64, observedAt time.Time) *types.LocationPing {
	return &types.LocationPing{
		Lat:            lat,
		Lng:            lng,
		AccuracyMeters: 10,
		ObservedAt:     observedAt,
		Source:         types.PingSourceGPS,
		IsValid:        true,
	}
}

// TestScheduleValidation tests the input guards on challenge creation
func TestScheduleValidation(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	now := f.clock.now

	tests := []struct {
		name string
		ch   *types.Challenge
	}{
		{
			name: "start after end",
			ch: &types.Challenge{
				StartAt: now.Add(time.Hour), EndAt: now,
				TargetLocation: types.GeoPoint{Lat: 35, Lng: 139},
				Currency:       "usd",
			},
		},
		{
			name: "negative penalty",
			ch: &types.Challenge{
				StartAt: now, EndAt: now.Add(time.Hour),
				TargetLocation: types.GeoPoint{Lat: 35, Lng: 139},
				PenaltyAmount:  -1, Currency: "usd",
			},
		},
		{
			name: "latitude out of range",
			ch: &types.Challenge{
				StartAt: now, EndAt: now.Add(time.Hour),
				TargetLocation: types.GeoPoint{Lat: 91, Lng: 139},
				Currency:       "usd",
			},
		},
		{
			name: "missing currency",
			ch: &types.Challenge{
				StartAt: now, EndAt: now.Add(time.Hour),
				TargetLocation: types.GeoPoint{Lat: 35, Lng: 139},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Schedule(context.Background(), tt.ch)
			assert.True(t, IsValidation(err))
		})
	}
}

// TestScheduleDefaultsRadius verifies the geofence radius default
func TestScheduleDefaultsRadius(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	assert.Equal(t, float64(types.DefaultTargetRadiusMeters), ch.TargetRadiusMeters)
	assert.Equal(t, types.ChallengeStatusScheduled, ch.Status)
	assert.Equal(t, int64(1), ch.Version)
}

// TestArrivalAtExactTargetSucceeds tests the success path: a ping at
// the target coordinates judges at distance zero, the challenge
// settles immediately, and no payment attempt exists.
func TestArrivalAtExactTargetSucceeds(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	out, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
	require.NoError(t, err)

	assert.Equal(t, types.ChallengeStatusSettled, out.Status)
	assert.False(t, out.AlreadyResolved)
	require.NotNil(t, out.Judgment)
	assert.True(t, out.Judgment.Passed)
	assert.Equal(t, 0.0, out.Judgment.DistanceMeters)
	assert.Equal(t, "challenge succeeded, no penalty", out.Narrative)
	assert.Equal(t, 0, f.provider.calls)

	_, err = f.store.GetPaymentAttemptByChallenge(ch.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestArrivalOutsideGeofenceFails tests the fail path: the challenge
// is charged and settles in the same call when the charge clears.
func TestArrivalOutsideGeofenceFails(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -time.Minute, time.Hour)

	out, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.1, 139.0, f.clock.now))
	require.NoError(t, err)

	assert.Equal(t, types.ChallengeStatusSettled, out.Status)
	assert.Equal(t, types.FailReasonGeofence, out.FailReason)
	require.NotNil(t, out.Judgment)
	assert.False(t, out.Judgment.Passed)
	require.NotNil(t, out.Attempt)
	assert.Equal(t, types.PaymentStatusSucceeded, out.Attempt.Status)
	assert.Equal(t, "challenge failed, penalty charged", out.Narrative)
	assert.Equal(t, 1, f.provider.calls)
}

// TestArrivalIdempotent verifies a second arrival on a resolved
// challenge returns the recorded outcome unchanged, with no second
// judgment and no second charge.
func TestArrivalIdempotent(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -time.Minute, time.Hour)

	first, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.1, 139.0, f.clock.now))
	require.NoError(t, err)

	// The user walks to the target and tries again. Too late: the
	// recorded judgment stands.
	second, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
	require.NoError(t, err)

	assert.True(t, second.AlreadyResolved)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.FailReason, second.FailReason)
	require.NotNil(t, second.Judgment)
	assert.False(t, second.Judgment.Passed)
	assert.Equal(t, 1, f.provider.calls)
}

// TestArrivalBeforeWindow tests the early-ping guard
func TestArrivalBeforeWindow(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, time.Hour, 2*time.Hour)

	_, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
	assert.True(t, IsValidation(err))
}

// TestArrivalAfterWindow tests the late-ping guard
func TestArrivalAfterWindow(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -2*time.Hour, time.Hour)

	late := pingAt(35.0, 139.0, ch.EndAt.Add(time.Minute))
	_, err := f.engine.RecordArrival(context.Background(), ch.ID, late)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

// TestArrivalActivatesScheduled verifies the first in-window ping
// moves scheduled to active before judging.
func TestArrivalActivatesScheduled(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	require.Equal(t, types.ChallengeStatusScheduled, ch.Status)
	out, err := f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, out.Status)

	// The ping was recorded as audit data.
	pings, err := f.store.ListPingsByChallenge(ch.ID)
	require.NoError(t, err)
	assert.Len(t, pings, 1)
}

// TestReconcileExpired tests the timeout path: an expired active
// challenge fails with reason timeout and gets a payment attempt.
func TestReconcileExpired(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{declined()}})
	ch := f.schedule(t, -2*time.Hour, -time.Hour)

	out, err := f.engine.ReconcileExpired(context.Background(), ch.ID)
	require.NoError(t, err)

	assert.Equal(t, types.ChallengeStatusFail, out.Status)
	assert.Equal(t, types.FailReasonTimeout, out.FailReason)
	require.NotNil(t, out.Attempt)
	assert.Equal(t, types.PaymentStatusFailed, out.Attempt.Status)
	assert.Equal(t, 0, out.Attempt.RetryCount)
	assert.Equal(t, "challenge failed, payment pending retry", out.Narrative)
}

// TestReconcileExpiredIdempotent verifies redundant reconciles observe
// the resolved outcome and never create a second attempt.
func TestReconcileExpiredIdempotent(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -2*time.Hour, -time.Hour)

	first, err := f.engine.ReconcileExpired(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, first.Status)

	second, err := f.engine.ReconcileExpired(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyResolved)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, f.provider.calls)
}

// TestReconcileNotYetExpired tests the window guard on reconcile
func TestReconcileNotYetExpired(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	_, err := f.engine.ReconcileExpired(context.Background(), ch.ID)
	assert.True(t, IsValidation(err))
}

// TestExhaustionSettlesUnresolved drives a challenge through the full
// retry budget and verifies it ends settled with the unresolved
// marker, surfaced as a terminal settlement failure.
func TestExhaustionSettlesUnresolved(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{
		declined(), declined(), declined(), declined(),
	}})
	ch := f.schedule(t, -2*time.Hour, -time.Hour)

	out, err := f.engine.ReconcileExpired(context.Background(), ch.ID)
	require.NoError(t, err)
	attempt := out.Attempt
	require.NotNil(t, attempt)

	for i := 1; i <= 2; i++ {
		attempt, err = f.engine.RetryAttempt(context.Background(), attempt.ID)
		require.NoError(t, err)
	}

	attempt, err = f.engine.RetryAttempt(context.Background(), attempt.ID)
	assert.True(t, IsTerminalSettlement(err))
	assert.True(t, attempt.Exhausted())

	status, err := f.engine.GetStatus(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, status.Status)
	assert.True(t, status.UnresolvedPayment)
	assert.Equal(t, "challenge failed, manual payment required", status.Narrative)

	// The budget is spent: no further provider call ever happens.
	_, err = f.engine.RetryAttempt(context.Background(), attempt.ID)
	assert.True(t, IsTerminalSettlement(err))
	assert.Equal(t, 4, f.provider.calls)
}

// TestEnsureSettlement tests crash recovery for a challenge stuck in
// fail without a recorded attempt.
func TestEnsureSettlement(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -2*time.Hour, -time.Hour)

	// Force the challenge into fail without settling, as if the
	// process died between the transition and the provider call.
	_, err := f.store.TransitionChallenge(ch.ID, types.ChallengeStatusScheduled, func(c *types.Challenge) error {
		c.Status = types.ChallengeStatusFail
		c.FailReason = types.FailReasonTimeout
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.EnsureSettlement(context.Background(), ch.ID))

	status, err := f.engine.GetStatus(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, status.Status)
	assert.False(t, status.UnresolvedPayment)
	assert.Equal(t, 1, f.provider.calls)

	// Idempotent on an already settled challenge.
	require.NoError(t, f.engine.EnsureSettlement(context.Background(), ch.ID))
	assert.Equal(t, 1, f.provider.calls)
}

// TestGetStatusNotFound verifies unknown challenges surface not-found
func TestGetStatusNotFound(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	_, err := f.engine.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// faultStore wraps a real store and fails attempt lookups, simulating
// a read fault after the judgment has committed.
type faultStore struct {
	storage.Store
	attemptErr error
}

func (s *faultStore) GetPaymentAttemptByChallenge(challengeID string) (*types.PaymentAttempt, error) {
	if s.attemptErr != nil {
		return nil, s.attemptErr
	}
	return s.Store.GetPaymentAttemptByChallenge(challengeID)
}

// TestArrivalSurfacesAttemptLookupFault verifies a store fault while
// building the success outcome surfaces as a transient error instead
// of panicking the caller.
func TestArrivalSurfacesAttemptLookupFault(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	broken := &faultStore{Store: f.store, attemptErr: errors.New("disk read failed")}
	notifier := notify.NewEnqueuer(broken, f.clock)
	settler := payment.NewSettler(broken, f.provider, f.clock, notifier, nil, payment.DefaultConfig())
	eng := New(broken, f.clock, settler, notifier, nil)

	out, err := eng.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Nil(t, out)

	// The judgment itself committed; only the outcome read failed.
	status, err := f.engine.GetStatus(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, status.Status)
}

// TestRecordArrivalConcurrent races duplicate arrival claims for one
// challenge. Exactly one claim is judged; the rest observe the
// recorded outcome instead of re-judging.
func TestRecordArrivalConcurrent(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	ch := f.schedule(t, -time.Minute, time.Hour)

	const callers = 4
	outs := make([]*Outcome, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = f.engine.RecordArrival(context.Background(), ch.ID, pingAt(35.0, 139.0, f.clock.now))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outs[i])
		if !outs[i].AlreadyResolved {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 0, f.provider.calls)

	status, err := f.engine.GetStatus(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, status.Status)
	assert.False(t, status.UnresolvedPayment)
}

// TestReconcileExpiredConcurrent races redundant reconciles of one
// expired challenge. The conditional write picks exactly one winner;
// everyone else gets the resolved outcome, and the provider is
// charged once.
func TestReconcileExpiredConcurrent(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -2*time.Hour, -time.Hour)

	const callers = 4
	outs := make([]*Outcome, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = f.engine.ReconcileExpired(context.Background(), ch.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outs[i])
		if !outs[i].AlreadyResolved {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, f.provider.calls)

	attempt, err := f.store.GetPaymentAttemptByChallenge(ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusSucceeded, attempt.Status)

	status, err := f.engine.GetStatus(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChallengeStatusSettled, status.Status)
}

// TestInvalidPingFailsChallenge verifies an unusable fix counts as a
// failed arrival rather than an error.
func TestInvalidPingFailsChallenge(t *testing.T) {
	f := newFixture(t, &fakeProvider{results: []*payment.ChargeResult{approved("ch_ext_1")}})
	ch := f.schedule(t, -time.Minute, time.Hour)

	bad := pingAt(35.0, 139.0, f.clock.now)
	bad.IsValid = false

	out, err := f.engine.RecordArrival(context.Background(), ch.ID, bad)
	require.NoError(t, err)

	assert.Equal(t, types.FailReasonGeofence, out.FailReason)
	require.NotNil(t, out.Judgment)
	assert.False(t, out.Judgment.Passed)
}
