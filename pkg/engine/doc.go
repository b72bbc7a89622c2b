/*
Package engine implements the challenge lifecycle state machine.

The engine is the single authority over challenge status. Every status
change is one atomic conditional write keyed on the expected previous
status, which makes every operation safe to call concurrently and
redundantly: exactly one caller wins a transition, everyone else
observes the already-recorded outcome.

# Architecture

	┌───────────────────── CHALLENGE LIFECYCLE ──────────────────────┐
	│                                                                 │
	│   scheduled ──(first in-window ping)──► active                  │
	│                                           │                     │
	│              ┌────────────────────────────┤                     │
	│              │                            │                     │
	│   (ping inside geofence)       (ping outside geofence,         │
	│              │                  or window elapsed)              │
	│              ▼                            ▼                     │
	│           success                       fail                    │
	│              │                            │                     │
	│     (no penalty owed)          (penalty settlement:             │
	│              │                  charge, bounded retries)        │
	│              ▼                            ▼                     │
	│           settled ◄──────────────────  settled                  │
	│                                                                 │
	└─────────────────────────────────────────────────────────────────┘

success, fail, and settled are terminal for judgment purposes: once a
challenge reaches any of them, no operation ever re-judges it. fail is
terminal for the user but not for the system; it resolves to settled
once the penalty question is answered.

# Operations

Schedule:
  - Validates the window, coordinates, penalty, and currency
  - Creates the challenge in scheduled status

RecordArrival:
  - Activates a scheduled challenge on the first in-window ping
  - Stores the ping as append-only audit data
  - Judges the geofence and transitions active -> success|fail
  - On success, settles immediately (nothing owed)
  - On fail, drives settlement through the payment settler

ReconcileExpired:
  - Forces a challenge whose window elapsed into fail (reason timeout)
  - Driven by the expiry sweep; also safe to call directly

RetryAttempt:
  - Re-attempts a failed settlement
  - Shared by the retry sweeper and user-initiated manual retries

GetStatus:
  - Pure read of the recorded outcome, no side effects

# Error Taxonomy

ValidationError:
  - The request itself is malformed; the caller must fix it

TransientError:
  - Infrastructure hiccup; the same call can be retried verbatim

TerminalSettlementFailure:
  - The retry budget is spent; only manual resolution remains

A repeat call on a resolved challenge is NOT an error: it returns the
recorded Outcome with AlreadyResolved set.

# Usage

	eng := engine.New(store, clk, settler, notifier, broker)

	ch, err := eng.Schedule(ctx, &types.Challenge{
		UserRef:        "user-1",
		CustomerRef:    "cus_123",
		StartAt:        startAt,
		EndAt:          endAt,
		TargetLocation: types.GeoPoint{Lat: 35.0, Lng: 139.0},
		PenaltyAmount:  500,
		Currency:       "usd",
	})

	out, err := eng.RecordArrival(ctx, ch.ID, ping)
	if err != nil {
		// classify with IsValidation / IsTransient / IsTerminalSettlement
	}
	fmt.Println(out.Narrative)

# See Also

  - pkg/payment for the settlement half of the lifecycle
  - pkg/sweep for the cron loops that drive expiry and retries
  - pkg/geo for the geofence judgment itself
*/
package engine
