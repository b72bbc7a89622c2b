/*
Package payment settles penalties for failed challenges.

A failed challenge owes its penalty exactly once. This package owns
everything between "the challenge failed" and "the money question is
answered": creating the single payment attempt, calling the processor,
scheduling bounded retries with exponential backoff, and settling the
challenge when the attempt succeeds or the retry budget runs out.

# Exactly-Once Charging

Three mechanisms stack to keep duplicate invocations from producing
duplicate charges:

 1. Deterministic idempotency keys. Every processor call carries a key
    derived from the challenge and the retry ordinal
    (settle:{id}:create, settle:{id}:retry:{n}). Even if the same
    logical call reaches the processor twice, it is deduplicated
    there.

 2. One attempt per challenge. The store rejects a second attempt row
    for the same challenge; a racing creator loses with
    ErrDuplicateAttempt and adopts the winner's attempt.

 3. Conditional status writes. Retries claim the attempt with a
    failed -> processing conditional write; concurrent retries lose
    with ErrStatusConflict and back off.

# Retry Budget

A declined or errored charge schedules a retry at
now + backoff(retryCount), where backoff grows exponentially from a
15 minute base and caps at 24 hours. After MaxRetries (default 3)
failed retries the attempt is exhausted: the challenge settles with an
unresolved-payment marker, Retry returns ErrRetriesExhausted, and no
further processor call is ever made.

# Crash Recovery

The settler assumes it can die between any two steps:

  - Attempt created, never charged (pending): the next Settle re-drives
    the charge under the create key.
  - Charge accepted, answer lost: a retry with a recorded ExternalRef
    first retrieves the charge and confirms instead of re-charging.
  - Charge succeeded, challenge never settled: the next Settle finishes
    the settlement half without touching the processor.

# Usage

	settler := payment.NewSettler(store, provider, clk, notifier, broker, payment.DefaultConfig())

	attempt, err := settler.Settle(ctx, failedChallenge)

	attempt, err = settler.Retry(ctx, attempt.ID)
	if errors.Is(err, payment.ErrRetriesExhausted) {
		// settled unresolved; manual resolution from here
	}

# See Also

  - pkg/idempotency for the key derivation
  - pkg/sweep for the loop that drives due retries
*/
package payment
