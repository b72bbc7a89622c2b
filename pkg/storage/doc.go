/*
Package storage persists the engine's state in an embedded bbolt store.

The Store interface is the engine's only view of persistence; BoltStore
is the production implementation. Records are JSON values in one bucket
per record type, keyed by ID.

# Buckets

	challenges                   challenge records by ID
	pings                        location pings by "{challengeID}/{pingID}"
	payment_attempts             attempt records by ID
	payment_attempts_by_challenge challengeID -> attemptID index
	notifications                notification requests by ID

# Concurrency Contract

Two operations carry the engine's correctness guarantees:

TransitionChallenge(id, expected, mutate):
  - Reads, compares, mutates, and writes inside a single bbolt Update
    transaction
  - Returns ErrStatusConflict when the stored status is not the
    expected one; the record is left untouched
  - Bumps Version on every committed write

CreatePaymentAttempt(attempt):
  - Inserts the attempt and its challenge index entry in one
    transaction
  - Returns ErrDuplicateAttempt when the challenge already has an
    attempt, which is how "at most one attempt per challenge" is
    enforced

UpdatePaymentAttemptIf mirrors TransitionChallenge for attempts.

# Scan Queries

The sweep loops run filter scans rather than maintained indexes; at
this scale a full-bucket scan is cheaper than keeping secondary
indexes correct:

  - ListExpiredChallenges(now): scheduled or active, EndAt < now
  - ListUnsettledFailures(): status fail
  - ListDueRetries(now): failed, not exhausted, NextRetryAt <= now
  - ListPendingNotifications(): pending requests

# Usage

	store, err := storage.NewBoltStore("/var/lib/daybreak")
	if err != nil {
		return err
	}
	defer store.Close()

	updated, err := store.TransitionChallenge(id, types.ChallengeStatusActive,
		func(c *types.Challenge) error {
			c.Status = types.ChallengeStatusSuccess
			return nil
		})
	if errors.Is(err, storage.ErrStatusConflict) {
		// someone else resolved it first
	}
*/
package storage
