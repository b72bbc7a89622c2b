/*
Package idempotency derives the deterministic keys sent to external
providers.

A key is a pure function of the challenge and the operation ordinal,
never random: the same logical operation always presents the same key,
so a crashed-and-repeated call deduplicates at the provider instead of
charging twice.

	settle:{challengeID}:create      the initial charge
	settle:{challengeID}:retry:{n}   the nth retry (1-based)
	notify:{challengeID}:{kind}      one notification per kind
*/
package idempotency
