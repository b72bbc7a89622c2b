package idempotency

import "fmt"

// Keys are derived deterministically from the operation's identity so
// that duplicate invocations (a cron sweep firing twice, a user claim
// racing a sweep) hand the payment provider the same key and produce
// at most one real-world effect.

// SettleCreateKey derives the key for the initial charge of a
// challenge's penalty.
func SettleCreateKey(challengeID string) string {
	return fmt.Sprintf("settle:%s:create", challengeID)
}

// SettleRetryKey derives the key for the nth retry of a failed
// charge. Each retry number maps to its own key so a provider-side
// duplicate of retry n cannot be confused with retry n+1.
func SettleRetryKey(challengeID string, retry int) string {
	return fmt.Sprintf("settle:%s:retry:%d", challengeID, retry)
}

// NotifyKey derives the key for a lifecycle notification send.
func NotifyKey(challengeID, kind string) string {
	return fmt.Sprintf("notify:%s:%s", challengeID, kind)
}
