/*
Package types defines the core data structures shared across daybreak.

This package is the foundation of the domain model: challenges and
their lifecycle statuses, location pings, payment attempts, and
notification requests. All other packages depend on it; it depends on
nothing but the standard library.

# Core Types

Challenge lifecycle:
  - Challenge: one wake-up commitment with a window, a target
    geofence, and a penalty
  - ChallengeStatus: scheduled, active, success, fail, settled
  - FailReason: geofence (judged outside) or timeout (window elapsed)

Evidence:
  - LocationPing: one reported position, append-only audit data
  - PingSource: gps, network, qr, manual

Settlement:
  - PaymentAttempt: the single charge record for a failed challenge,
    carrying the retry budget
  - PaymentStatus: pending, processing, succeeded, failed, canceled

Notifications:
  - NotificationRequest: a queued push message tied to a challenge
  - NotificationKind: challenge.* and penalty.* message kinds

All monetary amounts are int64 minor units (cents, yen). All times are
UTC.
*/
package types
