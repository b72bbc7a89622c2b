package types

import (
	"time"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ChallengeStatus represents the lifecycle state of a challenge
type ChallengeStatus string

const (
	ChallengeStatusScheduled ChallengeStatus = "scheduled"
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusSuccess   ChallengeStatus = "success"
	ChallengeStatusFail      ChallengeStatus = "fail"
	ChallengeStatusSettled   ChallengeStatus = "settled"
)

// Terminal reports whether the status is past judgment. A terminal
// challenge never re-judges an arrival claim; success and fail still
// move to settled, settled is final.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeStatusSuccess || s == ChallengeStatusFail || s == ChallengeStatusSettled
}

// FailReason records why a challenge entered fail
type FailReason string

const (
	FailReasonGeofence FailReason = "geofence"
	FailReasonTimeout  FailReason = "timeout"
)

// Challenge is the aggregate root: one scheduled wake-up commitment
// with a pre-authorized penalty. Its ID is the idempotency root for
// every side effect derived from it.
type Challenge struct {
	ID          string `json:"id"`
	UserRef     string `json:"user_ref"`
	CustomerRef string `json:"customer_ref"` // payment provider customer

	StartAt time.Time `json:"start_at"` // UTC
	EndAt   time.Time `json:"end_at"`   // UTC

	HomeLocation       GeoPoint `json:"home_location"`
	TargetLocation     GeoPoint `json:"target_location"`
	TargetRadiusMeters float64  `json:"target_radius_meters"`

	PenaltyAmount    int64  `json:"penalty_amount"` // minor currency units
	Currency         string `json:"currency"`
	PaymentIntentRef string `json:"payment_intent_ref,omitempty"`

	Status     ChallengeStatus `json:"status"`
	FailReason FailReason      `json:"fail_reason,omitempty"`

	// Judgment distance recorded at the success/fail transition so a
	// late duplicate arrival claim is answered without re-judging.
	JudgedDistanceMeters *float64 `json:"judged_distance_meters,omitempty"`

	// UnresolvedPayment marks a settled challenge whose penalty could
	// not be collected within the retry ceiling.
	UnresolvedPayment bool `json:"unresolved_payment,omitempty"`

	Version   int64     `json:"version"` // bumped on every transition
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultTargetRadiusMeters is applied when a challenge is scheduled
// without an explicit radius.
const DefaultTargetRadiusMeters = 100

// PingSource identifies how a location observation was produced
type PingSource string

const (
	PingSourceGPS     PingSource = "gps"
	PingSourceNetwork PingSource = "network"
	PingSourceQR      PingSource = "qr"
	PingSourceManual  PingSource = "manual"
)

// LocationPing is an append-only position observation. Never mutated
// after creation.
type LocationPing struct {
	ID             string     `json:"id"`
	ChallengeID    string     `json:"challenge_id"`
	Lat            float64    `json:"lat"`
	Lng            float64    `json:"lng"`
	AccuracyMeters float64    `json:"accuracy_meters"`
	ObservedAt     time.Time  `json:"observed_at"`
	Source         PingSource `json:"source"`
	IsValid        bool       `json:"is_valid"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PaymentStatus represents the state of one settlement attempt
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

// DefaultMaxRetries bounds how many times a failed charge is retried
// before the challenge is settled with an unresolved-payment marker.
const DefaultMaxRetries = 3

// PaymentAttempt is the financial audit trail: one row per settlement
// attempt, never deleted.
type PaymentAttempt struct {
	ID          string `json:"id"`
	ChallengeID string `json:"challenge_id"`
	ExternalRef string `json:"external_ref,omitempty"`

	Amount   int64  `json:"amount"` // minor currency units
	Currency string `json:"currency"`

	Status      PaymentStatus `json:"status"`
	RetryCount  int           `json:"retry_count"`
	NextRetryAt time.Time     `json:"next_retry_at,omitzero"`
	MaxRetries  int           `json:"max_retries"`

	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exhausted reports whether the retry ceiling has been reached.
func (a *PaymentAttempt) Exhausted() bool {
	return a.RetryCount >= a.MaxRetries
}

// NotificationKind enumerates lifecycle events a user is told about
type NotificationKind string

const (
	NotifyChallengeActivated NotificationKind = "challenge.activated"
	NotifyChallengeSucceeded NotificationKind = "challenge.succeeded"
	NotifyChallengeFailed    NotificationKind = "challenge.failed"
	NotifyPenaltyCharged     NotificationKind = "penalty.charged"
	NotifyPenaltyRetry       NotificationKind = "penalty.retry_scheduled"
	NotifyPenaltyManual      NotificationKind = "penalty.manual_required"
)

// NotificationStatus represents delivery state of a request
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// NotificationRequest is produced as a side effect of state
// transitions and consumed by an external delivery collaborator.
// The engine only enqueues; it never blocks on delivery.
type NotificationRequest struct {
	ID          string             `json:"id"`
	ChallengeID string             `json:"challenge_id"`
	Kind        NotificationKind   `json:"kind"`
	Body        string             `json:"body,omitempty"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Status      NotificationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}
