package storage

import (
	"errors"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStatusConflict is returned when a conditional write finds the
	// record in a different status than the caller expected. The losing
	// side of a race sees this, never partial state.
	ErrStatusConflict = errors.New("status conflict")

	// ErrDuplicateAttempt is returned when a settlement attempt already
	// exists for the challenge.
	ErrDuplicateAttempt = errors.New("payment attempt already exists")
)

// Store defines the persistence contract for engine state.
//
// Every status change goes through a conditional write keyed on the
// previous expected status, so two racing callers attempting the same
// transition resolve to exactly one winner.
type Store interface {
	// Challenges
	CreateChallenge(ch *types.Challenge) error
	GetChallenge(id string) (*types.Challenge, error)
	ListChallenges() ([]*types.Challenge, error)
	ListExpiredChallenges(now time.Time) ([]*types.Challenge, error)

	// ListUnsettledFailures returns challenges sitting in fail whose
	// settlement has not finished; the reconciliation sweep re-drives
	// them.
	ListUnsettledFailures() ([]*types.Challenge, error)

	// TransitionChallenge atomically applies mutate to the challenge
	// if and only if its stored status equals expected. The version
	// counter is bumped on success. Returns ErrStatusConflict when the
	// stored status no longer matches.
	TransitionChallenge(id string, expected types.ChallengeStatus, mutate func(*types.Challenge) error) (*types.Challenge, error)

	// Location pings (append-only)
	CreatePing(ping *types.LocationPing) error
	ListPingsByChallenge(challengeID string) ([]*types.LocationPing, error)

	// Payment attempts (never deleted; financial audit trail)
	CreatePaymentAttempt(attempt *types.PaymentAttempt) error
	GetPaymentAttempt(id string) (*types.PaymentAttempt, error)
	GetPaymentAttemptByChallenge(challengeID string) (*types.PaymentAttempt, error)
	ListDueRetries(now time.Time) ([]*types.PaymentAttempt, error)

	// UpdatePaymentAttemptIf atomically applies mutate to the attempt
	// if and only if its stored status equals expected.
	UpdatePaymentAttemptIf(id string, expected types.PaymentStatus, mutate func(*types.PaymentAttempt) error) (*types.PaymentAttempt, error)

	// Notification requests
	CreateNotification(req *types.NotificationRequest) error
	ListPendingNotifications() ([]*types.NotificationRequest, error)
	UpdateNotification(req *types.NotificationRequest) error

	// Utility
	Close() error
}
