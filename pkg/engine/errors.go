package engine

import (
	"errors"
	"fmt"
)

// ValidationError rejects bad input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ErrChallengeExpired rejects an arrival claim whose observation
// falls after the challenge window. The expiry reconciler owns that
// case.
var ErrChallengeExpired = &ValidationError{Field: "ping.observed_at", Reason: "challenge window has ended"}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientError wraps a persistence or provider I/O failure. The
// whole operation is safe to retry: a failed conditional write means
// no transition occurred.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// TerminalSettlementFailure surfaces a settlement whose retry ceiling
// is exhausted. It requires manual resolution and is never silently
// dropped.
type TerminalSettlementFailure struct {
	ChallengeID string
	AttemptID   string
}

func (e *TerminalSettlementFailure) Error() string {
	return fmt.Sprintf("settlement for challenge %s exhausted retries (attempt %s), manual resolution required", e.ChallengeID, e.AttemptID)
}

// IsTerminalSettlement reports whether err is a
// TerminalSettlementFailure.
func IsTerminalSettlement(err error) bool {
	var tf *TerminalSettlementFailure
	return errors.As(err, &tf)
}
