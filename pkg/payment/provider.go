package payment

import (
	"context"

	"github.com/daybreaklabs/daybreak/pkg/log"
)

// ChargeStatus is the provider-side state of a charge
type ChargeStatus string

const (
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// ChargeResult is the provider's answer to a charge operation
type ChargeResult struct {
	ExternalRef    string
	Status         ChargeStatus
	FailureCode    string
	FailureMessage string
}

// Provider is the contract with an external payment processor. The
// processor is assumed to honor idempotency keys: two calls with the
// same key produce at most one real charge.
type Provider interface {
	// CreateCharge creates or confirms a charge under the given
	// idempotency key.
	CreateCharge(ctx context.Context, idempotencyKey, customerRef string, amountMinorUnits int64, currency string) (*ChargeResult, error)

	// RetrieveCharge fetches the current state of a previously created
	// charge.
	RetrieveCharge(ctx context.Context, externalRef string) (*ChargeResult, error)
}

// StubProvider approves every charge. Used for local runs and demos
// where no real processor is wired.
type StubProvider struct{}

func (StubProvider) CreateCharge(_ context.Context, idempotencyKey, customerRef string, amountMinorUnits int64, currency string) (*ChargeResult, error) {
	logger := log.WithComponent("payment")
	logger.Info().
		Str("idempotency_key", idempotencyKey).
		Str("customer_ref", customerRef).
		Int64("amount", amountMinorUnits).
		Str("currency", currency).
		Msg("stub provider approving charge")

	return &ChargeResult{
		ExternalRef: "stub_" + idempotencyKey,
		Status:      ChargeStatusSucceeded,
	}, nil
}

func (StubProvider) RetrieveCharge(_ context.Context, externalRef string) (*ChargeResult, error) {
	return &ChargeResult{
		ExternalRef: externalRef,
		Status:      ChargeStatusSucceeded,
	}, nil
}
