// Package gateway abstracts the external payment network that moves money
// in and out of wallets.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/marketplace-ledger/internal/apperr"
)

var (
	// ErrUnavailable marks a transient failure; the call may be retried
	ErrUnavailable = errors.New("payment gateway unavailable")
	ErrDeclined    = fmt.Errorf("%w: declined by payment gateway", apperr.ErrConflict)
	ErrUnknownRef  = fmt.Errorf("payout reference %w", apperr.ErrNotFound)
)

type PayoutState string

const (
	PayoutProcessing PayoutState = "processing"
	PayoutSucceeded  PayoutState = "succeeded"
	PayoutFailed     PayoutState = "failed"
)

type VerifyRequest struct {
	AccountID  string
	MethodID   string
	MethodType string
	Identifier string
}

type ChargeRequest struct {
	AccountID string
	MethodID  string
	Amount    int64
	Currency  string
	Reference string // see Reference
}

type PayoutRequest struct {
	AccountID string
	MethodID  string
	Amount    int64 // net of fees
	Currency  string
	Reference string // see Reference
}

type PayoutStatus struct {
	State  PayoutState
	Reason string
}

// Reference is the gateway-side idempotency key for a ledger transaction
func Reference(accountID, txID string) string {
	return accountID + "/" + txID
}

// Gateway moves funds outside the ledger. Charge and Payout are idempotent
// per Reference.
type Gateway interface {
	VerifyMethod(ctx context.Context, req VerifyRequest) error
	Charge(ctx context.Context, req ChargeRequest) error
	Payout(ctx context.Context, req PayoutRequest) error
	PayoutStatus(ctx context.Context, reference string) (PayoutStatus, error)
}
