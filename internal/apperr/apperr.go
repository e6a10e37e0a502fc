// Package apperr holds the error taxonomy shared by the order and wallet
// domains, plus the mapping of those errors onto stable codes and HTTP
// statuses used at the transport edge.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientPoints    = errors.New("insufficient loyalty points")
	ErrDuplicateTransaction  = errors.New("duplicate transaction")
	ErrRewardExpired         = errors.New("reward expired")
	ErrRewardAlreadyRedeemed = errors.New("reward already redeemed")
	ErrUnauthorizedActor     = errors.New("unauthorized actor")
	ErrLimitExceeded         = errors.New("limit exceeded")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
)

// Kind returns a stable machine-readable code for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"

	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"

	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"

	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate_transaction"

	case errors.Is(err, ErrRewardExpired):
		return "reward_expired"

	case errors.Is(err, ErrRewardAlreadyRedeemed):
		return "reward_already_redeemed"

	case errors.Is(err, ErrUnauthorizedActor):
		return "unauthorized_actor"

	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"

	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"

	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrConflict):
		return "conflict"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// HTTPStatus maps err onto the status code returned to API clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest

	case errors.Is(err, ErrUnauthorizedActor):
		return http.StatusForbidden

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateTransaction),
		errors.Is(err, ErrRewardAlreadyRedeemed),
		errors.Is(err, ErrConflict):
		return http.StatusConflict

	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientPoints),
		errors.Is(err, ErrRewardExpired),
		errors.Is(err, ErrLimitExceeded):
		return http.StatusUnprocessableEntity

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
