package types

import (
	"fmt"
	"time"
)

// ValidationError reports malformed config or command input. It is rejected
// at the boundary and never mutates engine state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError is the pre-trade cash check failing. The cycle and
// portfolio are untouched; the same condition is re-evaluated on a later tick.
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need $%.2f, have $%.2f", e.Required, e.Available)
}

// MarketNotFoundError is returned by manual market selection.
type MarketNotFoundError struct {
	Slug string
}

func (e *MarketNotFoundError) Error() string {
	return fmt.Sprintf("market not found: %s", e.Slug)
}

// ExecutionTimeoutError means a live order was not filled within the fill
// deadline. The order has been cancelled; the leg stays incomplete and is
// retried on the next tick opportunity.
type ExecutionTimeoutError struct {
	OrderID string
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("order %s not filled within %s, cancelled", e.OrderID, e.Timeout)
}

// NetworkError wraps feed or API I/O failures so callers can distinguish
// transient transport problems from trading errors.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Known Polymarket CLOB API error codes.
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrUnmatched          = "UNMATCHED"
)
