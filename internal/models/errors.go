package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is wrapped by store lookups that come back empty.
var ErrNotFound = errors.New("not found")

// ValidationError marks a malformed request the caller has to fix.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InsufficientStockError is returned by a stock debit that would drive the
// product's stock negative. The debit makes no change.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is returned when an operation is attempted from a
// disallowed order status. The order is left unchanged.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %q to %q", e.From, e.To)
}

// Coupon rejection reasons.
const (
	CouponNotFound       = "not_found"
	CouponExpired        = "expired"
	CouponMinimumNotMet  = "minimum_not_met"
	CouponUsageExhausted = "usage_exhausted"
)

// CouponError explains why a coupon code could not be applied.
type CouponError struct {
	Code           string
	Reason         string
	MinOrderAmount decimal.Decimal
}

func (e *CouponError) Error() string {
	switch e.Reason {
	case CouponMinimumNotMet:
		return fmt.Sprintf("coupon %q requires a minimum order amount of %s", e.Code, e.MinOrderAmount)
	default:
		return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
	}
}

// PaymentError wraps a failure talking to the external payment provider.
// Local state is left unchanged and the caller may retry; the payment_id
// acts as the provider-side idempotency key.
type PaymentError struct {
	Op      string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("payment %s failed: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// PaymentMismatchError is returned when the payment id presented by the
// client does not match the one stored on the order.
type PaymentMismatchError struct {
	OrderID   int64
	PaymentID string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment %q does not belong to order %d", e.PaymentID, e.OrderID)
}

// PaymentNotCompletedError carries the provider's raw intent status so the
// client can decide whether to retry or abandon.
type PaymentNotCompletedError struct {
	Status string
}

func (e *PaymentNotCompletedError) Error() string {
	return fmt.Sprintf("payment not completed: intent status %q", e.Status)
}
