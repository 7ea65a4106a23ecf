package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnknownStatus        = errors.New("unknown order status")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrNotDeletable         = errors.New("order can only be deleted from a terminal status")
	ErrEmptyOrder           = errors.New("order has no items")
	ErrInvalidAmount        = errors.New("amounts must not be negative")
	ErrInvalidLine          = errors.New("order line needs a variant or product and a positive quantity")
	ErrVariantRequired      = errors.New("product has several variants, a variant id is required")
	ErrPaymentNotConfirmed  = errors.New("online payment has not been confirmed")
	ErrCodeExhausted        = errors.New("could not allocate a unique order code")
)

// InvalidTransitionError names both ends of a rejected status change.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
