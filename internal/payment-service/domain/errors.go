package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrBadSignature     = errors.New("payment confirmation signature is invalid")
	ErrMalformedPayload = errors.New("payment confirmation payload is malformed")
	ErrUnknownOrder     = errors.New("payment confirmation references an unknown order")
	ErrAmountMismatch   = errors.New("confirmed amount does not match the order total")
	ErrMethodMismatch   = errors.New("order is not settled through this gateway")
)

type AmountMismatchError struct {
	OrderID  string
	Expected decimal.Decimal
	Received decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: confirmed amount %s does not match total %s", e.OrderID, e.Received, e.Expected)
}

func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}
