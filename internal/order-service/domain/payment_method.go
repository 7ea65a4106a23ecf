package domain

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	// PaymentCOD is cash on delivery: stock is taken at checkout and the
	// order is marked paid when it is delivered.
	PaymentCOD PaymentMethod = "cod"
	// PaymentCard and PaymentWallet settle through an external gateway;
	// stock is taken once the gateway confirms the funds.
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentCOD, PaymentCard, PaymentWallet:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

// SettlesAtCheckout reports whether stock is decremented in the checkout unit of work.
func (m PaymentMethod) SettlesAtCheckout() bool {
	return m == PaymentCOD
}

// IsDeferred reports whether payment is confirmed asynchronously by a gateway.
func (m PaymentMethod) IsDeferred() bool {
	return m == PaymentCard || m == PaymentWallet
}
