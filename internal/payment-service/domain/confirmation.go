package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
)

// Kind names an external payment gateway.
type Kind string

const (
	KindCardPay   Kind = "cardpay"
	KindWalletPay Kind = "walletpay"
)

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindCardPay, KindWalletPay:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGateway, s)
}

// Method is the order payment method settled through this gateway.
func (k Kind) Method() orderdomain.PaymentMethod {
	switch k {
	case KindCardPay:
		return orderdomain.PaymentCard
	case KindWalletPay:
		return orderdomain.PaymentWallet
	}
	return ""
}

// KindFor returns the gateway that settles method, if any.
func KindFor(method orderdomain.PaymentMethod) (Kind, bool) {
	switch method {
	case orderdomain.PaymentCard:
		return KindCardPay, true
	case orderdomain.PaymentWallet:
		return KindWalletPay, true
	}
	return "", false
}

// Confirmation is a gateway callback normalized into the one shape the
// reconciler understands.
type Confirmation struct {
	OrderID   string
	Succeeded bool
	Amount    decimal.Decimal
	Gateway   Kind
	// Reference is the gateway's own id for the event, kept for the audit trail.
	Reference string
}

// AmountMatches reports whether the confirmed amount is within tolerance of total.
func (c Confirmation) AmountMatches(total, tolerance decimal.Decimal) bool {
	return c.Amount.Sub(total).Abs().LessThanOrEqual(tolerance)
}
