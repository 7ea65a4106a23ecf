package ports

import (
	"context"

	"github.com/jcmexdev/storefront/internal/coordinator"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront/internal/payment-service/app"
)

// CheckoutService places orders and prepares the payment handoff.
type CheckoutService interface {
	Run(ctx context.Context, req orderapp.CheckoutRequest) (coordinator.CheckoutOutcome, error)
}

type OrderService interface {
	Get(ctx context.Context, id string) (orderdomain.Order, error)
	Edit(ctx context.Context, req orderapp.EditRequest) (orderapp.Result, error)
	Delete(ctx context.Context, id string) error
}

type AvailabilityChecker interface {
	Check(ctx context.Context, variantID string, quantity int) (inventorydomain.Availability, error)
}

type StockLedger interface {
	Restock(ctx context.Context, variantID string, quantity int) (inventorydomain.Variant, error)
	StockLevels(ctx context.Context, lowOnly bool) ([]inventorydomain.StockLevel, error)
}

// PaymentService reconciles gateway callbacks with orders.
type PaymentService interface {
	Confirm(ctx context.Context, env paymentapp.Envelope) (orderapp.Result, error)
}
