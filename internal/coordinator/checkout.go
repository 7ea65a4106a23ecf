package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
)

// CheckoutOutcome is what a customer gets back from checkout: the order and,
// for gateway-settled methods, where to pay.
type CheckoutOutcome struct {
	orderapp.CheckoutResult
	RedirectURL string
}

// CheckoutSaga places an order and hands the customer off to payment,
// cancelling the order if the handoff cannot be prepared.
type CheckoutSaga struct {
	orders   OrderPlacer
	payments PaymentHandoff
	log      sagalog.Repository
}

func NewCheckoutSaga(orders OrderPlacer, payments PaymentHandoff, log sagalog.Repository) *CheckoutSaga {
	return &CheckoutSaga{orders: orders, payments: payments, log: log}
}

func (s *CheckoutSaga) Run(ctx context.Context, req orderapp.CheckoutRequest) (CheckoutOutcome, error) {
	create := NewCreateOrderStep(s.orders, req)
	handoff := NewPaymentHandoffStep(s.payments, create)

	payload, err := json.Marshal(newCheckoutPayload(req))
	if err != nil {
		return CheckoutOutcome{}, fmt.Errorf("encode checkout saga payload: %w", err)
	}
	saga := NewOrchestrator(uuid.NewString(), string(payload), []Step{create, handoff}, s.log)
	if err := saga.Start(ctx); err != nil {
		return CheckoutOutcome{}, err
	}
	return CheckoutOutcome{CheckoutResult: create.Result(), RedirectURL: handoff.RedirectURL()}, nil
}

// checkoutPayload is what the saga log keeps of a checkout request. Customer
// contact details stay on the order only.
type checkoutPayload struct {
	PaymentMethod string        `json:"payment_method"`
	Lines         []payloadLine `json:"lines"`
}

type payloadLine struct {
	VariantID string `json:"variant_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

func newCheckoutPayload(req orderapp.CheckoutRequest) checkoutPayload {
	p := checkoutPayload{PaymentMethod: string(req.PaymentMethod), Lines: make([]payloadLine, 0, len(req.Lines))}
	for _, l := range req.Lines {
		p.Lines = append(p.Lines, payloadLine{VariantID: l.VariantID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return p
}
