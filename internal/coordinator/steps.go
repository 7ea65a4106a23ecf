package coordinator

import (
	"context"
	"fmt"

	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
)

// OrderPlacer is the part of the order service the checkout saga drives.
type OrderPlacer interface {
	Checkout(ctx context.Context, req orderapp.CheckoutRequest) (orderapp.CheckoutResult, error)
	Transition(ctx context.Context, req orderapp.TransitionRequest) (orderapp.Result, error)
}

// PaymentHandoff prepares the redirect to an external payment flow.
type PaymentHandoff interface {
	Handoff(ctx context.Context, order orderdomain.Order) (string, error)
}

// --- CreateOrderStep ---

type CreateOrderStep struct {
	orders  OrderPlacer
	request orderapp.CheckoutRequest
	result  orderapp.CheckoutResult
}

func NewCreateOrderStep(orders OrderPlacer, request orderapp.CheckoutRequest) *CreateOrderStep {
	return &CreateOrderStep{orders: orders, request: request}
}

func (s *CreateOrderStep) Name() string { return "Create_Order_Step" }

func (s *CreateOrderStep) Execute(ctx context.Context) error {
	res, err := s.orders.Checkout(ctx, s.request)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	s.result = res
	return nil
}

// Compensate cancels the order, which returns any stock it already took.
func (s *CreateOrderStep) Compensate(ctx context.Context) error {
	_, err := s.orders.Transition(ctx, orderapp.TransitionRequest{
		OrderID: s.result.Order.ID,
		To:      orderdomain.StatusCancelled,
		Actor:   orderapp.ActorCheckout,
		Note:    "checkout aborted",
	})
	return err
}

func (s *CreateOrderStep) OrderID() string { return s.result.Order.ID }

func (s *CreateOrderStep) Result() orderapp.CheckoutResult { return s.result }

// --- PaymentHandoffStep ---

type PaymentHandoffStep struct {
	payments    PaymentHandoff
	created     *CreateOrderStep
	redirectURL string
}

func NewPaymentHandoffStep(payments PaymentHandoff, created *CreateOrderStep) *PaymentHandoffStep {
	return &PaymentHandoffStep{payments: payments, created: created}
}

func (s *PaymentHandoffStep) Name() string { return "Payment_Handoff_Step" }

func (s *PaymentHandoffStep) Execute(ctx context.Context) error {
	order := s.created.Result().Order
	if !order.PaymentMethod.IsDeferred() {
		return nil
	}
	u, err := s.payments.Handoff(ctx, order)
	if err != nil {
		return fmt.Errorf("payment handoff for order %s: %w", order.ID, err)
	}
	if u == "" {
		return fmt.Errorf("no payment gateway configured for %s", order.PaymentMethod)
	}
	s.redirectURL = u
	return nil
}

// Compensate is a no-op: nothing is charged until the gateway calls back.
func (s *PaymentHandoffStep) Compensate(ctx context.Context) error {
	return nil
}

func (s *PaymentHandoffStep) RedirectURL() string { return s.redirectURL }
