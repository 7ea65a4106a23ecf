package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/payment-service/domain"
)

var tracer = otel.Tracer("github.com/jcmexdev/storefront/internal/payment-service/app")

// Orders is the part of the order service the reconciler drives.
type Orders interface {
	Get(ctx context.Context, id string) (orderdomain.Order, error)
	Transition(ctx context.Context, req orderapp.TransitionRequest) (orderapp.Result, error)
	PublishRejection(ctx context.Context, order orderdomain.Order, reason string)
}

// Reconciler turns gateway callbacks into order transitions. Duplicate and
// out-of-order callbacks are absorbed by the order state machine.
type Reconciler struct {
	gateways  *Registry
	orders    Orders
	tolerance decimal.Decimal
}

func NewReconciler(gateways *Registry, orders Orders, tolerance decimal.Decimal) *Reconciler {
	return &Reconciler{gateways: gateways, orders: orders, tolerance: tolerance}
}

// Confirm authenticates and normalizes a raw callback, then applies it.
func (r *Reconciler) Confirm(ctx context.Context, env Envelope) (orderapp.Result, error) {
	ctx, span := tracer.Start(ctx, "payments.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("gateway", string(env.Kind)))

	gw, err := r.gateways.Get(env.Kind)
	if err != nil {
		return orderapp.Result{}, err
	}
	if err := gw.Verify(env); err != nil {
		slog.WarnContext(ctx, "payment confirmation rejected", "gateway", env.Kind, "error", err)
		return orderapp.Result{}, err
	}
	conf, err := gw.Normalize(env)
	if err != nil {
		slog.WarnContext(ctx, "payment confirmation rejected", "gateway", env.Kind, "error", err)
		return orderapp.Result{}, err
	}
	return r.Apply(ctx, conf)
}

// Apply reconciles a verified confirmation with its order. Unknown orders
// and amount mismatches are rejected before anything is written.
func (r *Reconciler) Apply(ctx context.Context, conf domain.Confirmation) (orderapp.Result, error) {
	log := slog.With("order_id", conf.OrderID, "gateway", conf.Gateway, "reference", conf.Reference)

	order, err := r.orders.Get(ctx, conf.OrderID)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		log.WarnContext(ctx, "payment confirmation for unknown order")
		return orderapp.Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownOrder, conf.OrderID)
	}
	if err != nil {
		return orderapp.Result{}, err
	}

	if order.PaymentMethod != conf.Gateway.Method() {
		log.WarnContext(ctx, "payment confirmation from unexpected gateway", "payment_method", order.PaymentMethod)
		r.orders.PublishRejection(ctx, order, domain.ErrMethodMismatch.Error())
		return orderapp.Result{}, fmt.Errorf("%w: order %s pays by %s", domain.ErrMethodMismatch, order.ID, order.PaymentMethod)
	}

	if !conf.AmountMatches(order.Total, r.tolerance) {
		mismatch := &domain.AmountMismatchError{OrderID: order.ID, Expected: order.Total, Received: conf.Amount}
		log.WarnContext(ctx, "payment amount mismatch",
			"expected", order.Total.String(),
			"received", conf.Amount.String(),
			"tolerance", r.tolerance.String(),
		)
		r.orders.PublishRejection(ctx, order, mismatch.Error())
		return orderapp.Result{}, mismatch
	}

	to := orderdomain.StatusCancelled
	if conf.Succeeded {
		to = orderdomain.StatusProcessing
	}
	res, err := r.orders.Transition(ctx, orderapp.TransitionRequest{
		OrderID: order.ID,
		To:      to,
		Actor:   orderapp.ActorPayment,
		Note:    fmt.Sprintf("%s confirmation %s", conf.Gateway, conf.Reference),
	})
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		log.WarnContext(ctx, "order deleted while confirming payment")
		return orderapp.Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownOrder, conf.OrderID)
	case errors.Is(err, orderdomain.ErrInvalidTransition):
		// Typically funds captured for an order that was cancelled meanwhile.
		log.WarnContext(ctx, "payment confirmation conflicts with order status", "succeeded", conf.Succeeded, "error", err)
		return orderapp.Result{}, err
	case err != nil:
		log.ErrorContext(ctx, "failed to apply payment confirmation", "error", err)
		return orderapp.Result{}, err
	}

	log.InfoContext(ctx, "payment confirmation reconciled",
		"succeeded", conf.Succeeded,
		"outcome", res.Outcome.String(),
		"status", res.Order.Status,
	)
	return res, nil
}

// Handoff returns the redirect URL for orders paid through a gateway. Orders
// settled outside a gateway get an empty URL.
func (r *Reconciler) Handoff(ctx context.Context, order orderdomain.Order) (string, error) {
	gw, ok := r.gateways.ForMethod(order.PaymentMethod)
	if !ok {
		return "", nil
	}
	u, err := gw.HandoffURL(order)
	if err != nil {
		return "", err
	}
	slog.DebugContext(ctx, "payment handoff prepared", "order_id", order.ID, "gateway", gw.Kind())
	return u, nil
}
