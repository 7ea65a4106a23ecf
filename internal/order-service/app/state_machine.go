package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
	"github.com/jcmexdev/storefront/internal/pkg/telemetry"
)

// Actor names who asked for a transition.
type Actor string

const (
	ActorCheckout Actor = "checkout"
	ActorPayment  Actor = "payment"
	ActorAdmin    Actor = "admin"
)

// Outcome tells a caller whether its request changed anything.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyProcessed is an idempotent no-op, not a failure.
	OutcomeAlreadyProcessed
)

func (o Outcome) String() string {
	if o == OutcomeAlreadyProcessed {
		return "already_processed"
	}
	return "applied"
}

// TransitionRequest asks the state machine to move an order to a new status.
type TransitionRequest struct {
	OrderID string
	To      domain.OrderStatus
	Actor   Actor
	// ConfirmPayment lets an admin move an unpaid online order to
	// PROCESSING, standing in for a gateway callback that never arrived.
	ConfirmPayment bool
	Note           string
}

// Result is the order after a transition request.
type Result struct {
	Order            domain.Order
	From             domain.OrderStatus
	Outcome          Outcome
	StockDecremented bool
	StockReleased    bool
	MarkedPaid       bool
}

func (r Result) AlreadyProcessed() bool {
	return r.Outcome == OutcomeAlreadyProcessed
}

// StateMachine validates status changes against the adjacency table and
// applies their side effects in the same transaction as the status write.
type StateMachine struct {
	guard *Guard
	now   func() time.Time
}

func NewStateMachine(guard *Guard) *StateMachine {
	return &StateMachine{guard: guard, now: time.Now}
}

// Apply transitions order, which must have been read (and locked where the
// dialect supports it) inside tx.
func (sm *StateMachine) Apply(ctx context.Context, tx *gorm.DB, order *domain.Order, req TransitionRequest) (Result, error) {
	from := order.Status
	res := Result{From: from}

	if sm.isDuplicate(order, req) {
		res.Outcome = OutcomeAlreadyProcessed
		res.Order = *order
		return res, nil
	}
	if !from.CanTransitionTo(req.To) {
		return Result{}, &domain.InvalidTransitionError{From: from, To: req.To}
	}

	now := sm.now()
	updates := map[string]any{"status": string(req.To), "updated_at": now}

	switch req.To {
	case domain.StatusProcessing:
		if order.PaymentMethod.IsDeferred() && !order.IsPaid {
			if req.Actor != ActorPayment && !req.ConfirmPayment {
				return Result{}, fmt.Errorf("%w: order %s", domain.ErrPaymentNotConfirmed, order.ID)
			}
			updates["is_paid"] = true
			updates["paid_at"] = now
			res.MarkedPaid = true
		}
		decremented, err := sm.guard.Decrement(ctx, tx, order)
		if err != nil {
			return Result{}, err
		}
		res.StockDecremented = decremented

	case domain.StatusDelivered:
		if order.PaymentMethod == domain.PaymentCOD && !order.IsPaid {
			updates["is_paid"] = true
			updates["paid_at"] = now
			res.MarkedPaid = true
		}

	case domain.StatusCancelled:
		released, err := sm.guard.Release(ctx, tx, order)
		if err != nil {
			return Result{}, err
		}
		res.StockReleased = released

	case domain.StatusReturned:
		updates["refund_eligible"] = true
	}

	result := tx.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ?", order.ID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return Result{}, fmt.Errorf("update order %s status: %w", order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return Result{}, database.ErrStaleWrite
	}

	if err := writeStatusLog(ctx, tx, order.ID, from, req.To, req.Actor, req.Note); err != nil {
		return Result{}, err
	}

	reloaded, err := loadOrder(ctx, tx, order.ID, false)
	if err != nil {
		return Result{}, err
	}
	res.Order = *reloaded
	res.Outcome = OutcomeApplied
	return res, nil
}

// isDuplicate recognizes requests whose effect is already in place: the
// same target status, a repeated payment confirmation, or a payment failure
// arriving after the order was paid or closed.
func (sm *StateMachine) isDuplicate(order *domain.Order, req TransitionRequest) bool {
	if order.Status == req.To {
		return true
	}
	if req.Actor != ActorPayment {
		return false
	}
	switch req.To {
	case domain.StatusProcessing:
		return order.IsPaid
	case domain.StatusCancelled:
		return order.IsPaid || order.Status != domain.StatusPending
	}
	return false
}

func writeStatusLog(ctx context.Context, tx *gorm.DB, orderID string, from, to domain.OrderStatus, actor Actor, note string) error {
	ti := telemetry.ExtractTraceInfo(ctx)
	entry := domain.StatusLog{
		OrderID: orderID,
		From:    from,
		To:      to,
		Actor:   string(actor),
		Note:    truncate(note, 255),
		TraceID: ti.TraceID,
		SpanID:  ti.SpanID,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("write status log for order %s: %w", orderID, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
