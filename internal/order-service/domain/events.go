package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated    EventType = "order.created"
	EventStatusChanged   EventType = "order.status_changed"
	EventRefundEligible  EventType = "order.refund_eligible"
	EventPaymentRejected EventType = "payment.rejected"
)

// Event is published after the unit of work that produced it committed.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OrderID    string          `json:"order_id"`
	OrderCode  string          `json:"order_code,omitempty"`
	From       OrderStatus     `json:"from,omitempty"`
	To         OrderStatus     `json:"to,omitempty"`
	Total      decimal.Decimal `json:"total"`
	IsPaid     bool            `json:"is_paid"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers order events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
