package domain

import "time"

// InventoryDecrement records that stock was taken for an order. The unique
// order_id backs the Order.InventoryDecremented flag: a second decrement for
// the same order cannot insert its record.
type InventoryDecrement struct {
	ID         uint                     `gorm:"primaryKey"`
	OrderID    string                   `gorm:"size:36;not null;uniqueIndex"`
	Lines      []InventoryDecrementLine `gorm:"foreignKey:DecrementID;constraint:OnDelete:CASCADE"`
	ReleasedAt *time.Time
	CreatedAt  time.Time
}

// InventoryDecrementLine is what one order line took from a variant.
type InventoryDecrementLine struct {
	ID          uint   `gorm:"primaryKey"`
	DecrementID uint   `gorm:"not null;index"`
	VariantID   string `gorm:"size:36;not null"`
	Requested   int    `gorm:"not null"`
	Taken       int    `gorm:"not null"`
}

// StatusLog is the append-only audit trail of status changes. TraceID and
// SpanID link a row to the trace of the request that made the change.
type StatusLog struct {
	ID        uint        `gorm:"primaryKey"`
	OrderID   string      `gorm:"size:36;not null;index:idx_status_logs_order,priority:1"`
	From      OrderStatus `gorm:"column:from_status;size:16"`
	To        OrderStatus `gorm:"column:to_status;size:16;not null"`
	Actor     string      `gorm:"size:32;not null"`
	Note      string      `gorm:"size:255"`
	TraceID   string      `gorm:"size:32;index"`
	SpanID    string      `gorm:"size:16"`
	CreatedAt time.Time   `gorm:"index:idx_status_logs_order,priority:2"`
}

// Models lists the tables owned by the order service.
func Models() []any {
	return []any{&Order{}, &OrderItem{}, &Shipping{}, &InventoryDecrement{}, &InventoryDecrementLine{}, &StatusLog{}}
}
