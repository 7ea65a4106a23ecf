package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact is the customer snapshot copied onto the order at checkout.
type Contact struct {
	Name        string `gorm:"size:128"`
	Email       string `gorm:"size:255"`
	Phone       string `gorm:"size:32"`
	AddressLine string `gorm:"size:255"`
	City        string `gorm:"size:128"`
	PostalCode  string `gorm:"size:32"`
	Country     string `gorm:"size:64"`
}

// Order is the header of a purchase. Status, IsPaid and InventoryDecremented
// are first-class columns so the idempotency checks are plain reads.
type Order struct {
	ID                   string          `gorm:"primaryKey;size:36"`
	Code                 string          `gorm:"size:32;not null;uniqueIndex"`
	Status               OrderStatus     `gorm:"size:16;not null;index"`
	IsPaid               bool            `gorm:"not null"`
	PaymentMethod        PaymentMethod   `gorm:"size:16;not null"`
	InventoryDecremented bool            `gorm:"not null"`
	RefundEligible       bool            `gorm:"not null"`
	Subtotal             decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Discount             decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	ShippingCost         decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Tax                  decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Total                decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	TrackingNumber       string          `gorm:"size:64"`
	ShippingMethod       string          `gorm:"size:64"`
	Notes                string          `gorm:"size:1024"`
	Customer             Contact         `gorm:"embedded;embeddedPrefix:customer_"`
	Items                []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipping             *Shipping       `gorm:"foreignKey:OrderID"`
	PaidAt               *time.Time
	CreatedAt            time.Time `gorm:"index"`
	UpdatedAt            time.Time
}

// OrderItem is the immutable snapshot of one purchased line. VariantID is a
// weak reference used only to return stock.
type OrderItem struct {
	ID           uint            `gorm:"primaryKey"`
	OrderID      string          `gorm:"size:36;not null;index"`
	ProductID    string          `gorm:"size:36;not null"`
	VariantID    string          `gorm:"size:36;index"`
	ProductName  string          `gorm:"size:255;not null"`
	Price        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	SizeName     string          `gorm:"size:64"`
	ColorName    string          `gorm:"size:64"`
	MaterialName string          `gorm:"size:64"`
	Quantity     int             `gorm:"not null"`
	CreatedAt    time.Time
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping exists only once the order reached a fulfillment-eligible status.
type Shipping struct {
	ID             uint            `gorm:"primaryKey"`
	OrderID        string          `gorm:"size:36;not null;uniqueIndex"`
	Carrier        string          `gorm:"size:64"`
	TrackingNumber string          `gorm:"size:64"`
	Cost           decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Address        Contact         `gorm:"embedded;embeddedPrefix:address_"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ComputeTotal returns subtotal - discount + shippingCost + tax.
func ComputeTotal(subtotal, discount, shippingCost, tax decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(shippingCost).Add(tax)
}

// Subtotal sums the line totals of items.
func Subtotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}
