package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry owning a matrix of variants. Only the fields
// the stock ledger reads are modelled here.
type Product struct {
	ID             string          `gorm:"primaryKey;size:36"`
	Name           string          `gorm:"size:255;not null"`
	Price          decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	TrackStock     bool            `gorm:"not null"`
	AllowBackorder bool            `gorm:"not null"`
	Variants       []Variant       `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Variant is one purchasable size/color/material combination of a product.
// Stock is written only by the inventory mutator.
type Variant struct {
	ID                string              `gorm:"primaryKey;size:36"`
	ProductID         string              `gorm:"size:36;not null;index"`
	Size              string              `gorm:"size:64"`
	Color             string              `gorm:"size:64"`
	Material          string              `gorm:"size:64"`
	Stock             int                 `gorm:"not null;check:stock >= 0"`
	LowStockThreshold int                 `gorm:"not null"`
	Price             decimal.NullDecimal `gorm:"type:decimal(14,2)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UnitPrice is the variant override when set, the product price otherwise.
func (v Variant) UnitPrice(p Product) decimal.Decimal {
	if v.Price.Valid {
		return v.Price.Decimal
	}
	return p.Price
}

func (v Variant) IsLowStock() bool {
	return v.Stock <= v.LowStockThreshold
}

// StockLevel is a variant joined with the product fields needed for reporting.
type StockLevel struct {
	VariantID         string
	ProductID         string
	ProductName       string
	Size              string
	Color             string
	Material          string
	Stock             int
	LowStockThreshold int
	TrackStock        bool
	AllowBackorder    bool
}

// Models lists the tables owned by the inventory ledger.
func Models() []any {
	return []any{&Product{}, &Variant{}}
}
