package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

// Line is one variant quantity to take from or return to the ledger.
type Line struct {
	VariantID string
	Quantity  int
}

// Reservation records what a decrement actually took from stock. Taken is
// lower than Requested for backordered lines and zero for untracked products.
type Reservation struct {
	VariantID   string
	Requested   int
	Taken       int
	Backordered int
}

// Mutator is the only writer of Variant.Stock. Every method runs on the
// caller's transaction so stock changes commit together with the order
// state that justifies them.
type Mutator struct {
	now func() time.Time
}

func NewMutator() *Mutator {
	return &Mutator{now: time.Now}
}

// Decrement takes quantity units of a variant. The write is conditional on
// stock still covering the amount, so of two concurrent decrements that
// cannot both fit, the second fails instead of driving stock negative.
func (m *Mutator) Decrement(ctx context.Context, tx *gorm.DB, variantID string, quantity int) (Reservation, error) {
	if quantity <= 0 {
		return Reservation{}, domain.ErrInvalidQuantity
	}

	v, p, err := LoadVariant(ctx, tx, variantID)
	if err != nil {
		return Reservation{}, err
	}

	res := Reservation{VariantID: variantID, Requested: quantity}
	if !p.TrackStock {
		return res, nil
	}

	take := quantity
	if v.Stock < quantity {
		if !p.AllowBackorder {
			return res, &domain.InsufficientStockError{VariantID: variantID, Requested: quantity, Available: v.Stock}
		}
		take = v.Stock
	}
	res.Taken = take
	res.Backordered = quantity - take
	if take == 0 {
		return res, nil
	}

	result := tx.WithContext(ctx).Model(&domain.Variant{}).
		Where("id = ? AND stock >= ?", variantID, take).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", take),
			"updated_at": m.now(),
		})
	if result.Error != nil {
		return Reservation{}, fmt.Errorf("decrement variant %s: %w", variantID, result.Error)
	}
	if result.RowsAffected == 1 {
		return res, nil
	}

	if p.AllowBackorder {
		// The split between taken and backordered is stale; recompute it.
		return Reservation{}, database.ErrStaleWrite
	}
	current, _, err := LoadVariant(ctx, tx, variantID)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{}, &domain.InsufficientStockError{VariantID: variantID, Requested: quantity, Available: current.Stock}
}

// DecrementAll takes every line or fails on the first one that does not fit.
// The caller's transaction must be rolled back on error so no partial
// decrement survives.
func (m *Mutator) DecrementAll(ctx context.Context, tx *gorm.DB, lines []Line) ([]Reservation, error) {
	out := make([]Reservation, 0, len(lines))
	for _, line := range lines {
		res, err := m.Decrement(ctx, tx, line.VariantID, line.Quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Increment returns quantity units to a variant. Addition is always safe so
// the write is unconditional.
func (m *Mutator) Increment(ctx context.Context, tx *gorm.DB, variantID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	if quantity == 0 {
		return nil
	}

	result := tx.WithContext(ctx).Model(&domain.Variant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", quantity),
			"updated_at": m.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("increment variant %s: %w", variantID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrVariantNotFound, variantID)
	}

	slog.DebugContext(ctx, "stock returned", "variant_id", variantID, "quantity", quantity)
	return nil
}
