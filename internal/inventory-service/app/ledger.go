package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

// Ledger exposes stock reads and operator restocks on top of the mutator.
type Ledger struct {
	tx      *database.Transactor
	mutator *Mutator
}

func NewLedger(tx *database.Transactor, mutator *Mutator) *Ledger {
	return &Ledger{tx: tx, mutator: mutator}
}

// Restock adds quantity units to a variant and returns its new state.
func (l *Ledger) Restock(ctx context.Context, variantID string, quantity int) (domain.Variant, error) {
	ctx, span := tracer.Start(ctx, "inventory.Restock")
	defer span.End()
	span.SetAttributes(attribute.String("variant_id", variantID), attribute.Int("quantity", quantity))

	if quantity <= 0 {
		return domain.Variant{}, domain.ErrInvalidQuantity
	}

	var out domain.Variant
	err := l.tx.Run(ctx, func(tx *gorm.DB) error {
		if err := l.mutator.Increment(ctx, tx, variantID, quantity); err != nil {
			return err
		}
		v, _, err := LoadVariant(ctx, tx, variantID)
		out = v
		return err
	})
	if err != nil {
		return domain.Variant{}, err
	}

	slog.InfoContext(ctx, "variant restocked", "variant_id", variantID, "quantity", quantity, "stock", out.Stock)
	return out, nil
}

// Variant returns the current state of a variant.
func (l *Ledger) Variant(ctx context.Context, variantID string) (domain.Variant, error) {
	v, _, err := LoadVariant(ctx, l.tx.DB(), variantID)
	return v, err
}

// StockLevels lists every variant with its product, ordered by product name.
// With lowOnly set it keeps tracked variants at or below their threshold.
func (l *Ledger) StockLevels(ctx context.Context, lowOnly bool) ([]domain.StockLevel, error) {
	q := l.tx.DB().WithContext(ctx).
		Table("variants").
		Select(`variants.id AS variant_id, variants.product_id, products.name AS product_name,
			variants.size, variants.color, variants.material, variants.stock,
			variants.low_stock_threshold, products.track_stock, products.allow_backorder`).
		Joins("JOIN products ON products.id = variants.product_id").
		Order("products.name, variants.size, variants.color, variants.material")
	if lowOnly {
		q = q.Where("products.track_stock = ? AND variants.stock <= variants.low_stock_threshold", true)
	}

	var levels []domain.StockLevel
	if err := q.Scan(&levels).Error; err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return levels, nil
}
