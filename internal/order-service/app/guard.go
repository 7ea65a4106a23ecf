package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	inventoryapp "github.com/jcmexdev/storefront/internal/inventory-service/app"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

// Guard makes the stock decrement of an order happen at most once, however
// many actors ask for it. The flag on the order, the unique decrement record
// and the stock writes all commit in the caller's transaction.
type Guard struct {
	mutator *inventoryapp.Mutator
	now     func() time.Time
}

func NewGuard(mutator *inventoryapp.Mutator) *Guard {
	return &Guard{mutator: mutator, now: time.Now}
}

// Decrement takes stock for every item of order. It reports false without
// touching stock when the order was already decremented. order must have
// been read inside tx.
func (g *Guard) Decrement(ctx context.Context, tx *gorm.DB, order *domain.Order) (bool, error) {
	if order.InventoryDecremented {
		return false, nil
	}

	record := domain.InventoryDecrement{OrderID: order.ID}
	if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
		if database.IsDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("record decrement for order %s: %w", order.ID, err)
	}

	lines := make([]inventoryapp.Line, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, inventoryapp.Line{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	reservations, err := g.mutator.DecrementAll(ctx, tx, lines)
	if err != nil {
		return false, err
	}

	recorded := make([]domain.InventoryDecrementLine, 0, len(reservations))
	for _, r := range reservations {
		recorded = append(recorded, domain.InventoryDecrementLine{
			DecrementID: record.ID,
			VariantID:   r.VariantID,
			Requested:   r.Requested,
			Taken:       r.Taken,
		})
	}
	if len(recorded) > 0 {
		if err := tx.WithContext(ctx).Create(&recorded).Error; err != nil {
			return false, fmt.Errorf("record decrement lines for order %s: %w", order.ID, err)
		}
	}

	result := tx.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND inventory_decremented = ?", order.ID, false).
		Updates(map[string]any{"inventory_decremented": true, "updated_at": g.now()})
	if result.Error != nil {
		return false, fmt.Errorf("flag order %s decremented: %w", order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, database.ErrStaleWrite
	}

	order.InventoryDecremented = true
	return true, nil
}

// Release returns what the order's decrement took and clears the flag. It
// reports false when there is nothing to return.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, order *domain.Order) (bool, error) {
	if !order.InventoryDecremented {
		return false, nil
	}

	var record domain.InventoryDecrement
	err := tx.WithContext(ctx).Preload("Lines").
		Where("order_id = ? AND released_at IS NULL", order.ID).
		First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, fmt.Errorf("order %s is flagged decremented but has no open decrement record", order.ID)
	case err != nil:
		return false, fmt.Errorf("load decrement for order %s: %w", order.ID, err)
	}

	for _, line := range record.Lines {
		err := g.mutator.Increment(ctx, tx, line.VariantID, line.Taken)
		if errors.Is(err, inventorydomain.ErrVariantNotFound) {
			slog.WarnContext(ctx, "variant gone, stock not returned", "order_id", order.ID, "variant_id", line.VariantID, "quantity", line.Taken)
			continue
		}
		if err != nil {
			return false, err
		}
	}

	now := g.now()
	result := tx.WithContext(ctx).Model(&domain.InventoryDecrement{}).
		Where("id = ? AND released_at IS NULL", record.ID).
		Update("released_at", now)
	if result.Error != nil {
		return false, fmt.Errorf("mark decrement released for order %s: %w", order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, database.ErrStaleWrite
	}

	result = tx.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND inventory_decremented = ?", order.ID, true).
		Updates(map[string]any{"inventory_decremented": false, "updated_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("clear decrement flag for order %s: %w", order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, database.ErrStaleWrite
	}

	order.InventoryDecremented = false
	return true, nil
}
