package sagalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrSagaNotFound = errors.New("saga not found")

// Repository persists saga log entries. Save appends; it never upserts.
type Repository interface {
	Save(ctx context.Context, entry *SagaLog) error
}

// GormRepository stores the saga log next to the orders it describes.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Save(ctx context.Context, entry *SagaLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("save saga log for %q: %w", entry.SagaID, err)
	}
	return nil
}

// Latest returns the most recent entry of a saga.
func (r *GormRepository) Latest(ctx context.Context, sagaID string) (*SagaLog, error) {
	var entry SagaLog
	err := r.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("updated_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSagaNotFound, sagaID)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest for %q: %w", sagaID, err)
	}
	return &entry, nil
}

// History returns every entry of a saga, oldest first.
func (r *GormRepository) History(ctx context.Context, sagaID string) ([]SagaLog, error) {
	var entries []SagaLog
	if err := r.db.WithContext(ctx).Where("saga_id = ?", sagaID).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("get history for %q: %w", sagaID, err)
	}
	return entries, nil
}

// SagaIDForOrder returns the most recent saga that touched an order.
func (r *GormRepository) SagaIDForOrder(ctx context.Context, orderID string) (string, error) {
	var entry SagaLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: order %q", ErrSagaNotFound, orderID)
	}
	if err != nil {
		return "", fmt.Errorf("find saga for order %q: %w", orderID, err)
	}
	return entry.SagaID, nil
}
