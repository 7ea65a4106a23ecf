package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
)

// LoadVariant reads a variant and its parent product through q.
func LoadVariant(ctx context.Context, q *gorm.DB, variantID string) (domain.Variant, domain.Product, error) {
	var v domain.Variant
	if err := q.WithContext(ctx).First(&v, "id = ?", variantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, domain.Product{}, fmt.Errorf("%w: %s", domain.ErrVariantNotFound, variantID)
		}
		return domain.Variant{}, domain.Product{}, fmt.Errorf("load variant %s: %w", variantID, err)
	}

	var p domain.Product
	if err := q.WithContext(ctx).First(&p, "id = ?", v.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, v.ProductID)
		}
		return domain.Variant{}, domain.Product{}, fmt.Errorf("load product %s: %w", v.ProductID, err)
	}
	return v, p, nil
}

// LoadProduct reads a product with its variants through q.
func LoadProduct(ctx context.Context, q *gorm.DB, productID string) (domain.Product, error) {
	var p domain.Product
	if err := q.WithContext(ctx).Preload("Variants").First(&p, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
		}
		return domain.Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return p, nil
}
