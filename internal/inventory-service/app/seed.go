package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
)

// SeedConfig controls the synthetic catalog created for local runs.
type SeedConfig struct {
	Products     int
	InitialStock int
}

var (
	seedSizes     = []string{"S", "M", "L"}
	seedColors    = []string{"black", "white"}
	seedMaterials = []string{"cotton", "linen", "wool", "denim"}
)

// SeedCatalog creates products with a size × color variant matrix when the
// catalog is empty. Existing catalogs are left untouched.
func SeedCatalog(ctx context.Context, db *gorm.DB, cfg SeedConfig) (int, error) {
	if cfg.Products <= 0 {
		cfg.Products = 5
	}
	if cfg.InitialStock < 0 {
		cfg.InitialStock = 0
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&domain.Product{}).Count(&existing).Error; err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	products := make([]domain.Product, 0, cfg.Products)
	for i := 0; i < cfg.Products; i++ {
		p := domain.Product{
			ID:             uuid.NewString(),
			Name:           fmt.Sprintf("%s shirt %02d", seedMaterials[i%len(seedMaterials)], i+1),
			Price:          decimal.NewFromInt(int64(150000 + i*25000)),
			TrackStock:     true,
			AllowBackorder: i%4 == 3,
		}
		for _, size := range seedSizes {
			for _, color := range seedColors {
				p.Variants = append(p.Variants, domain.Variant{
					ID:                uuid.NewString(),
					Size:              size,
					Color:             color,
					Material:          seedMaterials[i%len(seedMaterials)],
					Stock:             cfg.InitialStock,
					LowStockThreshold: 3,
				})
			}
		}
		products = append(products, p)
	}

	if err := db.WithContext(ctx).Create(&products).Error; err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	return len(products), nil
}
