// Package dbtest opens throwaway SQLite stores for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

// Open returns a migrated store backed by a file in t.TempDir().
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	models := append(inventorydomain.Models(), orderdomain.Models()...)
	require.NoError(t, database.Migrate(db, models...))
	return db
}

// ProductOption tweaks a product built by CreateProduct.
type ProductOption func(*inventorydomain.Product)

func WithBackorder() ProductOption {
	return func(p *inventorydomain.Product) { p.AllowBackorder = true }
}

func WithoutTracking() ProductOption {
	return func(p *inventorydomain.Product) { p.TrackStock = false }
}

// WithVariant adds another variant with the given stock.
func WithVariant(stock int) ProductOption {
	return func(p *inventorydomain.Product) {
		p.Variants = append(p.Variants, inventorydomain.Variant{
			ID:                uuid.NewString(),
			Size:              "L",
			Color:             "white",
			Stock:             stock,
			LowStockThreshold: 1,
		})
	}
}

// CreateProduct stores a tracked product priced at price with one variant
// holding stock units.
func CreateProduct(t testing.TB, db *gorm.DB, price int64, stock int, opts ...ProductOption) inventorydomain.Product {
	t.Helper()

	p := inventorydomain.Product{
		ID:         uuid.NewString(),
		Name:       "Linen shirt",
		Price:      decimal.NewFromInt(price),
		TrackStock: true,
		Variants: []inventorydomain.Variant{{
			ID:                uuid.NewString(),
			Size:              "M",
			Color:             "black",
			Material:          "linen",
			Stock:             stock,
			LowStockThreshold: 1,
		}},
	}
	for _, opt := range opts {
		opt(&p)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Stock reads the current stock of a variant.
func Stock(t testing.TB, db *gorm.DB, variantID string) int {
	t.Helper()
	var v inventorydomain.Variant
	require.NoError(t, db.First(&v, "id = ?", variantID).Error)
	return v.Stock
}
