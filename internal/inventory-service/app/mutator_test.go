package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/inventory-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
	"github.com/jcmexdev/storefront/internal/pkg/database/dbtest"
)

func TestDecrementTakesStock(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 5)
	variantID := p.Variants[0].ID
	m := NewMutator()

	var res Reservation
	err := database.NewTransactor(db, 3).Run(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = m.Decrement(context.Background(), tx, variantID, 3)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, Reservation{VariantID: variantID, Requested: 3, Taken: 3}, res)
	assert.Equal(t, 2, dbtest.Stock(t, db, variantID))
}

func TestDecrementInsufficientStock(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 2)
	variantID := p.Variants[0].ID

	err := database.NewTransactor(db, 3).Run(context.Background(), func(tx *gorm.DB) error {
		_, err := NewMutator().Decrement(context.Background(), tx, variantID, 3)
		return err
	})

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, dbtest.Stock(t, db, variantID))
}

func TestDecrementBackorderTakesWhatIsThere(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 2, dbtest.WithBackorder())
	variantID := p.Variants[0].ID

	var res Reservation
	err := database.NewTransactor(db, 3).Run(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = NewMutator().Decrement(context.Background(), tx, variantID, 5)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Taken)
	assert.Equal(t, 3, res.Backordered)
	assert.Equal(t, 0, dbtest.Stock(t, db, variantID))
}

func TestDecrementUntrackedLeavesStock(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 0, dbtest.WithoutTracking())
	variantID := p.Variants[0].ID

	var res Reservation
	err := database.NewTransactor(db, 3).Run(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = NewMutator().Decrement(context.Background(), tx, variantID, 10)
		return err
	})
	require.NoError(t, err)

	assert.Zero(t, res.Taken)
	assert.Equal(t, 0, dbtest.Stock(t, db, variantID))
}

func TestDecrementAllRollsBackEveryLine(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 5, dbtest.WithVariant(1))
	first, second := p.Variants[0].ID, p.Variants[1].ID

	err := database.NewTransactor(db, 3).Run(context.Background(), func(tx *gorm.DB) error {
		_, err := NewMutator().DecrementAll(context.Background(), tx, []Line{
			{VariantID: first, Quantity: 4},
			{VariantID: second, Quantity: 2},
		})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, 5, dbtest.Stock(t, db, first), "first line must not stay decremented")
	assert.Equal(t, 1, dbtest.Stock(t, db, second))
}

func TestDecrementRejectsBadInput(t *testing.T) {
	db := dbtest.Open(t)
	m := NewMutator()

	_, err := m.Decrement(context.Background(), db, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)

	_, err = m.Decrement(context.Background(), db, "missing", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 5)
	variantID := p.Variants[0].ID
	tx := database.NewTransactor(db, 3)
	m := NewMutator()

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tx.Run(context.Background(), func(tx *gorm.DB) error {
				_, err := m.Decrement(context.Background(), tx, variantID, 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, attempts-5, rejected)
	assert.Equal(t, 0, dbtest.Stock(t, db, variantID))
}

func TestIncrement(t *testing.T) {
	db := dbtest.Open(t)
	p := dbtest.CreateProduct(t, db, 100, 1)
	variantID := p.Variants[0].ID
	m := NewMutator()

	require.NoError(t, m.Increment(context.Background(), db, variantID, 4))
	assert.Equal(t, 5, dbtest.Stock(t, db, variantID))

	assert.NoError(t, m.Increment(context.Background(), db, variantID, 0))
	assert.ErrorIs(t, m.Increment(context.Background(), db, "missing", 1), domain.ErrVariantNotFound)
	assert.ErrorIs(t, m.Increment(context.Background(), db, variantID, -1), domain.ErrInvalidQuantity)
}
