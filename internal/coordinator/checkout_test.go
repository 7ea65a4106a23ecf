package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
	"github.com/jcmexdev/storefront/internal/pkg/database/dbtest"
)

type stubHandoff struct {
	url string
	err error
}

func (s stubHandoff) Handoff(context.Context, orderdomain.Order) (string, error) {
	return s.url, s.err
}

func newSaga(t *testing.T, handoff PaymentHandoff) (*CheckoutSaga, *orderapp.Service, *sagalog.GormRepository, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, database.Migrate(db, sagalog.Models()...))
	orders := orderapp.NewService(database.NewTransactor(db, 3), nil)
	repo := sagalog.NewGormRepository(db)
	return NewCheckoutSaga(orders, handoff, repo), orders, repo, db
}

func request(variantID string, method orderdomain.PaymentMethod) orderapp.CheckoutRequest {
	return orderapp.CheckoutRequest{
		Lines:         []orderapp.CheckoutLine{{VariantID: variantID, Quantity: 2}},
		PaymentMethod: method,
	}
}

func lastEntry(t *testing.T, db *gorm.DB) sagalog.SagaLog {
	t.Helper()
	var entry sagalog.SagaLog
	require.NoError(t, db.Order("id DESC").First(&entry).Error)
	return entry
}

func TestCheckoutSagaRedirectsGatewayOrders(t *testing.T) {
	saga, _, repo, db := newSaga(t, stubHandoff{url: "https://pay.test/checkout?order_ref=x"})
	p := dbtest.CreateProduct(t, db, 100, 5)

	out, err := saga.Run(context.Background(), request(p.Variants[0].ID, orderdomain.PaymentCard))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/checkout?order_ref=x", out.RedirectURL)
	assert.Equal(t, orderdomain.StatusPending, out.Order.Status)

	last := lastEntry(t, db)
	assert.Equal(t, sagalog.StatusCompleted, last.Status)
	assert.Equal(t, out.Order.ID, last.OrderID)

	history, err := repo.History(context.Background(), last.SagaID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Contains(t, history[0].Payload, p.Variants[0].ID)
}

func TestCheckoutSagaSkipsHandoffForCOD(t *testing.T) {
	saga, _, _, db := newSaga(t, stubHandoff{err: errors.New("must not be called")})
	p := dbtest.CreateProduct(t, db, 100, 5)

	out, err := saga.Run(context.Background(), request(p.Variants[0].ID, orderdomain.PaymentCOD))
	require.NoError(t, err)
	assert.Empty(t, out.RedirectURL)
	assert.True(t, out.StockDecremented)
	assert.Equal(t, 3, dbtest.Stock(t, db, p.Variants[0].ID))
}

func TestCheckoutSagaCancelsOnFailedHandoff(t *testing.T) {
	saga, orders, repo, db := newSaga(t, stubHandoff{err: errors.New("gateway down")})
	p := dbtest.CreateProduct(t, db, 100, 5)

	_, err := saga.Run(context.Background(), request(p.Variants[0].ID, orderdomain.PaymentWallet))
	require.Error(t, err)

	last := lastEntry(t, db)
	assert.Equal(t, sagalog.StatusFailed, last.Status)
	assert.Contains(t, last.ErrorMessages, "gateway down")

	latest, err := repo.Latest(context.Background(), last.SagaID)
	require.NoError(t, err)
	assert.Equal(t, last.ID, latest.ID)

	order, err := orders.Get(context.Background(), last.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, order.Status)
	assert.Equal(t, 5, dbtest.Stock(t, db, p.Variants[0].ID))
}

func TestCheckoutSagaStockShortage(t *testing.T) {
	saga, _, _, db := newSaga(t, stubHandoff{})
	p := dbtest.CreateProduct(t, db, 100, 1)

	_, err := saga.Run(context.Background(), request(p.Variants[0].ID, orderdomain.PaymentCOD))
	var shortage *orderapp.StockShortageError
	require.ErrorAs(t, err, &shortage)
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	_, err = sagalog.NewGormRepository(db).Latest(context.Background(), "unknown")
	assert.ErrorIs(t, err, sagalog.ErrSagaNotFound)
}

func TestCheckoutSagaPayloadOmitsCustomerContact(t *testing.T) {
	saga, _, _, db := newSaga(t, stubHandoff{})
	p := dbtest.CreateProduct(t, db, 100, 5)

	req := request(p.Variants[0].ID, orderdomain.PaymentCOD)
	req.Customer = orderdomain.Contact{Name: "Ana Ruiz", Email: "ana@example.com", Phone: "+34 600 000 000", AddressLine: "Calle Mayor 1"}
	_, err := saga.Run(context.Background(), req)
	require.NoError(t, err)

	var started sagalog.SagaLog
	require.NoError(t, db.Where("status = ?", sagalog.StatusStarted).First(&started).Error)
	assert.JSONEq(t, fmt.Sprintf(`{"payment_method":"cod","lines":[{"variant_id":%q,"quantity":2}]}`, p.Variants[0].ID), started.Payload)
	assert.NotContains(t, started.Payload, "ana@example.com")
	assert.NotContains(t, started.Payload, "Calle Mayor")
}
