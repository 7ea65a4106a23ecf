package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jcmexdev/storefront/internal/coordinator"
	"github.com/jcmexdev/storefront/internal/coordinator/sagalog"
	inventoryapp "github.com/jcmexdev/storefront/internal/inventory-service/app"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront/internal/payment-service/app"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
	"github.com/jcmexdev/storefront/internal/pkg/constants"
	"github.com/jcmexdev/storefront/internal/pkg/database"
	"github.com/jcmexdev/storefront/internal/pkg/database/dbtest"
)

type api struct {
	db     *gorm.DB
	router http.Handler
	card   *paymentapp.CardPay
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := dbtest.Open(t)
	require.NoError(t, database.Migrate(db, sagalog.Models()...))

	tx := database.NewTransactor(db, 3)
	orders := orderapp.NewService(tx, nil)
	card := paymentapp.NewCardPay("card-secret", "https://pay.cardpay.test/checkout")
	reconciler := paymentapp.NewReconciler(
		paymentapp.NewRegistry(card, paymentapp.NewWalletPay("wallet-secret", "https://wallet.test/pay")),
		orders,
		decimal.RequireFromString("0.01"),
	)

	redis := miniredis.RunT(t)
	handler := NewHandler(Deps{
		Checkout:     coordinator.NewCheckoutSaga(orders, reconciler, sagalog.NewGormRepository(db)),
		Orders:       orders,
		Availability: inventoryapp.NewChecker(db),
		Ledger:       inventoryapp.NewLedger(tx, inventoryapp.NewMutator()),
		Payments:     reconciler,
		Replay:       cache.NewRedisCache(redis.Addr(), "store-api-test"),
		ReplayTTL:    time.Minute,
	})
	return &api{db: db, router: NewRouter(handler, "store-api-test"), card: card}
}

func (a *api) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func orderBody(variantID, method string, quantity int) CreateOrderRequest {
	return CreateOrderRequest{
		Items:         []CreateOrderItemDTO{{VariantID: variantID, Quantity: quantity}},
		PaymentMethod: method,
		Customer:      ContactDTO{Name: "Ana Ruiz", Email: "ana@example.com"},
	}
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderXRequestId))
}

func TestCreateOrderCashOnDelivery(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)

	rec := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 2), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CheckoutResponse](t, rec)
	assert.Equal(t, "PENDING", resp.Order.Status)
	assert.Empty(t, resp.RedirectURL)
	require.Len(t, resp.Order.Items, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(resp.Order.Total))
	assert.Equal(t, 3, dbtest.Stock(t, a.db, p.Variants[0].ID))
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	headers := map[string]string{constants.HeaderXIdempotencyKey: "checkout-1"}

	first := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 1), headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(replayHeader))

	second := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 1), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayHeader))

	assert.Equal(t, decode[CheckoutResponse](t, first).Order.ID, decode[CheckoutResponse](t, second).Order.ID)
	assert.Equal(t, 4, dbtest.Stock(t, a.db, p.Variants[0].ID))

	var n int64
	require.NoError(t, a.db.Model(&orderdomain.Order{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCreateOrderConcurrentSameKey(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 10)
	headers := map[string]string{constants.HeaderXIdempotencyKey: "double-click"}

	const workers = 4
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 1), headers)
			if rec.Code == http.StatusCreated {
				var resp CheckoutResponse
				if json.Unmarshal(rec.Body.Bytes(), &resp) == nil {
					ids <- resp.Order.ID
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 9, dbtest.Stock(t, a.db, p.Variants[0].ID))
}

func TestCreateOrderGatewayRedirect(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)

	rec := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "card", 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CheckoutResponse](t, rec)
	assert.Contains(t, resp.RedirectURL, "https://pay.cardpay.test/checkout?")
	assert.Contains(t, resp.RedirectURL, resp.Order.ID)
	assert.Equal(t, 5, dbtest.Stock(t, a.db, p.Variants[0].ID))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 1)

	rec := a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 3), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", resp.Error)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, ShortItem{VariantID: p.Variants[0].ID, Requested: 3, Available: 1}, resp.Items[0])
	assert.Equal(t, 1, dbtest.Stock(t, a.db, p.Variants[0].ID))
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", []byte("{"), http.StatusBadRequest, "invalid_json"},
		{"no items", CreateOrderRequest{PaymentMethod: "cod"}, http.StatusUnprocessableEntity, "empty_order"},
		{"unknown method", orderBody(p.Variants[0].ID, "barter", 1), http.StatusUnprocessableEntity, "unknown_payment_method"},
		{"zero quantity", orderBody(p.Variants[0].ID, "cod", 0), http.StatusUnprocessableEntity, "invalid_item"},
		{"unknown variant", orderBody("missing", "cod", 1), http.StatusNotFound, "variant_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/orders", tt.body, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestGetOrder(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	created := decode[CheckoutResponse](t, a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 1), nil))

	rec := a.do(t, http.MethodGet, "/orders/"+created.Order.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Order.Code, decode[OrderResponse](t, rec).Code)

	rec = a.do(t, http.MethodGet, "/orders/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAvailability(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	path := "/variants/" + p.Variants[0].ID + "/availability"

	rec := a.do(t, http.MethodGet, path+"?quantity=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, 5, resp.CurrentStock)

	rec = a.do(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, "available", decode[AvailabilityResponse](t, rec).Status)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, path+"?quantity=many", nil, nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(t, http.MethodGet, path+"?quantity=0", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/variants/nope/availability", nil, nil).Code)
}

func TestConfirmPaymentCardPay(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	created := decode[CheckoutResponse](t, a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "card", 2), nil))

	body, err := json.Marshal(paymentapp.CardPayPayload{
		EventID:     "evt_1",
		OrderRef:    created.Order.ID,
		Status:      "succeeded",
		AmountMinor: 20000,
	})
	require.NoError(t, err)
	signed := map[string]string{paymentapp.CardPaySignatureHeader: a.card.Sign(body)}

	rec := a.do(t, http.MethodPost, "/payments/cardpay/confirm", body, signed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, PaymentConfirmationResponse{OrderID: created.Order.ID, Status: "PROCESSING", Outcome: "applied"}, decode[PaymentConfirmationResponse](t, rec))
	assert.Equal(t, 3, dbtest.Stock(t, a.db, p.Variants[0].ID))

	rec = a.do(t, http.MethodPost, "/payments/cardpay/confirm", body, signed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_processed", decode[PaymentConfirmationResponse](t, rec).Outcome)
	assert.Equal(t, 3, dbtest.Stock(t, a.db, p.Variants[0].ID))
}

func TestConfirmPaymentRejections(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	created := decode[CheckoutResponse](t, a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "card", 1), nil))

	payload := func(amount int64) []byte {
		b, err := json.Marshal(paymentapp.CardPayPayload{EventID: "evt", OrderRef: created.Order.ID, Status: "succeeded", AmountMinor: amount})
		require.NoError(t, err)
		return b
	}
	sign := func(b []byte) map[string]string {
		return map[string]string{paymentapp.CardPaySignatureHeader: a.card.Sign(b)}
	}

	tests := []struct {
		name    string
		path    string
		body    []byte
		headers map[string]string
		status  int
		code    string
	}{
		{"bad signature", "/payments/cardpay/confirm", payload(10000), map[string]string{paymentapp.CardPaySignatureHeader: "00"}, http.StatusUnauthorized, "bad_signature"},
		{"amount mismatch", "/payments/cardpay/confirm", payload(9900), sign(payload(9900)), http.StatusUnprocessableEntity, "amount_mismatch"},
		{"malformed payload", "/payments/cardpay/confirm", []byte("not json"), sign([]byte("not json")), http.StatusBadRequest, "malformed_payload"},
		{"unknown gateway", "/payments/stripe/confirm", payload(10000), nil, http.StatusNotFound, "unknown_gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, tt.path, tt.body, tt.headers)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := a.do(t, http.MethodGet, "/orders/"+created.Order.ID, nil, nil)
	assert.Equal(t, "PENDING", decode[OrderResponse](t, rec).Status)
}

func TestAdminEditAndDeleteOrder(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	created := decode[CheckoutResponse](t, a.do(t, http.MethodPost, "/orders", orderBody(p.Variants[0].ID, "cod", 2), nil))
	path := "/admin/orders/" + created.Order.ID

	rec := a.do(t, http.MethodDelete, path, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPatch, path, map[string]any{"status": "SHIPPED"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, http.MethodPatch, path, map[string]any{"status": "LOST"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodPatch, path, map[string]any{"status": "CANCELLED", "notes": "customer called"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[TransitionResponse](t, rec)
	assert.Equal(t, "PENDING", resp.From)
	assert.Equal(t, "CANCELLED", resp.Order.Status)
	assert.Equal(t, "applied", resp.Outcome)
	assert.Equal(t, 5, dbtest.Stock(t, a.db, p.Variants[0].ID))

	rec = a.do(t, http.MethodPatch, path, map[string]any{"status": "CANCELLED"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_processed", decode[TransitionResponse](t, rec).Outcome)
	assert.Equal(t, 5, dbtest.Stock(t, a.db, p.Variants[0].ID))

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, path, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/orders/"+created.Order.ID, nil, nil).Code)
}

func TestAdminRestockAndLowStock(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 1)
	variantID := p.Variants[0].ID

	rec := a.do(t, http.MethodGet, "/admin/variants/low-stock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	low := decode[[]StockLevelResponse](t, rec)
	require.Len(t, low, 1)
	assert.Equal(t, variantID, low[0].VariantID)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/admin/variants/%s/restock", variantID), RestockRequest{Quantity: 4}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, decode[VariantResponse](t, rec).Stock)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/admin/variants/%s/restock", variantID), RestockRequest{Quantity: -1}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodGet, "/admin/variants/low-stock", nil, nil)
	assert.Empty(t, decode[[]StockLevelResponse](t, rec))
}

func TestWriteDomainErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	writeDomainError(rec, req, fmt.Errorf("dial tcp: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.Empty(t, resp.Message)
}

// gatedCheckout blocks every Run until release is closed and records
// whether the context it ran on had been cancelled by then.
type gatedCheckout struct {
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
	mu        sync.Mutex
	cancelled []bool
}

func (g *gatedCheckout) Run(ctx context.Context, req orderapp.CheckoutRequest) (coordinator.CheckoutOutcome, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	g.cancelled = append(g.cancelled, ctx.Err() != nil)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return coordinator.CheckoutOutcome{}, err
	}
	return coordinator.CheckoutOutcome{CheckoutResult: orderapp.CheckoutResult{
		Order: orderdomain.Order{ID: "order-1", Code: "ORD-20261019-00000001", Status: orderdomain.StatusPending, PaymentMethod: req.PaymentMethod},
	}}, nil
}

func TestCreateOrderSharedCheckoutSurvivesFirstCallerCancel(t *testing.T) {
	gate := &gatedCheckout{started: make(chan struct{}), release: make(chan struct{})}
	router := NewRouter(NewHandler(Deps{Checkout: gate}), "store-api-test")

	post := func(ctx context.Context) *httptest.ResponseRecorder {
		body, err := json.Marshal(orderBody("v-1", "cod", 1))
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body)).WithContext(ctx)
		req.Header.Set(constants.HeaderXIdempotencyKey, "same-cart")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- post(firstCtx) }()
	<-gate.started

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() { second <- post(context.Background()) }()

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	recB := <-second
	require.Equal(t, http.StatusCreated, recB.Code, recB.Body.String())
	assert.Equal(t, "order-1", decode[CheckoutResponse](t, recB).Order.ID)

	recA := <-first
	assert.Equal(t, http.StatusCreated, recA.Code, recA.Body.String())

	gate.mu.Lock()
	defer gate.mu.Unlock()
	assert.NotContains(t, gate.cancelled, true)
}

func TestCreateOrderNormalizesPaymentMethod(t *testing.T) {
	a := newAPI(t)
	p := dbtest.CreateProduct(t, a.db, 100, 5)
	variantID := p.Variants[0].ID

	rec := a.do(t, http.MethodPost, "/orders", orderBody(variantID, "COD", 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cod := decode[CheckoutResponse](t, rec)
	assert.Equal(t, "cod", cod.Order.PaymentMethod)
	assert.Equal(t, 4, dbtest.Stock(t, a.db, variantID))

	rec = a.do(t, http.MethodPost, "/orders", orderBody(variantID, "Card", 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	card := decode[CheckoutResponse](t, rec)
	assert.Equal(t, "card", card.Order.PaymentMethod)
	assert.NotEmpty(t, card.RedirectURL)

	body, err := json.Marshal(paymentapp.CardPayPayload{EventID: "evt_9", OrderRef: card.Order.ID, Status: "succeeded", AmountMinor: 10000})
	require.NoError(t, err)
	rec = a.do(t, http.MethodPost, "/payments/cardpay/confirm", body, map[string]string{paymentapp.CardPaySignatureHeader: a.card.Sign(body)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PROCESSING", decode[PaymentConfirmationResponse](t, rec).Status)
	assert.Equal(t, 3, dbtest.Stock(t, a.db, variantID))
}
