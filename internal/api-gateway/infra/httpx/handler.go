package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jcmexdev/storefront/internal/api-gateway/core/ports"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront/internal/payment-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/cache"
	"github.com/jcmexdev/storefront/internal/pkg/constants"
)

const (
	maxCallbackBytes = 1 << 20
	replayHeader     = "Idempotent-Replayed"
)

// Handler serves the store HTTP API.
type Handler struct {
	checkout     ports.CheckoutService
	orders       ports.OrderService
	availability ports.AvailabilityChecker
	ledger       ports.StockLedger
	payments     ports.PaymentService
	replay       cache.Cache // nil-safe: checkouts are not replayed if nil
	replayTTL    time.Duration
	inflight     singleflight.Group
}

// Deps groups the services a Handler needs.
type Deps struct {
	Checkout     ports.CheckoutService
	Orders       ports.OrderService
	Availability ports.AvailabilityChecker
	Ledger       ports.StockLedger
	Payments     ports.PaymentService
	Replay       cache.Cache
	ReplayTTL    time.Duration
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		checkout:     d.Checkout,
		orders:       d.Orders,
		availability: d.Availability,
		ledger:       d.Ledger,
		payments:     d.Payments,
		replay:       d.Replay,
		replayTTL:    d.ReplayTTL,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateOrder runs checkout. A repeated request carrying the same
// X-Idempotency-Key gets the first response back instead of a second order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idempKey := constants.IdempotencyKey(ctx)

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	slog.InfoContext(ctx, "creating order",
		"request_id", constants.RequestID(ctx),
		"idempotency_key", idempKey,
		"payment_method", req.PaymentMethod,
		"lines", len(req.Items),
	)

	if idempKey == "" {
		resp, err := h.placeOrder(ctx, req)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	// Concurrent requests with the same key share one checkout; the cache is
	// checked again inside the group so a request that lost the race to a
	// finished checkout still replays it. The shared work ignores the
	// cancellation of whichever request started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := h.inflight.Do(idempKey, func() (any, error) {
		if cached := h.lookupReplay(shared, idempKey); cached != "" {
			return replayed(cached), nil
		}
		resp, err := h.placeOrder(shared, req)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		h.storeReplay(shared, idempKey, body)
		return body, nil
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var body []byte
	switch out := v.(type) {
	case replayed:
		w.Header().Set(replayHeader, "true")
		body = []byte(out)
	case []byte:
		body = out
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// replayed is a checkout response served from the replay cache.
type replayed string

func (h *Handler) placeOrder(ctx context.Context, req CreateOrderRequest) (CheckoutResponse, error) {
	lines := make([]orderapp.CheckoutLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, orderapp.CheckoutLine{VariantID: it.VariantID, ProductID: it.ProductID, Quantity: it.Quantity})
	}

	out, err := h.checkout.Run(ctx, orderapp.CheckoutRequest{
		Lines:          lines,
		PaymentMethod:  orderdomain.PaymentMethod(req.PaymentMethod),
		Customer:       req.Customer.toDomain(),
		ShippingMethod: req.ShippingMethod,
		Discount:       req.Discount,
		ShippingCost:   req.ShippingCost,
		Tax:            req.Tax,
		Notes:          req.Notes,
	})
	if err != nil {
		return CheckoutResponse{}, err
	}

	resp := CheckoutResponse{Order: mapOrderToResponse(out.Order), RedirectURL: out.RedirectURL}
	for _, b := range out.Backorders {
		resp.Backorders = append(resp.Backorders, mapAvailability(b))
	}
	return resp, nil
}

// GetOrderByID returns an order with its items.
func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be an integer")
			return
		}
		quantity = q
	}

	a, err := h.availability.Check(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapAvailability(a))
}

// ConfirmPayment receives a gateway callback.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	kind, err := paymentdomain.ParseKind(chi.URLParam(r, "gateway"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	res, err := h.payments.Confirm(r.Context(), paymentapp.Envelope{
		Kind:      kind,
		Body:      body,
		Signature: r.Header.Get(paymentapp.CardPaySignatureHeader),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentConfirmationResponse{
		OrderID: res.Order.ID,
		Status:  string(res.Order.Status),
		Outcome: res.Outcome.String(),
	})
}

// EditOrder applies an administrative change to an order.
func (h *Handler) EditOrder(w http.ResponseWriter, r *http.Request) {
	var req EditOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	edit := orderapp.EditRequest{
		OrderID:        chi.URLParam(r, "id"),
		ConfirmPayment: req.ConfirmPayment,
		TrackingNumber: req.TrackingNumber,
		ShippingMethod: req.ShippingMethod,
		Carrier:        req.Carrier,
		Notes:          req.Notes,
	}
	if req.Status != nil {
		status, err := orderdomain.ParseStatus(*req.Status)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		edit.Status = &status
	}
	if req.Customer != nil {
		c := req.Customer.toDomain()
		edit.Customer = &c
	}

	res, err := h.orders.Edit(r.Context(), edit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{
		Order:   mapOrderToResponse(res.Order),
		From:    string(res.From),
		Outcome: res.Outcome.String(),
	})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestockVariant(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	v, err := h.ledger.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapVariant(v))
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.StockLevels(r.Context(), true)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]StockLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, mapStockLevel(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) lookupReplay(ctx context.Context, key string) string {
	if h.replay == nil {
		return ""
	}
	cached, err := h.replay.Get(ctx, h.replay.GenerateKey("checkout", key))
	if err != nil {
		slog.WarnContext(ctx, "checkout replay lookup failed", "idempotency_key", key, "error", err)
		return ""
	}
	return cached
}

func (h *Handler) storeReplay(ctx context.Context, key string, body []byte) {
	if h.replay == nil {
		return
	}
	if err := h.replay.Set(ctx, h.replay.GenerateKey("checkout", key), body, h.replayTTL); err != nil {
		slog.WarnContext(ctx, "checkout replay store failed", "idempotency_key", key, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
