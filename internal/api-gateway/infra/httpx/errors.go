package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	inventorydomain "github.com/jcmexdev/storefront/internal/inventory-service/domain"
	orderapp "github.com/jcmexdev/storefront/internal/order-service/app"
	orderdomain "github.com/jcmexdev/storefront/internal/order-service/domain"
	paymentdomain "github.com/jcmexdev/storefront/internal/payment-service/domain"
	"github.com/jcmexdev/storefront/internal/pkg/database"
)

var errorCodes = []struct {
	target error
	status int
	code   string
}{
	{inventorydomain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{orderdomain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{orderdomain.ErrNotDeletable, http.StatusConflict, "not_deletable"},
	{orderdomain.ErrPaymentNotConfirmed, http.StatusConflict, "payment_not_confirmed"},

	{orderdomain.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{inventorydomain.ErrVariantNotFound, http.StatusNotFound, "variant_not_found"},
	{inventorydomain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{paymentdomain.ErrUnknownGateway, http.StatusNotFound, "unknown_gateway"},
	{paymentdomain.ErrUnknownOrder, http.StatusNotFound, "unknown_order"},

	{paymentdomain.ErrBadSignature, http.StatusUnauthorized, "bad_signature"},
	{paymentdomain.ErrMalformedPayload, http.StatusBadRequest, "malformed_payload"},
	{paymentdomain.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
	{paymentdomain.ErrMethodMismatch, http.StatusUnprocessableEntity, "payment_method_mismatch"},

	{orderdomain.ErrEmptyOrder, http.StatusUnprocessableEntity, "empty_order"},
	{orderdomain.ErrInvalidLine, http.StatusUnprocessableEntity, "invalid_item"},
	{orderdomain.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{orderdomain.ErrUnknownPaymentMethod, http.StatusUnprocessableEntity, "unknown_payment_method"},
	{orderdomain.ErrUnknownStatus, http.StatusUnprocessableEntity, "unknown_status"},
	{orderdomain.ErrVariantRequired, http.StatusUnprocessableEntity, "variant_required"},
	{inventorydomain.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},

	{database.ErrTransientConflict, http.StatusServiceUnavailable, "conflict_retry_later"},
	{orderdomain.ErrCodeExhausted, http.StatusServiceUnavailable, "order_code_exhausted"},
}

// writeDomainError maps a service error onto a status code and error body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *orderapp.StockShortageError
	if errors.As(err, &shortage) {
		resp := ErrorResponse{Error: "insufficient_stock", Message: shortage.Error()}
		for _, it := range shortage.Items {
			resp.Items = append(resp.Items, ShortItem{VariantID: it.VariantID, Requested: it.Requested, Available: it.CurrentStock})
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	for _, ec := range errorCodes {
		if errors.Is(err, ec.target) {
			writeError(w, ec.status, ec.code, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
