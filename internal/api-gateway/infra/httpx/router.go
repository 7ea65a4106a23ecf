package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/storefront/internal/api-gateway/infra/httpx/middlewares"
)

func NewRouter(handler *Handler, serviceName string) http.Handler {
	r := chi.NewRouter()
	r.Use(otelhttp.NewMiddleware(serviceName))
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Health)

	r.Post("/orders", handler.CreateOrder)
	r.Get("/orders/{id}", handler.GetOrderByID)
	r.Get("/variants/{id}/availability", handler.CheckAvailability)
	r.Post("/payments/{gateway}/confirm", handler.ConfirmPayment)

	r.Route("/admin", func(r chi.Router) {
		r.Patch("/orders/{id}", handler.EditOrder)
		r.Delete("/orders/{id}", handler.DeleteOrder)
		r.Post("/variants/{id}/restock", handler.RestockVariant)
		r.Get("/variants/low-stock", handler.LowStock)
	})
	return r
}
