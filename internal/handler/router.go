package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/laundromat-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса прачечной.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/customers", h.CreateCustomer)
		r.Get("/customers/{customerID}/credit", h.GetCustomerCredit)
		r.Get("/customers/{customerID}/orders", h.GetCustomerOrders)

		r.Post("/affiliates", h.CreateAffiliate)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{number}", h.GetOrder)
		r.Get("/orders/{number}/bags", h.GetOrderBags)
		r.Post("/orders/{number}/bags", h.RecordBagWeight)

		r.Get("/rates", h.GetRates)
		r.Put("/rates", h.UpdateRates)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
