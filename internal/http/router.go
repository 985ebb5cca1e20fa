package http

import (
	"net/http"

	"labcafe/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler, authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger(handler.log))
	r.Use(Recoverer(handler.log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(authn, handler.log))

		r.Get("/me", handler.Me)

		r.Get("/items", handler.ListItems)
		r.Get("/items/low-stock", handler.LowStock)
		r.Get("/items/{id}", handler.GetItem)
		r.Get("/items/{id}/price-history", handler.PriceHistory)
		r.Get("/items/{id}/stock-series", handler.StockSeries)

		r.Get("/consumptions", handler.ListConsumptions)
		r.Post("/consumptions", handler.RecordConsumption)
		r.Post("/consumptions/{id}/reverse", handler.ReverseConsumption)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Put("/users/{id}", handler.SyncUser)

			r.Post("/items", handler.CreateItem)
			r.Post("/items/import", handler.ImportCatalogue)
			r.Patch("/items/{id}", handler.UpdateItem)
			r.Post("/items/{id}/archive", handler.ArchiveItem)
			r.Post("/items/{id}/reactivate", handler.ReactivateItem)
			r.Post("/items/{id}/restock", handler.Restock)
			r.Post("/items/{id}/write-off", handler.WriteOff)
			r.Post("/items/{id}/adjust", handler.AdjustStock)

			r.Get("/settlements", handler.ListSettlements)
			r.Post("/settlements", handler.CreateSettlement)
			r.Get("/settlements/{id}", handler.GetSettlement)
			r.Get("/settlements/{id}/preview", handler.PreviewSettlement)
			r.Post("/settlements/{id}/bill", handler.BillSettlement)
			r.Post("/settlements/{id}/payments", handler.SetPaymentStatus)
			r.Post("/settlements/{id}/finalize", handler.FinalizeSettlement)
			r.Post("/settlements/{id}/void", handler.VoidSettlement)
			r.Get("/settlements/{id}/export", handler.ExportSettlement)

			r.Get("/ledger", handler.ListLedger)
			r.Post("/ledger", handler.CreateLedgerEntry)
			r.Get("/ledger/balance", handler.LedgerBalance)
			r.Get("/ledger/summary", handler.LedgerSummary)

			r.Get("/purchase-orders", handler.ListPurchaseOrders)
			r.Post("/purchase-orders", handler.ReceivePurchaseOrder)
			r.Get("/purchase-orders/{id}", handler.GetPurchaseOrder)

			r.Get("/audit", handler.ListAudit)
			r.Get("/audit/count", handler.CountAudit)
		})
	})

	return r
}
