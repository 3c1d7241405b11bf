package companionapp

import (
	"github.com/go-chi/chi/v5"

	prefssvc "github.com/ivankudzin/tipjar/internal/services/prefs"
	purchasesvc "github.com/ivankudzin/tipjar/internal/services/purchase"
	"github.com/ivankudzin/tipjar/internal/transport/http/handlers"
)

type Dependencies struct {
	Coordinator  *purchasesvc.Coordinator
	PrefsService *prefssvc.Service
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	billingHandler := handlers.NewBillingHandler(deps.Coordinator)
	prefsHandler := handlers.NewPrefsHandler(deps.PrefsService)

	r.Get("/healthz", healthHandler.Get)

	r.Get("/billing/catalog", billingHandler.Catalog)
	r.Post("/billing/purchase", billingHandler.Purchase)
	r.Post("/billing/restore", billingHandler.Restore)
	r.Get("/billing/status", billingHandler.Status)
	r.Get("/prefs", prefsHandler.Get)
	r.Put("/prefs", prefsHandler.Update)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/billing/catalog", billingHandler.Catalog)
		r.Post("/billing/purchase", billingHandler.Purchase)
		r.Post("/billing/restore", billingHandler.Restore)
		r.Get("/billing/status", billingHandler.Status)

		r.Get("/prefs", prefsHandler.Get)
		r.Put("/prefs", prefsHandler.Update)
	})
}
