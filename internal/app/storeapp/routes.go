package storeapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	storesvc "github.com/ivankudzin/tipjar/internal/services/store"
	"github.com/ivankudzin/tipjar/internal/transport/http/handlers"
)

type Dependencies struct {
	StoreService *storesvc.Service
	AdminToken   string
	Logger       *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	storeHandler := handlers.NewStoreHandler(deps.StoreService)
	adminMW := AdminAuthMiddleware(deps.AdminToken, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", storeHandler.Products)
		r.Post("/purchase", storeHandler.Purchase)
		r.Post("/verify", storeHandler.Verify)
		r.Post("/transactions/{id}/finish", storeHandler.Finish)
		r.Post("/entitlements/sync", storeHandler.SyncEntitlements)
		r.Get("/entitlements", storeHandler.Entitlements)
		r.Get("/updates", storeHandler.Updates)
		r.With(adminMW).Post("/transactions/{id}/revoke", storeHandler.Revoke)
	})
}
