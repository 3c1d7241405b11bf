package handlers

import (
	"net/http"

	purchasesvc "github.com/ivankudzin/tipjar/internal/services/purchase"
	"github.com/ivankudzin/tipjar/internal/storefront"
	"github.com/ivankudzin/tipjar/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tipjar/internal/transport/http/errors"
)

// BillingHandler binds the purchase coordinator to the companion HTTP
// surface the app UI talks to.
type BillingHandler struct {
	coordinator *purchasesvc.Coordinator
}

func NewBillingHandler(coordinator *purchasesvc.Coordinator) *BillingHandler {
	return &BillingHandler{coordinator: coordinator}
}

func (h *BillingHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "BILLING_SERVICE_UNAVAILABLE", "billing service is unavailable")
		return
	}

	h.coordinator.LoadCatalog(r.Context())

	products := h.coordinator.Products()
	resp := dto.BillingCatalogResponse{Products: make([]dto.BillingProduct, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, dto.BillingProduct{
			ID:          string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *BillingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "BILLING_SERVICE_UNAVAILABLE", "billing service is unavailable")
		return
	}

	var req dto.BillingPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	product, ok := h.coordinator.Lookup(storefront.ProductID(req.ProductID))
	if !ok {
		writeNotFound(w, "UNKNOWN_PRODUCT", "product is not in the catalog")
		return
	}

	status := h.coordinator.Purchase(r.Context(), product)
	httperrors.Write(w, http.StatusOK, statusToDTO(status, h.coordinator.HasActiveSubscription()))
}

func (h *BillingHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "BILLING_SERVICE_UNAVAILABLE", "billing service is unavailable")
		return
	}

	h.coordinator.RestorePurchases(r.Context())

	httperrors.Write(w, http.StatusOK, dto.BillingRestoreResponse{
		OK:                    true,
		HasActiveSubscription: h.coordinator.HasActiveSubscription(),
	})
}

func (h *BillingHandler) Status(w http.ResponseWriter, _ *http.Request) {
	if h.coordinator == nil {
		writeInternal(w, "BILLING_SERVICE_UNAVAILABLE", "billing service is unavailable")
		return
	}

	httperrors.Write(w, http.StatusOK, statusToDTO(h.coordinator.Status(), h.coordinator.HasActiveSubscription()))
}

func statusToDTO(status purchasesvc.Status, hasSub bool) dto.BillingStatusResponse {
	return dto.BillingStatusResponse{
		State:                 status.State.String(),
		Message:               status.Message,
		HasActiveSubscription: hasSub,
	}
}
