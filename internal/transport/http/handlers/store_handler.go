package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	storesvc "github.com/ivankudzin/tipjar/internal/services/store"
	"github.com/ivankudzin/tipjar/internal/storefront"
	"github.com/ivankudzin/tipjar/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/tipjar/internal/transport/http/errors"
)

type StoreHandler struct {
	store *storesvc.Service
}

func NewStoreHandler(store *storesvc.Service) *StoreHandler {
	return &StoreHandler{store: store}
}

// Products lists the catalog, optionally filtered by a comma-separated ids
// query parameter.
func (h *StoreHandler) Products(w http.ResponseWriter, r *http.Request) {
	var ids []storefront.ProductID
	if raw := r.URL.Query().Get("ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				ids = append(ids, storefront.ProductID(part))
			}
		}
	}

	products := h.store.Products(ids)
	resp := dto.StoreProductsResponse{Products: make([]dto.StoreProduct, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, dto.StoreProduct{
			ID:          string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
		})
	}

	httperrors.Write(w, http.StatusOK, resp)
}

func (h *StoreHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req dto.StorePurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "product_id is required")
		return
	}

	reply, err := h.store.Purchase(r.Context(), storefront.ProductID(req.ProductID), req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, storesvc.ErrUnknownProduct):
			writeNotFound(w, "UNKNOWN_PRODUCT", "unknown product")
		case errors.Is(err, storesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid scripted outcome")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to execute purchase")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.StorePurchaseResponse{
		Outcome:       reply.Outcome.String(),
		Token:         string(reply.Token),
		TransactionID: reply.TransactionID,
	})
}

func (h *StoreHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.StoreVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	tx, err := h.store.Verify(r.Context(), storefront.Token(req.Token))
	if err != nil {
		if errors.Is(err, storefront.ErrVerification) {
			httperrors.Write(w, http.StatusUnprocessableEntity, httperrors.APIError{
				Code:    "VERIFICATION_FAILED",
				Message: "receipt verification failed",
			})
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to verify receipt")
		return
	}

	httperrors.Write(w, http.StatusOK, transactionToDTO(tx))
}

func (h *StoreHandler) Finish(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "transaction id is required")
		return
	}

	if err := h.store.Finish(r.Context(), txID); err != nil {
		switch {
		case errors.Is(err, storesvc.ErrTransactionNotFound):
			writeNotFound(w, "TRANSACTION_NOT_FOUND", "transaction not found")
		case errors.Is(err, storesvc.ErrAlreadyFinished):
			writeConflict(w, "ALREADY_FINISHED", "transaction already finished")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to finish transaction")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.StoreFinishResponse{OK: true})
}

// SyncEntitlements exists so clients have an explicit sync hook; the emulator
// reads straight from its ledger, so there is nothing to refresh.
func (h *StoreHandler) SyncEntitlements(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.Entitlements(r.Context())
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list entitlements")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.StoreEntitlementsResponse{Tokens: tokensToStrings(tokens)})
}

func (h *StoreHandler) Updates(w http.ResponseWriter, r *http.Request) {
	var cursor int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "VALIDATION_ERROR", "cursor must be a non-negative integer")
			return
		}
		cursor = parsed
	}

	tokens, next, err := h.store.UpdatesSince(r.Context(), cursor)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to list updates")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.StoreUpdatesResponse{
		Tokens:     tokensToStrings(tokens),
		NextCursor: next,
	})
}

// Revoke marks a transaction as revoked. The route is admin-only; auth is
// enforced by middleware.
func (h *StoreHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "transaction id is required")
		return
	}

	tx, err := h.store.Revoke(r.Context(), txID)
	if err != nil {
		if errors.Is(err, storesvc.ErrTransactionNotFound) {
			writeNotFound(w, "TRANSACTION_NOT_FOUND", "transaction not found")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to revoke transaction")
		return
	}

	httperrors.Write(w, http.StatusOK, transactionToDTO(tx))
}

func transactionToDTO(tx storefront.Transaction) dto.StoreTransactionResponse {
	return dto.StoreTransactionResponse{
		ID:          tx.ID,
		ProductID:   string(tx.ProductID),
		PurchasedAt: tx.PurchasedAt,
		RevokedAt:   tx.RevokedAt,
	}
}

func tokensToStrings(tokens []storefront.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, string(t))
	}
	return out
}
