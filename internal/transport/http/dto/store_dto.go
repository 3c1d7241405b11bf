package dto

import "time"

type StoreProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
}

type StoreProductsResponse struct {
	Products []StoreProduct `json:"products"`
}

type StorePurchaseRequest struct {
	ProductID string `json:"product_id"`
	// Outcome scripts a non-success result ("cancelled" or "pending") for
	// client testing. Empty means a real success flow.
	Outcome string `json:"outcome,omitempty"`
}

type StorePurchaseResponse struct {
	Outcome       string `json:"outcome"`
	Token         string `json:"token,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type StoreVerifyRequest struct {
	Token string `json:"token"`
}

type StoreTransactionResponse struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	PurchasedAt time.Time  `json:"purchased_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

type StoreFinishResponse struct {
	OK bool `json:"ok"`
}

type StoreEntitlementsResponse struct {
	Tokens []string `json:"tokens"`
}

type StoreUpdatesResponse struct {
	Tokens     []string `json:"tokens"`
	NextCursor int64    `json:"next_cursor"`
}
