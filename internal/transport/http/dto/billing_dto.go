package dto

type BillingProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price"`
}

type BillingCatalogResponse struct {
	Products []BillingProduct `json:"products"`
}

type BillingPurchaseRequest struct {
	ProductID string `json:"product_id"`
}

type BillingStatusResponse struct {
	State                 string `json:"state"`
	Message               string `json:"message,omitempty"`
	HasActiveSubscription bool   `json:"has_active_subscription"`
}

type BillingRestoreResponse struct {
	OK                    bool `json:"ok"`
	HasActiveSubscription bool `json:"has_active_subscription"`
}

type PrefsResponse struct {
	AccentColor string `json:"accent_color"`
	Icon        string `json:"icon"`
}

type PrefsUpdateRequest struct {
	AccentColor *string `json:"accent_color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
}
