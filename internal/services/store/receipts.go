package store

import (
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/ivankudzin/tipjar/internal/storefront"
)

// ReceiptSigner mints and validates the signed receipts the emulator hands
// out as verification tokens. A receipt only locates a ledger row; revocation
// and finish state are always read back from the ledger, so claims never go
// stale.
type ReceiptSigner struct {
	secret []byte
	now    func() time.Time
}

type receiptClaims struct {
	ProductID string `json:"product_id"`
	jwt.RegisteredClaims
}

func NewReceiptSigner(secret string) *ReceiptSigner {
	return &ReceiptSigner{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (s *ReceiptSigner) Mint(txID string, productID storefront.ProductID, purchasedAt time.Time) (storefront.Token, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("receipt secret is empty")
	}
	if strings.TrimSpace(txID) == "" || productID == "" {
		return "", fmt.Errorf("invalid receipt payload")
	}

	claims := receiptClaims{
		ProductID: string(productID),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       txID,
			IssuedAt: jwt.NewNumericDate(purchasedAt.UTC()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}

	return storefront.Token(signed), nil
}

// Parse validates the signature and returns the transaction id the receipt
// points at. Any defect maps to storefront.ErrVerification.
func (s *ReceiptSigner) Parse(token storefront.Token) (string, storefront.ProductID, error) {
	if strings.TrimSpace(string(token)) == "" {
		return "", "", storefront.ErrVerification
	}

	claims := &receiptClaims{}
	parsed, err := jwt.ParseWithClaims(string(token), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", storefront.ErrVerification
	}
	if claims.ID == "" || claims.ProductID == "" {
		return "", "", storefront.ErrVerification
	}

	return claims.ID, storefront.ProductID(claims.ProductID), nil
}
