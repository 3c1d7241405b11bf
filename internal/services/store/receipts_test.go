package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ivankudzin/tipjar/internal/storefront"
)

func TestReceiptRoundTrip(t *testing.T) {
	signer := NewReceiptSigner("secret")
	issued := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	token, err := signer.Mint("tx-42", "sub.monthly", issued)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	txID, productID, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if txID != "tx-42" || productID != "sub.monthly" {
		t.Fatalf("unexpected claims: tx %q product %q", txID, productID)
	}
}

func TestReceiptRejectsWrongKey(t *testing.T) {
	token, err := NewReceiptSigner("secret-a").Mint("tx-1", "tip.small", time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, _, err := NewReceiptSigner("secret-b").Parse(token); !errors.Is(err, storefront.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
}

func TestReceiptRejectsGarbage(t *testing.T) {
	signer := NewReceiptSigner("secret")

	for _, bad := range []storefront.Token{"", "   ", "a.b.c", "header.payload"} {
		if _, _, err := signer.Parse(bad); !errors.Is(err, storefront.ErrVerification) {
			t.Fatalf("token %q: expected verification error, got %v", bad, err)
		}
	}
}

func TestMintRequiresPayload(t *testing.T) {
	signer := NewReceiptSigner("secret")

	if _, err := signer.Mint("", "tip.small", time.Now()); err == nil {
		t.Fatalf("expected error for empty transaction id")
	}
	if _, err := signer.Mint("tx-1", "", time.Now()); err == nil {
		t.Fatalf("expected error for empty product id")
	}
	if _, err := NewReceiptSigner("").Mint("tx-1", "tip.small", time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
