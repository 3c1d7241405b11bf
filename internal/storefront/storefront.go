package storefront

import (
	"context"
	"errors"
	"time"
)

var (
	ErrVerification   = errors.New("receipt verification failed")
	ErrUnknownProduct = errors.New("unknown product")
)

// ProductID identifies a purchasable item. The value is opaque to callers;
// only the storefront assigns meaning to it.
type ProductID string

type Product struct {
	ID          ProductID
	Name        string
	Description string
	Price       string
}

// Token is a signed attestation that a transaction is genuine. Clients treat
// it as an opaque string and hand it back to Verify.
type Token string

type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccess
	OutcomeCancelled
	OutcomePending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomePending:
		return "pending"
	default:
		return "unknown"
	}
}

// ParseOutcome maps the wire form back; anything unrecognized is
// OutcomeUnknown, which clients already treat as "nothing to show".
func ParseOutcome(s string) Outcome {
	switch s {
	case "success":
		return OutcomeSuccess
	case "cancelled":
		return OutcomeCancelled
	case "pending":
		return OutcomePending
	default:
		return OutcomeUnknown
	}
}

type PurchaseResult struct {
	Outcome Outcome
	Token   Token
}

// Transaction is the verified form of a token. RevokedAt is nil while the
// underlying grant is still in good standing.
type Transaction struct {
	ID          string
	ProductID   ProductID
	PurchasedAt time.Time
	RevokedAt   *time.Time
}

// Storefront is the external purchase/billing collaborator. Implementations
// own receipt signing and validation; consumers only see tokens and verified
// transactions.
type Storefront interface {
	FetchProducts(ctx context.Context, ids []ProductID) ([]Product, error)
	Purchase(ctx context.Context, product Product) (PurchaseResult, error)
	Verify(ctx context.Context, token Token) (Transaction, error)
	// Finish acknowledges a transaction. It must be called exactly once per
	// accepted transaction.
	Finish(ctx context.Context, tx Transaction) error
	SyncEntitlements(ctx context.Context) error
	// CurrentEntitlements returns a finite snapshot; every call restarts the
	// enumeration from scratch.
	CurrentEntitlements(ctx context.Context) ([]Token, error)
	// TransactionUpdates returns a long-lived feed of tokens for transactions
	// that changed outside any local call. The channel is closed when ctx ends.
	TransactionUpdates(ctx context.Context) (<-chan Token, error)
}
