// Package store implements the storefront emulator used for local
// development and tests: a catalog from config, purchases recorded in a
// transaction ledger, signed receipts, and an incremental update feed.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pgrepo "github.com/ivankudzin/tipjar/internal/repo/postgres"
	"github.com/ivankudzin/tipjar/internal/storefront"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyFinished     = errors.New("transaction already finished")
)

type Ledger interface {
	Insert(ctx context.Context, id, productID string, purchasedAt time.Time) (pgrepo.TransactionRecord, error)
	FindByID(ctx context.Context, id string) (pgrepo.TransactionRecord, error)
	MarkFinished(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string, at time.Time) (pgrepo.TransactionRecord, error)
	LatestPerProduct(ctx context.Context) ([]pgrepo.TransactionRecord, error)
	ListSince(ctx context.Context, cursor int64, limit int) ([]pgrepo.TransactionRecord, error)
}

// Archive persists raw receipts for audit. Implementations are best-effort;
// the purchase flow never fails on archive errors.
type Archive interface {
	Put(ctx context.Context, txID string, token storefront.Token) error
}

type Dependencies struct {
	Ledger  Ledger
	Signer  *ReceiptSigner
	Archive Archive
}

type Config struct {
	Products         []storefront.Product
	UpdateBatchLimit int
}

type Service struct {
	catalog     []storefront.Product
	ledger      Ledger
	signer      *ReceiptSigner
	archive     Archive
	updateLimit int
	logger      *zap.Logger
	now         func() time.Time
}

type PurchaseReply struct {
	Outcome       storefront.Outcome
	Token         storefront.Token
	TransactionID string
}

func NewService(deps Dependencies, cfg Config, logger *zap.Logger) (*Service, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("receipt signer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UpdateBatchLimit <= 0 {
		cfg.UpdateBatchLimit = 100
	}

	return &Service{
		catalog:     cfg.Products,
		ledger:      deps.Ledger,
		signer:      deps.Signer,
		archive:     deps.Archive,
		updateLimit: cfg.UpdateBatchLimit,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Products filters the configured catalog by the requested ids; an empty id
// list returns the whole catalog.
func (s *Service) Products(ids []storefront.ProductID) []storefront.Product {
	if len(ids) == 0 {
		out := make([]storefront.Product, len(s.catalog))
		copy(out, s.catalog)
		return out
	}

	var out []storefront.Product
	for _, id := range ids {
		if p, ok := s.lookup(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// Purchase executes a purchase of productID. A scripted outcome of
// "cancelled" or "pending" short-circuits without touching the ledger, which
// lets clients exercise their non-success paths against a live emulator.
func (s *Service) Purchase(ctx context.Context, productID storefront.ProductID, scripted string) (PurchaseReply, error) {
	if _, ok := s.lookup(productID); !ok {
		return PurchaseReply{}, ErrUnknownProduct
	}

	switch scripted {
	case "", "success":
	case "cancelled":
		return PurchaseReply{Outcome: storefront.OutcomeCancelled}, nil
	case "pending":
		return PurchaseReply{Outcome: storefront.OutcomePending}, nil
	default:
		return PurchaseReply{}, fmt.Errorf("scripted outcome %q: %w", scripted, ErrValidation)
	}

	record, err := s.ledger.Insert(ctx, uuid.NewString(), string(productID), s.now().UTC())
	if err != nil {
		return PurchaseReply{}, fmt.Errorf("record purchase: %w", err)
	}

	token, err := s.signer.Mint(record.ID, productID, record.PurchasedAt)
	if err != nil {
		return PurchaseReply{}, fmt.Errorf("mint receipt: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.Put(ctx, record.ID, token); err != nil {
			s.logger.Warn("archive receipt failed", zap.Error(err), zap.String("transaction_id", record.ID))
		}
	}

	return PurchaseReply{
		Outcome:       storefront.OutcomeSuccess,
		Token:         token,
		TransactionID: record.ID,
	}, nil
}

// Verify validates a receipt and returns the ledger's current view of the
// transaction, so a revocation issued after minting is always visible.
func (s *Service) Verify(ctx context.Context, token storefront.Token) (storefront.Transaction, error) {
	txID, productID, err := s.signer.Parse(token)
	if err != nil {
		return storefront.Transaction{}, err
	}

	record, err := s.ledger.FindByID(ctx, txID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return storefront.Transaction{}, storefront.ErrVerification
		}
		return storefront.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if record.ProductID != string(productID) {
		return storefront.Transaction{}, storefront.ErrVerification
	}

	return recordToTransaction(record), nil
}

func (s *Service) Finish(ctx context.Context, txID string) error {
	flipped, err := s.ledger.MarkFinished(ctx, txID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("finish transaction: %w", err)
	}
	if !flipped {
		return ErrAlreadyFinished
	}
	return nil
}

// Entitlements mints fresh receipts for the newest transaction of every
// product. Revoked transactions are included; clients decide what a revoked
// grant means.
func (s *Service) Entitlements(ctx context.Context) ([]storefront.Token, error) {
	records, err := s.ledger.LatestPerProduct(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	return s.mintAll(records)
}

// UpdatesSince returns receipts for ledger rows past cursor plus the cursor
// for the next poll.
func (s *Service) UpdatesSince(ctx context.Context, cursor int64) ([]storefront.Token, int64, error) {
	records, err := s.ledger.ListSince(ctx, cursor, s.updateLimit)
	if err != nil {
		return nil, cursor, fmt.Errorf("list updates: %w", err)
	}

	tokens, err := s.mintAll(records)
	if err != nil {
		return nil, cursor, err
	}

	next := cursor
	if len(records) > 0 {
		next = records[len(records)-1].Seq
	}
	return tokens, next, nil
}

func (s *Service) Revoke(ctx context.Context, txID string) (storefront.Transaction, error) {
	record, err := s.ledger.Revoke(ctx, txID, s.now().UTC())
	if err != nil {
		if errors.Is(err, pgrepo.ErrTransactionNotFound) {
			return storefront.Transaction{}, ErrTransactionNotFound
		}
		return storefront.Transaction{}, fmt.Errorf("revoke transaction: %w", err)
	}
	return recordToTransaction(record), nil
}

func (s *Service) lookup(id storefront.ProductID) (storefront.Product, bool) {
	for _, p := range s.catalog {
		if p.ID == id {
			return p, true
		}
	}
	return storefront.Product{}, false
}

func (s *Service) mintAll(records []pgrepo.TransactionRecord) ([]storefront.Token, error) {
	var tokens []storefront.Token
	for _, record := range records {
		token, err := s.signer.Mint(record.ID, storefront.ProductID(record.ProductID), record.PurchasedAt)
		if err != nil {
			return nil, fmt.Errorf("mint receipt for %s: %w", record.ID, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func recordToTransaction(record pgrepo.TransactionRecord) storefront.Transaction {
	return storefront.Transaction{
		ID:          record.ID,
		ProductID:   storefront.ProductID(record.ProductID),
		PurchasedAt: record.PurchasedAt,
		RevokedAt:   record.RevokedAt,
	}
}
