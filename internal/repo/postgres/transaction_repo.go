package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRepo struct {
	pool *pgxpool.Pool
}

type TransactionRecord struct {
	ID          string
	ProductID   string
	PurchasedAt time.Time
	RevokedAt   *time.Time
	Finished    bool
	Seq         int64
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Insert(ctx context.Context, id, productID string, purchasedAt time.Time) (TransactionRecord, error) {
	if r.pool == nil {
		return TransactionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(productID) == "" {
		return TransactionRecord{}, fmt.Errorf("invalid transaction insert payload")
	}

	record, err := scanTransaction(r.pool.QueryRow(ctx, `
INSERT INTO store_transactions (id, product_id, purchased_at, finished)
VALUES ($1, $2, $3, FALSE)
RETURNING id, product_id, purchased_at, revoked_at, finished, seq
`, id, productID, purchasedAt.UTC()))
	if err != nil {
		return TransactionRecord{}, fmt.Errorf("insert transaction: %w", err)
	}

	return record, nil
}

func (r *TransactionRepo) FindByID(ctx context.Context, id string) (TransactionRecord, error) {
	if r.pool == nil {
		return TransactionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" {
		return TransactionRecord{}, fmt.Errorf("invalid transaction id")
	}

	record, err := scanTransaction(r.pool.QueryRow(ctx, `
SELECT id, product_id, purchased_at, revoked_at, finished, seq
FROM store_transactions
WHERE id = $1
LIMIT 1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransactionRecord{}, ErrTransactionNotFound
		}
		return TransactionRecord{}, fmt.Errorf("find transaction by id: %w", err)
	}

	return record, nil
}

// MarkFinished flips the finished flag and reports whether this call did the
// flip, so callers can reject a second finish of the same transaction.
func (r *TransactionRepo) MarkFinished(ctx context.Context, id string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("invalid transaction id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE store_transactions
SET finished = TRUE
WHERE id = $1 AND finished = FALSE
`, id)
	if err != nil {
		return false, fmt.Errorf("mark transaction finished: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return false, findErr
		}
		return false, nil
	}

	return true, nil
}

func (r *TransactionRepo) Revoke(ctx context.Context, id string, at time.Time) (TransactionRecord, error) {
	if r.pool == nil {
		return TransactionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(id) == "" {
		return TransactionRecord{}, fmt.Errorf("invalid transaction id")
	}

	record, err := scanTransaction(r.pool.QueryRow(ctx, `
UPDATE store_transactions
SET revoked_at = COALESCE(revoked_at, $2)
WHERE id = $1
RETURNING id, product_id, purchased_at, revoked_at, finished, seq
`, id, at.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransactionRecord{}, ErrTransactionNotFound
		}
		return TransactionRecord{}, fmt.Errorf("revoke transaction: %w", err)
	}

	return record, nil
}

// LatestPerProduct returns the newest transaction for every product that has
// at least one. This backs the current-entitlements snapshot.
func (r *TransactionRepo) LatestPerProduct(ctx context.Context) ([]TransactionRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT ON (product_id) id, product_id, purchased_at, revoked_at, finished, seq
FROM store_transactions
ORDER BY product_id, seq DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list latest transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *TransactionRepo) ListSince(ctx context.Context, cursor int64, limit int) ([]TransactionRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, product_id, purchased_at, revoked_at, finished, seq
FROM store_transactions
WHERE seq > $1
ORDER BY seq ASC
LIMIT $2
`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions since cursor: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]TransactionRecord, error) {
	var records []TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return records, nil
}

func scanTransaction(row pgx.Row) (TransactionRecord, error) {
	var record TransactionRecord
	err := row.Scan(
		&record.ID,
		&record.ProductID,
		&record.PurchasedAt,
		&record.RevokedAt,
		&record.Finished,
		&record.Seq,
	)
	if err != nil {
		return TransactionRecord{}, err
	}
	return record, nil
}
