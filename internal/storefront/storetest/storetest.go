// Package storetest provides a scripted in-memory Storefront used by tests
// and by companiond when it runs without a real storefront endpoint.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ivankudzin/tipjar/internal/storefront"
)

type Store struct {
	mu sync.Mutex

	products     map[storefront.ProductID]storefront.Product
	productOrder []storefront.ProductID
	respondAll   bool
	transactions map[storefront.Token]storefront.Transaction
	entitlements []storefront.Token
	badTokens    map[storefront.Token]bool
	finishCounts map[string]int
	subscribers  []chan storefront.Token
	tokenSeq     int
	fetchCalls   int
	syncCalls    int

	fetchErr    error
	purchaseErr error
	verifyErr   error
	syncErr     error
	nextOutcome storefront.Outcome
	now         func() time.Time
}

func New(products ...storefront.Product) *Store {
	s := &Store{
		products:     make(map[storefront.ProductID]storefront.Product),
		transactions: make(map[storefront.Token]storefront.Transaction),
		badTokens:    make(map[storefront.Token]bool),
		finishCounts: make(map[string]int),
		nextOutcome:  storefront.OutcomeSuccess,
		now:          time.Now,
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	return s
}

// RespondAllOnFetch makes FetchProducts ignore the requested ids and return
// every seeded product in seeding order.
func (s *Store) RespondAllOnFetch() {
	s.mu.Lock()
	s.respondAll = true
	s.mu.Unlock()
}

func (s *Store) FetchProducts(_ context.Context, ids []storefront.ProductID) ([]storefront.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var out []storefront.Product
	if s.respondAll {
		for _, id := range s.productOrder {
			out = append(out, s.products[id])
		}
		return out, nil
	}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Purchase(_ context.Context, product storefront.Product) (storefront.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.purchaseErr != nil {
		return storefront.PurchaseResult{}, s.purchaseErr
	}
	if s.nextOutcome != storefront.OutcomeSuccess {
		return storefront.PurchaseResult{Outcome: s.nextOutcome}, nil
	}
	if _, ok := s.products[product.ID]; !ok {
		return storefront.PurchaseResult{}, storefront.ErrUnknownProduct
	}

	token := s.mintLocked(product.ID, nil)
	s.entitlements = append(s.entitlements, token)
	return storefront.PurchaseResult{Outcome: storefront.OutcomeSuccess, Token: token}, nil
}

func (s *Store) Verify(_ context.Context, token storefront.Token) (storefront.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.verifyErr != nil {
		return storefront.Transaction{}, s.verifyErr
	}
	if s.badTokens[token] {
		return storefront.Transaction{}, storefront.ErrVerification
	}
	tx, ok := s.transactions[token]
	if !ok {
		return storefront.Transaction{}, storefront.ErrVerification
	}
	return tx, nil
}

func (s *Store) Finish(_ context.Context, tx storefront.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finishCounts[tx.ID]++
	return nil
}

func (s *Store) SyncEntitlements(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncCalls++
	return s.syncErr
}

func (s *Store) CurrentEntitlements(_ context.Context) ([]storefront.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storefront.Token, len(s.entitlements))
	copy(out, s.entitlements)
	return out, nil
}

func (s *Store) TransactionUpdates(ctx context.Context) (<-chan storefront.Token, error) {
	ch := make(chan storefront.Token, 16)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Mint records a transaction for product id and returns its token without
// going through Purchase. revokedAt may be nil.
func (s *Store) Mint(id storefront.ProductID, revokedAt *time.Time) storefront.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked(id, revokedAt)
}

func (s *Store) mintLocked(id storefront.ProductID, revokedAt *time.Time) storefront.Token {
	s.tokenSeq++
	token := storefront.Token(fmt.Sprintf("tok-%d", s.tokenSeq))
	s.transactions[token] = storefront.Transaction{
		ID:          fmt.Sprintf("tx-%d", s.tokenSeq),
		ProductID:   id,
		PurchasedAt: s.now().UTC(),
		RevokedAt:   revokedAt,
	}
	return token
}

// SetEntitlements replaces the snapshot returned by CurrentEntitlements.
func (s *Store) SetEntitlements(tokens ...storefront.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entitlements = append([]storefront.Token(nil), tokens...)
}

// MarkTokenBad makes Verify fail for token.
func (s *Store) MarkTokenBad(token storefront.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badTokens[token] = true
}

// PushUpdate delivers token on every open TransactionUpdates feed.
func (s *Store) PushUpdate(token storefront.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers {
		sub <- token
	}
}

func (s *Store) FailFetch(err error)    { s.mu.Lock(); s.fetchErr = err; s.mu.Unlock() }
func (s *Store) FailPurchase(err error) { s.mu.Lock(); s.purchaseErr = err; s.mu.Unlock() }
func (s *Store) FailVerify(err error)   { s.mu.Lock(); s.verifyErr = err; s.mu.Unlock() }
func (s *Store) FailSync(err error)     { s.mu.Lock(); s.syncErr = err; s.mu.Unlock() }

// ScriptOutcome makes subsequent purchases resolve with outcome instead of
// success.
func (s *Store) ScriptOutcome(outcome storefront.Outcome) {
	s.mu.Lock()
	s.nextOutcome = outcome
	s.mu.Unlock()
}

func (s *Store) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *Store) SyncCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCalls
}

func (s *Store) FinishCount(txID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishCounts[txID]
}

func (s *Store) TransactionFor(token storefront.Token) (storefront.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[token]
	return tx, ok
}
