package purchase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/tipjar/internal/storefront"
)

const defaultResetDelay = 2 * time.Second

var ErrValidation = errors.New("validation error")

type State int

const (
	StateIdle State = iota
	StatePurchasing
	StatePurchased
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the observable purchase-flow state. Message is set only when
// State is StateFailed.
type Status struct {
	State   State
	Message string
}

type Config struct {
	TipSmallID     storefront.ProductID
	TipLargeID     storefront.ProductID
	SubscriptionID storefront.ProductID
	// ResetDelay is how long a successful purchase stays visible before the
	// status returns to idle. Defaults to 2s.
	ResetDelay time.Duration
	// OnChange, when set, is invoked after every status mutation with the new
	// value. It runs outside the coordinator lock.
	OnChange func(Status)
}

// Coordinator owns the product catalog, the purchase state machine and the
// derived subscription entitlement. All mutable state is guarded by one
// mutex; accessors take the same lock, so reads never race a purchase in
// flight.
type Coordinator struct {
	store  storefront.Storefront
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	products      []storefront.Product
	status        Status
	hasActiveSub  bool
	catalogLoaded bool
	purchaseSeq   uint64

	cancelListener context.CancelFunc
	listenerDone   chan struct{}
}

// New builds a coordinator and starts its transaction-update listener. The
// listener lives until Close is called or ctx ends.
func New(ctx context.Context, store storefront.Storefront, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("storefront is nil")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription product id is required: %w", ErrValidation)
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = defaultResetDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	listenerCtx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		store:          store,
		cfg:            cfg,
		logger:         logger,
		cancelListener: cancel,
		listenerDone:   make(chan struct{}),
	}

	updates, err := store.TransactionUpdates(listenerCtx)
	if err != nil {
		logger.Warn("transaction update feed unavailable", zap.Error(err))
		close(c.listenerDone)
		return c, nil
	}
	go c.listen(listenerCtx, updates)

	return c, nil
}

// Close stops the transaction-update listener and waits for it to exit.
func (c *Coordinator) Close() {
	c.cancelListener()
	<-c.listenerDone
}

// LoadCatalog fetches product metadata for the known product ids. The fetch
// runs at most once per coordinator; a failed fetch is logged and leaves the
// catalog empty, callers see no error.
func (c *Coordinator) LoadCatalog(ctx context.Context) {
	c.mu.Lock()
	if c.catalogLoaded {
		c.mu.Unlock()
		return
	}
	c.catalogLoaded = true
	c.mu.Unlock()

	ids := []storefront.ProductID{c.cfg.TipSmallID, c.cfg.TipLargeID, c.cfg.SubscriptionID}
	products, err := c.store.FetchProducts(ctx, ids)
	if err != nil {
		c.logger.Warn("load product catalog failed", zap.Error(err))
		return
	}

	sort.SliceStable(products, func(i, j int) bool {
		return c.roleRank(products[i].ID) < c.roleRank(products[j].ID)
	})

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
}

// roleRank fixes the catalog order: unrecognized ids first, then small tip,
// large tip, subscription.
func (c *Coordinator) roleRank(id storefront.ProductID) int {
	switch id {
	case c.cfg.TipSmallID:
		return 1
	case c.cfg.TipLargeID:
		return 2
	case c.cfg.SubscriptionID:
		return 3
	default:
		return 0
	}
}

// Purchase runs one purchase attempt against the storefront and returns the
// terminal status. The purchasing status is published before the storefront
// call so observers always see the transition.
func (c *Coordinator) Purchase(ctx context.Context, product storefront.Product) Status {
	gen := c.beginPurchase()

	result, err := c.store.Purchase(ctx, product)
	if err != nil {
		return c.failPurchase(product.ID, err)
	}

	switch result.Outcome {
	case storefront.OutcomeSuccess:
		tx, err := c.store.Verify(ctx, result.Token)
		if err != nil {
			return c.failPurchase(product.ID, err)
		}
		if err := c.store.Finish(ctx, tx); err != nil {
			return c.failPurchase(product.ID, err)
		}

		status := c.setStatus(Status{State: StatePurchased})
		c.refreshEntitlement(ctx)
		c.scheduleReset(gen)
		return status
	case storefront.OutcomeCancelled, storefront.OutcomePending:
		return c.setStatus(Status{State: StateIdle})
	default:
		// Nothing to show the user for outcomes we do not recognize.
		return c.setStatus(Status{State: StateIdle})
	}
}

// RestorePurchases asks the storefront to sync the remote entitlement ledger
// and recomputes the subscription flag. Sync failures are swallowed; the
// recomputation always runs.
func (c *Coordinator) RestorePurchases(ctx context.Context) {
	if err := c.store.SyncEntitlements(ctx); err != nil {
		c.logger.Debug("entitlement sync failed", zap.Error(err))
	}
	c.refreshEntitlement(ctx)
}

// Lookup returns the cached product for id, if the catalog holds it.
func (c *Coordinator) Lookup(id storefront.ProductID) (storefront.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return storefront.Product{}, false
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) Products() []storefront.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]storefront.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Coordinator) HasActiveSubscription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasActiveSub
}

func (c *Coordinator) CatalogLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalogLoaded
}

// refreshEntitlement recomputes the subscription flag from the storefront's
// current entitlements. The first token that verifies, matches the
// subscription product and carries no revocation wins; tokens that fail
// verification are treated as absent. An enumeration failure leaves the flag
// untouched.
func (c *Coordinator) refreshEntitlement(ctx context.Context) {
	tokens, err := c.store.CurrentEntitlements(ctx)
	if err != nil {
		c.logger.Warn("list current entitlements failed", zap.Error(err))
		return
	}

	found := false
	for _, token := range tokens {
		tx, err := c.store.Verify(ctx, token)
		if err != nil {
			continue
		}
		if tx.ProductID == c.cfg.SubscriptionID && tx.RevokedAt == nil {
			found = true
			break
		}
	}

	c.mu.Lock()
	c.hasActiveSub = found
	c.mu.Unlock()
}

func (c *Coordinator) listen(ctx context.Context, updates <-chan storefront.Token) {
	defer close(c.listenerDone)

	for {
		select {
		case <-ctx.Done():
			return
		case token, ok := <-updates:
			if !ok {
				return
			}
			tx, err := c.store.Verify(ctx, token)
			if err != nil {
				c.logger.Debug("unverifiable transaction update", zap.Error(err))
			} else if err := c.store.Finish(ctx, tx); err != nil {
				c.logger.Warn("finish updated transaction failed", zap.Error(err), zap.String("transaction_id", tx.ID))
			}
			c.refreshEntitlement(ctx)
		}
	}
}

// beginPurchase publishes the purchasing status and returns the attempt's
// generation, used to fence the delayed reset against newer attempts.
func (c *Coordinator) beginPurchase() uint64 {
	c.mu.Lock()
	c.purchaseSeq++
	gen := c.purchaseSeq
	c.status = Status{State: StatePurchasing}
	status := c.status
	c.mu.Unlock()

	c.notify(status)
	return gen
}

func (c *Coordinator) failPurchase(id storefront.ProductID, err error) Status {
	c.logger.Warn("purchase failed", zap.String("product_id", string(id)), zap.Error(err))
	return c.setStatus(Status{State: StateFailed, Message: failureMessage(err)})
}

func (c *Coordinator) setStatus(status Status) Status {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.notify(status)
	return status
}

// scheduleReset returns the status to idle once the success-display window
// elapses, unless a newer purchase attempt took over in the meantime.
func (c *Coordinator) scheduleReset(gen uint64) {
	time.AfterFunc(c.cfg.ResetDelay, func() {
		c.mu.Lock()
		if c.status.State != StatePurchased || c.purchaseSeq != gen {
			c.mu.Unlock()
			return
		}
		c.status = Status{State: StateIdle}
		status := c.status
		c.mu.Unlock()

		c.notify(status)
	})
}

func (c *Coordinator) notify(status Status) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(status)
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, storefront.ErrVerification):
		return "the purchase could not be verified"
	case errors.Is(err, storefront.ErrUnknownProduct):
		return "this product is not available"
	default:
		return "the purchase could not be completed"
	}
}
