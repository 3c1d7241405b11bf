package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ivankudzin/tipjar/internal/storefront"
	"github.com/ivankudzin/tipjar/internal/storefront/storetest"
)

const (
	tipSmallID = storefront.ProductID("tip.small")
	tipLargeID = storefront.ProductID("tip.large")
	subID      = storefront.ProductID("sub.monthly")
)

func testConfig() Config {
	return Config{
		TipSmallID:     tipSmallID,
		TipLargeID:     tipLargeID,
		SubscriptionID: subID,
		ResetDelay:     30 * time.Millisecond,
	}
}

func testProducts() []storefront.Product {
	return []storefront.Product{
		{ID: subID, Name: "Monthly support", Price: "$0.99"},
		{ID: tipSmallID, Name: "Small tip", Price: "$0.99"},
		{ID: tipLargeID, Name: "Large tip", Price: "$4.99"},
	}
}

func newCoordinator(t *testing.T, store *storetest.Store, cfg Config) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), store, cfg, nil)
	if err != nil {
		t.Fatalf("create coordinator: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

type statusTrace struct {
	mu       sync.Mutex
	statuses []Status
}

func (tr *statusTrace) record(s Status) {
	tr.mu.Lock()
	tr.statuses = append(tr.statuses, s)
	tr.mu.Unlock()
}

func (tr *statusTrace) states() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]State, len(tr.statuses))
	for i, s := range tr.statuses {
		out[i] = s.State
	}
	return out
}

func TestLoadCatalogSortsByRole(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	c.LoadCatalog(context.Background())

	got := c.Products()
	want := []storefront.ProductID{tipSmallID, tipLargeID, subID}
	if len(got) != len(want) {
		t.Fatalf("unexpected catalog size: got %d want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("catalog position %d: got %q want %q", i, got[i].ID, id)
		}
	}
}

func TestLoadCatalogUnknownIDsSortFirst(t *testing.T) {
	// The storefront may return products outside the known roles (an old id
	// after a catalog migration, say); those sort ahead of everything else.
	cfg := testConfig()
	cfg.TipSmallID = "tip.small.v2"
	store := storetest.New(testProducts()...)
	store.RespondAllOnFetch()
	c := newCoordinator(t, store, cfg)

	c.LoadCatalog(context.Background())

	got := c.Products()
	want := []storefront.ProductID{tipSmallID, tipLargeID, subID}
	if len(got) != len(want) {
		t.Fatalf("unexpected catalog size: got %d want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("catalog position %d: got %q want %q", i, got[i].ID, id)
		}
	}
}

func TestLoadCatalogFetchesAtMostOnce(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	c.LoadCatalog(context.Background())
	first := c.Products()
	c.LoadCatalog(context.Background())

	if calls := store.FetchCalls(); calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
	second := c.Products()
	if len(first) != len(second) {
		t.Fatalf("catalog changed on second load: %d vs %d products", len(first), len(second))
	}
}

func TestLoadCatalogFailureIsNonFatal(t *testing.T) {
	store := storetest.New(testProducts()...)
	store.FailFetch(errors.New("network down"))
	c := newCoordinator(t, store, testConfig())

	c.LoadCatalog(context.Background())

	if got := c.Products(); len(got) != 0 {
		t.Fatalf("expected empty catalog after failed load, got %d products", len(got))
	}
	if !c.CatalogLoaded() {
		t.Fatalf("a failed load still counts as the one automatic attempt")
	}
	if calls := store.FetchCalls(); calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestPurchaseSuccessPublishesPurchasingFirst(t *testing.T) {
	store := storetest.New(testProducts()...)
	trace := &statusTrace{}
	cfg := testConfig()
	cfg.OnChange = trace.record
	c := newCoordinator(t, store, cfg)
	c.LoadCatalog(context.Background())

	product, ok := c.Lookup(tipSmallID)
	if !ok {
		t.Fatalf("small tip missing from catalog")
	}

	status := c.Purchase(context.Background(), product)
	if status.State != StatePurchased {
		t.Fatalf("unexpected terminal state: %v", status.State)
	}

	states := trace.states()
	if len(states) < 2 || states[0] != StatePurchasing || states[1] != StatePurchased {
		t.Fatalf("unexpected state sequence: %v", states)
	}
}

func TestPurchaseCancelledAndPendingYieldIdle(t *testing.T) {
	for _, outcome := range []storefront.Outcome{
		storefront.OutcomeCancelled,
		storefront.OutcomePending,
		storefront.OutcomeUnknown,
	} {
		store := storetest.New(testProducts()...)
		store.ScriptOutcome(outcome)
		c := newCoordinator(t, store, testConfig())
		c.LoadCatalog(context.Background())

		status := c.Purchase(context.Background(), storefront.Product{ID: tipSmallID})
		if status.State != StateIdle {
			t.Fatalf("outcome %v: got state %v, want idle", outcome, status.State)
		}
		if status.Message != "" {
			t.Fatalf("outcome %v: unexpected message %q", outcome, status.Message)
		}
	}
}

func TestPurchaseErrorYieldsFailed(t *testing.T) {
	store := storetest.New(testProducts()...)
	store.FailPurchase(errors.New("storefront fault"))
	c := newCoordinator(t, store, testConfig())

	status := c.Purchase(context.Background(), storefront.Product{ID: tipSmallID})
	if status.State != StateFailed {
		t.Fatalf("got state %v, want failed", status.State)
	}
	if status.Message == "" {
		t.Fatalf("failed status must carry a message")
	}
}

func TestPurchaseVerificationFailureYieldsFailed(t *testing.T) {
	store := storetest.New(testProducts()...)
	store.FailVerify(storefront.ErrVerification)
	c := newCoordinator(t, store, testConfig())

	status := c.Purchase(context.Background(), storefront.Product{ID: tipSmallID})
	if status.State != StateFailed {
		t.Fatalf("got state %v, want failed", status.State)
	}
	if status.Message != "the purchase could not be verified" {
		t.Fatalf("unexpected message: %q", status.Message)
	}
}

func TestPurchaseSuccessMarksSubscription(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	status := c.Purchase(context.Background(), storefront.Product{ID: subID})
	if status.State != StatePurchased {
		t.Fatalf("unexpected terminal state: %v", status.State)
	}
	if !c.HasActiveSubscription() {
		t.Fatalf("subscription purchase must activate the entitlement")
	}
}

func TestPurchaseAutoResetsToIdle(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	status := c.Purchase(context.Background(), storefront.Product{ID: tipSmallID})
	if status.State != StatePurchased {
		t.Fatalf("unexpected terminal state: %v", status.State)
	}

	waitFor(t, time.Second, func() bool {
		return c.Status().State == StateIdle
	})
}

func TestAutoResetDoesNotClobberNewerAttempt(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	if status := c.Purchase(context.Background(), storefront.Product{ID: tipSmallID}); status.State != StatePurchased {
		t.Fatalf("first purchase: got state %v", status.State)
	}

	// A second attempt fails before the first attempt's reset window elapses;
	// the stale reset must leave the failure visible.
	store.FailPurchase(errors.New("storefront fault"))
	if status := c.Purchase(context.Background(), storefront.Product{ID: tipLargeID}); status.State != StateFailed {
		t.Fatalf("second purchase: got state %v", status.State)
	}

	time.Sleep(100 * time.Millisecond)
	if got := c.Status().State; got != StateFailed {
		t.Fatalf("stale reset clobbered state: got %v, want failed", got)
	}
}

func TestRefreshEntitlementRevokedSubscription(t *testing.T) {
	store := storetest.New(testProducts()...)
	revokedAt := time.Now().UTC()
	token := store.Mint(subID, &revokedAt)
	store.SetEntitlements(token)
	c := newCoordinator(t, store, testConfig())

	c.RestorePurchases(context.Background())

	if c.HasActiveSubscription() {
		t.Fatalf("revoked entitlement must not activate the subscription")
	}
}

func TestRefreshEntitlementSkipsUnverifiableTokens(t *testing.T) {
	store := storetest.New(testProducts()...)
	bad := store.Mint(subID, nil)
	store.MarkTokenBad(bad)
	good := store.Mint(subID, nil)
	store.SetEntitlements(bad, good)
	c := newCoordinator(t, store, testConfig())

	c.RestorePurchases(context.Background())

	if !c.HasActiveSubscription() {
		t.Fatalf("a later verifiable entitlement must still win")
	}
}

func TestRefreshEntitlementIgnoresOtherProducts(t *testing.T) {
	store := storetest.New(testProducts()...)
	store.SetEntitlements(store.Mint(tipSmallID, nil), store.Mint(tipLargeID, nil))
	c := newCoordinator(t, store, testConfig())

	c.RestorePurchases(context.Background())

	if c.HasActiveSubscription() {
		t.Fatalf("tip transactions must not activate the subscription")
	}
}

func TestRestoreRefreshesEvenWhenSyncFails(t *testing.T) {
	store := storetest.New(testProducts()...)
	store.FailSync(errors.New("ledger unreachable"))
	store.SetEntitlements(store.Mint(subID, nil))
	c := newCoordinator(t, store, testConfig())

	c.RestorePurchases(context.Background())

	if store.SyncCalls() != 1 {
		t.Fatalf("expected one sync attempt, got %d", store.SyncCalls())
	}
	if !c.HasActiveSubscription() {
		t.Fatalf("entitlement recomputation must run despite the sync failure")
	}
}

func TestTransactionUpdateFinishesAndRefreshes(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	token := store.Mint(subID, nil)
	store.SetEntitlements(token)
	store.PushUpdate(token)

	waitFor(t, time.Second, func() bool {
		return c.HasActiveSubscription()
	})

	tx, ok := store.TransactionFor(token)
	if !ok {
		t.Fatalf("transaction missing for token")
	}
	waitFor(t, time.Second, func() bool {
		return store.FinishCount(tx.ID) == 1
	})
}

func TestLookupMissesBeforeLoad(t *testing.T) {
	store := storetest.New(testProducts()...)
	c := newCoordinator(t, store, testConfig())

	if _, ok := c.Lookup(tipSmallID); ok {
		t.Fatalf("lookup must miss before the catalog is loaded")
	}
}
