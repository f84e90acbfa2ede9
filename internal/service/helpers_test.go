package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auction-service/internal/broker"
	"auction-service/internal/models"
	"auction-service/internal/store"
)

func newTestLedger(t *testing.T) *store.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "auctions.db")
	require.NoError(t, store.Migrate("sqlite3", dsn))

	s, err := store.NewStore("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Meta().EventType)
	}
	return types
}

// testingT is satisfied by *testing.T and *rapid.T
type testingT interface {
	require.TestingT
	Helper()
}

type fixture struct {
	ledger     *store.Store
	clock      *fakeClock
	events     *recordingPublisher
	auctions   *AuctionService
	reconciler *Reconciler
}

func newFixture(t *testing.T, strategy BidStrategy, policy models.ExpiryPolicy) *fixture {
	t.Helper()

	ledger := newTestLedger(t)
	clock := newFakeClock()
	events := &recordingPublisher{}
	publisher := broker.NewEventPublisher(events)

	return &fixture{
		ledger: ledger,
		clock:  clock,
		events: events,
		auctions: NewAuctionService(ledger, publisher, AuctionOptions{
			Strategy:   strategy,
			BidTimeout: 5 * time.Second,
			Clock:      clock.Now,
		}),
		reconciler: NewReconciler(ledger, publisher, ReconcilerOptions{
			Policy:    policy,
			BatchSize: 2,
			Clock:     clock.Now,
		}),
	}
}

func (f *fixture) create(t testingT, itemID, sellerID, start int64, buyNow *int64, ttl time.Duration) *models.Auction {
	t.Helper()

	a, err := f.auctions.Create(context.Background(), &CreateAuctionRequest{
		ItemInstID:  itemID,
		SellerID:    sellerID,
		StartPrice:  start,
		BuyNowPrice: buyNow,
		EndTime:     f.clock.Now().Add(ttl),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) get(t testingT, id int64) *models.Auction {
	t.Helper()

	a, err := f.ledger.GetAuctionByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func int64Ptr(v int64) *int64 { return &v }
