package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-service/internal/models"
	"auction-service/internal/redisclient"
	"auction-service/internal/store"
)

var strategies = []BidStrategy{BidStrategyCAS, BidStrategyLock}

func TestParseBidStrategy(t *testing.T) {
	s, err := ParseBidStrategy("")
	require.NoError(t, err)
	assert.Equal(t, BidStrategyCAS, s)

	s, err = ParseBidStrategy("lock")
	require.NoError(t, err)
	assert.Equal(t, BidStrategyLock, s)

	_, err = ParseBidStrategy("optimistic")
	assert.Error(t, err)
}

func TestCreateAuction(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	a := f.create(t, 77, 1, 100, int64Ptr(500), time.Hour)
	assert.NotZero(t, a.ID)
	assert.Equal(t, models.AuctionStatusListed, a.Status)
	assert.Equal(t, int64(100), a.CurrentHighestBid)
	assert.Nil(t, a.LeadingBidderID)
	assert.Equal(t, f.clock.Now(), a.CreatedAt)

	tests := []struct {
		name string
		req  CreateAuctionRequest
		want error
	}{
		{
			name: "zero start price",
			req:  CreateAuctionRequest{ItemInstID: 1, SellerID: 1, StartPrice: 0, EndTime: f.clock.Now().Add(time.Hour)},
			want: models.ErrInvalidPrice,
		},
		{
			name: "buy now below start",
			req:  CreateAuctionRequest{ItemInstID: 1, SellerID: 1, StartPrice: 100, BuyNowPrice: int64Ptr(50), EndTime: f.clock.Now().Add(time.Hour)},
			want: models.ErrInvalidPrice,
		},
		{
			name: "end time in the past",
			req:  CreateAuctionRequest{ItemInstID: 1, SellerID: 1, StartPrice: 100, EndTime: f.clock.Now().Add(-time.Minute)},
			want: models.ErrInvalidEndTime,
		},
		{
			name: "item already listed",
			req:  CreateAuctionRequest{ItemInstID: 77, SellerID: 1, StartPrice: 100, EndTime: f.clock.Now().Add(time.Hour)},
			want: models.ErrItemAlreadyListed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auctions.Create(ctx, &tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, []string{models.EventTypeAuctionCreated}, f.events.types())
}

func TestPlaceBidScenarios(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t, strategy, models.ExpiryPolicyUnsold)
			ctx := context.Background()

			a := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)

			_, err := f.auctions.PlaceBid(ctx, a.ID, 90, 2)
			assert.ErrorIs(t, err, models.ErrBidTooLow)

			_, err = f.auctions.PlaceBid(ctx, a.ID, 100, 2)
			assert.ErrorIs(t, err, models.ErrBidTooLow)

			outcome, err := f.auctions.PlaceBid(ctx, a.ID, 150, 2)
			require.NoError(t, err)
			assert.False(t, outcome.Settled)
			assert.Equal(t, int64(150), outcome.Auction.CurrentHighestBid)
			require.NotNil(t, outcome.Auction.LeadingBidderID)
			assert.Equal(t, int64(2), *outcome.Auction.LeadingBidderID)

			_, err = f.auctions.PlaceBid(ctx, a.ID, 200, 1)
			assert.ErrorIs(t, err, models.ErrSelfBidForbidden)

			_, err = f.auctions.PlaceBid(ctx, 9999, 200, 2)
			assert.ErrorIs(t, err, models.ErrNotFound)

			got := f.get(t, a.ID)
			assert.Equal(t, int64(150), got.CurrentHighestBid)
			assert.Equal(t, models.AuctionStatusListed, got.Status)
		})
	}
}

func TestPlaceBidBuyNowSettles(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t, strategy, models.ExpiryPolicyUnsold)
			ctx := context.Background()

			a := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)
			_, err := f.auctions.PlaceBid(ctx, a.ID, 150, 2)
			require.NoError(t, err)

			f.clock.Advance(time.Minute)
			outcome, err := f.auctions.PlaceBid(ctx, a.ID, 500, 3)
			require.NoError(t, err)
			assert.True(t, outcome.Settled)

			got := f.get(t, a.ID)
			assert.Equal(t, models.AuctionStatusSold, got.Status)
			assert.Equal(t, int64(500), got.CurrentHighestBid)
			assert.Equal(t, int64(3), *got.LeadingBidderID)
			assert.True(t, got.EndTime.Equal(f.clock.Now()))

			assert.Equal(t, []string{
				models.EventTypeAuctionCreated,
				models.EventTypeBidAccepted,
				models.EventTypeBidAccepted,
				models.EventTypeAuctionSold,
			}, f.events.types())

			// terminal auctions never change again
			_, err = f.auctions.PlaceBid(ctx, a.ID, 900, 4)
			assert.ErrorIs(t, err, models.ErrAuctionClosed)
			assert.Equal(t, got, f.get(t, a.ID))
		})
	}
}

func TestPlaceBidAbortedContext(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t, strategy, models.ExpiryPolicyUnsold)

			a := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)
			_, err := f.auctions.PlaceBid(context.Background(), a.ID, 150, 2)
			require.NoError(t, err)
			before := f.get(t, a.ID)
			published := len(f.events.types())

			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
			defer cancelExpired()

			for _, ctx := range []context.Context{cancelled, expired} {
				outcome, err := f.auctions.PlaceBid(ctx, a.ID, 600, 3)
				assert.Nil(t, outcome)
				assert.ErrorIs(t, err, models.ErrStorageFailure)
				assert.False(t, models.IsRejection(err))
			}

			assert.Equal(t, before, f.get(t, a.ID))
			assert.Len(t, f.events.types(), published)
		})
	}
}

func TestPlaceBidAfterEndTime(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	a := f.create(t, 10, 1, 100, nil, time.Hour)
	f.clock.Advance(time.Hour)

	_, err := f.auctions.PlaceBid(ctx, a.ID, 150, 2)
	assert.ErrorIs(t, err, models.ErrAuctionExpired)

	// still listed until the reconciler runs
	assert.Equal(t, models.AuctionStatusListed, f.get(t, a.ID).Status)
}

func TestPlaceBidCompeting(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t, strategy, models.ExpiryPolicyUnsold)
			ctx := context.Background()

			a := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, bid := range []struct{ amount, bidder int64 }{{200, 2}, {250, 3}} {
				wg.Add(1)
				go func(i int, amount, bidder int64) {
					defer wg.Done()
					_, errs[i] = f.auctions.PlaceBid(ctx, a.ID, amount, bidder)
				}(i, bid.amount, bid.bidder)
			}
			wg.Wait()

			require.NoError(t, errs[1])
			if errs[0] != nil {
				assert.ErrorIs(t, errs[0], models.ErrBidTooLow)
			}

			got := f.get(t, a.ID)
			assert.Equal(t, int64(250), got.CurrentHighestBid)
			assert.Equal(t, int64(3), *got.LeadingBidderID)

			// the lower bid arriving after the higher commit loses
			_, err := f.auctions.PlaceBid(ctx, a.ID, 200, 2)
			assert.ErrorIs(t, err, models.ErrBidTooLow)
		})
	}
}

func TestPlaceBidSingleWinnerAtBuyNow(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t, strategy, models.ExpiryPolicyUnsold)
			ctx := context.Background()

			a := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)

			const bidders = 10
			var wg sync.WaitGroup
			var mu sync.Mutex
			var winners []int64
			for i := 0; i < bidders; i++ {
				wg.Add(1)
				go func(bidder int64) {
					defer wg.Done()
					outcome, err := f.auctions.PlaceBid(ctx, a.ID, 500+bidder, bidder)
					if err != nil {
						return
					}
					if outcome.Settled {
						mu.Lock()
						winners = append(winners, bidder)
						mu.Unlock()
					}
				}(int64(i + 2))
			}
			wg.Wait()

			require.Len(t, winners, 1)
			got := f.get(t, a.ID)
			assert.Equal(t, models.AuctionStatusSold, got.Status)
			assert.Equal(t, winners[0], *got.LeadingBidderID)
		})
	}
}

type flakyLedger struct {
	*store.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (l *flakyLedger) PlaceBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error) {
	l.mu.Lock()
	l.calls++
	fail := l.calls <= l.failures
	l.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: place bid: %w", models.ErrStorageFailure, store.ErrConflict)
	}
	return l.Store.PlaceBid(ctx, auctionID, amount, bidderID, now)
}

func TestPlaceBidRetriesTransientConflict(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   error
		wantCalls int
	}{
		{name: "recovers on retry", failures: 1, wantCalls: 2},
		{name: "gives up after one retry", failures: 2, wantErr: models.ErrStorageFailure, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			ledger := &flakyLedger{Store: newTestLedger(t), failures: tt.failures}
			svc := NewAuctionService(ledger, nil, AuctionOptions{Clock: clock.Now})
			ctx := context.Background()

			a, err := svc.Create(ctx, &CreateAuctionRequest{
				ItemInstID: 1, SellerID: 1, StartPrice: 100, EndTime: clock.Now().Add(time.Hour),
			})
			require.NoError(t, err)

			_, err = svc.PlaceBid(ctx, a.ID, 150, 2)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, models.IsRejection(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, ledger.calls)
		})
	}
}

type failingGate struct{}

var errGateDown = errors.New("gate down")

func (failingGate) CheckBid(context.Context, int64, int64, int64, time.Time) (redisclient.GateVerdict, error) {
	return redisclient.GateUnknown, errGateDown
}

func (failingGate) RaiseFloor(context.Context, int64, int64, int64, time.Time) error {
	return errGateDown
}
func (failingGate) MarkClosed(context.Context, int64) error { return errGateDown }
func (failingGate) Forget(context.Context, int64) error     { return errGateDown }

func TestPlaceBidWithGate(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	clock := newFakeClock()
	ledger := newTestLedger(t)
	svc := NewAuctionService(ledger, nil, AuctionOptions{Clock: clock.Now, Gate: NewBidGate(cache)})
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreateAuctionRequest{
		ItemInstID: 1, SellerID: 1, StartPrice: 100, BuyNowPrice: int64Ptr(500), EndTime: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// nothing cached yet, the ledger decides
	_, err = svc.PlaceBid(ctx, a.ID, 90, 2)
	assert.ErrorIs(t, err, models.ErrBidTooLow)

	_, err = svc.PlaceBid(ctx, a.ID, 150, 2)
	require.NoError(t, err)
	assert.Equal(t, "150", mr.HGet("auction:1:gate", "floor"))

	_, err = svc.PlaceBid(ctx, a.ID, 120, 3)
	assert.ErrorIs(t, err, models.ErrBidTooLow)

	_, err = svc.PlaceBid(ctx, a.ID, 200, 1)
	assert.ErrorIs(t, err, models.ErrSelfBidForbidden)

	_, err = svc.PlaceBid(ctx, a.ID, 600, 3)
	require.NoError(t, err)
	assert.True(t, mr.Exists("auction:1:closed"))

	_, err = svc.PlaceBid(ctx, a.ID, 700, 4)
	assert.ErrorIs(t, err, models.ErrAuctionClosed)

	got, err := ledger.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.CurrentHighestBid)
}

func TestPlaceBidGateFailureFallsBack(t *testing.T) {
	clock := newFakeClock()
	svc := NewAuctionService(newTestLedger(t), nil, AuctionOptions{Clock: clock.Now, Gate: NewBidGate(failingGate{})})
	ctx := context.Background()

	a, err := svc.Create(ctx, &CreateAuctionRequest{
		ItemInstID: 1, SellerID: 1, StartPrice: 100, EndTime: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, a.ID, 150, 2)
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, a.ID, 120, 3)
	assert.ErrorIs(t, err, models.ErrBidTooLow)

	_, err = svc.Cancel(ctx, a.ID)
	assert.NoError(t, err)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	listed := f.create(t, 10, 1, 100, int64Ptr(500), time.Hour)
	sold := f.create(t, 11, 1, 100, int64Ptr(500), time.Hour)
	_, err := f.auctions.PlaceBid(ctx, sold.ID, 500, 2)
	require.NoError(t, err)

	removed, err := f.auctions.Cancel(ctx, listed.ID)
	require.NoError(t, err)
	assert.Equal(t, listed.ID, removed.ID)

	_, err = f.ledger.GetAuctionByID(ctx, listed.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.auctions.Cancel(ctx, listed.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.auctions.Cancel(ctx, sold.ID)
	assert.ErrorIs(t, err, models.ErrAuctionClosed)
	assert.Equal(t, models.AuctionStatusSold, f.get(t, sold.ID).Status)

	// the item can be listed again
	f.create(t, 10, 1, 100, nil, time.Hour)
}

func TestCancelBySeller(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	f.create(t, 10, 1, 100, nil, time.Hour)
	f.create(t, 11, 1, 100, nil, time.Hour)
	other := f.create(t, 12, 5, 100, nil, time.Hour)
	sold := f.create(t, 13, 1, 100, int64Ptr(200), time.Hour)
	_, err := f.auctions.PlaceBid(ctx, sold.ID, 200, 2)
	require.NoError(t, err)

	n, err := f.auctions.CancelBySeller(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := f.ledger.ListAuctionsBySeller(ctx, 1)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, sold.ID, remaining[0].ID)

	assert.Equal(t, models.AuctionStatusListed, f.get(t, other.ID).Status)

	n, err = f.auctions.CancelBySeller(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}
