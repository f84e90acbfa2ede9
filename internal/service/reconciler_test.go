package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-service/internal/models"
)

func TestReconcilerDefaults(t *testing.T) {
	r := NewReconciler(newTestLedger(t), nil, ReconcilerOptions{})
	assert.Equal(t, models.ExpiryPolicyUnsold, r.Policy())
	assert.Equal(t, defaultReconcileBatch, r.batchSize)
}

func TestReconcilerRunOnce(t *testing.T) {
	tests := []struct {
		policy        models.ExpiryPolicy
		wantWithBids  models.AuctionStatus
		wantWithout   models.AuctionStatus
		wantSoldEvent bool
	}{
		{policy: models.ExpiryPolicyUnsold, wantWithBids: models.AuctionStatusUnsold, wantWithout: models.AuctionStatusUnsold},
		{policy: models.ExpiryPolicySettle, wantWithBids: models.AuctionStatusSold, wantWithout: models.AuctionStatusUnsold},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t, BidStrategyCAS, tt.policy)
			ctx := context.Background()

			noBids := f.create(t, 1, 1, 100, nil, time.Minute)
			withBids := f.create(t, 2, 1, 100, nil, time.Minute)
			stillOpen := f.create(t, 3, 1, 100, nil, time.Hour)
			extra := f.create(t, 4, 1, 100, nil, 2*time.Minute)

			_, err := f.auctions.PlaceBid(ctx, withBids.ID, 150, 2)
			require.NoError(t, err)

			f.clock.Advance(5 * time.Minute)

			closed, err := f.reconciler.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, closed)

			assert.Equal(t, tt.wantWithout, f.get(t, noBids.ID).Status)
			assert.Equal(t, tt.wantWithout, f.get(t, extra.ID).Status)
			assert.Equal(t, models.AuctionStatusListed, f.get(t, stillOpen.ID).Status)

			settled := f.get(t, withBids.ID)
			assert.Equal(t, tt.wantWithBids, settled.Status)
			assert.Equal(t, int64(150), settled.CurrentHighestBid)
			assert.Equal(t, int64(2), *settled.LeadingBidderID)

			before := []*models.Auction{f.get(t, noBids.ID), f.get(t, withBids.ID), f.get(t, extra.ID)}

			closed, err = f.reconciler.RunOnce(ctx)
			require.NoError(t, err)
			assert.Zero(t, closed)

			after := []*models.Auction{f.get(t, noBids.ID), f.get(t, withBids.ID), f.get(t, extra.ID)}
			assert.Equal(t, before, after)

			closedEvents := 0
			for _, typ := range f.events.types() {
				if typ == models.EventTypeAuctionClosed {
					closedEvents++
				}
			}
			assert.Equal(t, 3, closedEvents)
		})
	}
}

func TestReconcilerSkipsSoldAuctions(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	a := f.create(t, 1, 1, 100, int64Ptr(300), time.Minute)
	_, err := f.auctions.PlaceBid(ctx, a.ID, 300, 2)
	require.NoError(t, err)
	sold := f.get(t, a.ID)

	f.clock.Advance(time.Hour)
	closed, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Equal(t, sold, f.get(t, a.ID))
}

func TestReconcilerEndTimeBoundary(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	ctx := context.Background()

	a := f.create(t, 1, 1, 100, nil, time.Minute)

	f.clock.Advance(time.Minute - time.Microsecond)
	closed, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)

	f.clock.Advance(time.Microsecond)
	closed, err = f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, models.AuctionStatusUnsold, f.get(t, a.ID).Status)
}
