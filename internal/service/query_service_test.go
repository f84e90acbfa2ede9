package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-service/internal/models"
)

type fakeDirectory struct {
	mu      sync.Mutex
	lookups int
	missing map[int64]bool
}

func (d *fakeDirectory) CharacterName(_ context.Context, id int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.missing[id] {
		return "", errors.New("directory unavailable")
	}
	return fmt.Sprintf("char-%d", id), nil
}

func (d *fakeDirectory) ItemName(_ context.Context, id int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	return fmt.Sprintf("item-%d", id), nil
}

func TestQueryService(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	dir := &fakeDirectory{missing: map[int64]bool{9: true}}
	q := NewQueryService(f.ledger, dir)
	ctx := context.Background()

	sold := f.create(t, 1, 1, 100, int64Ptr(200), time.Hour)
	listed := f.create(t, 2, 1, 100, nil, 2*time.Hour)
	orphan := f.create(t, 3, 9, 100, nil, 3*time.Hour)

	_, err := f.auctions.PlaceBid(ctx, sold.ID, 200, 5)
	require.NoError(t, err)
	_, err = f.auctions.PlaceBid(ctx, listed.ID, 150, 5)
	require.NoError(t, err)

	t.Run("get", func(t *testing.T) {
		view, err := q.GetAuction(ctx, listed.ID)
		require.NoError(t, err)
		assert.Equal(t, "item-2", view.ItemName)
		assert.Equal(t, "char-1", view.SellerName)
		assert.Nil(t, view.MyBid)

		_, err = q.GetAuction(ctx, 999)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("list active", func(t *testing.T) {
		views, err := q.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, views, 3)
		assert.Equal(t, []int64{orphan.ID, listed.ID, sold.ID}, []int64{views[0].ID, views[1].ID, views[2].ID})
		assert.Empty(t, views[0].SellerName)
		assert.Equal(t, "item-3", views[0].ItemName)
	})

	t.Run("list by seller", func(t *testing.T) {
		views, err := q.ListBySeller(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, views, 2)

		views, err = q.ListBySeller(ctx, 42)
		require.NoError(t, err)
		assert.NotNil(t, views)
		assert.Empty(t, views)
	})

	t.Run("list by bidder", func(t *testing.T) {
		views, err := q.ListByBidder(ctx, 5)
		require.NoError(t, err)
		require.Len(t, views, 2)
		for _, v := range views {
			require.NotNil(t, v.MyBid)
			assert.Equal(t, v.CurrentHighestBid, *v.MyBid)
		}
	})
}

func TestQueryServiceMemoizesLookups(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	dir := &fakeDirectory{}
	q := NewQueryService(f.ledger, dir)

	for i := int64(1); i <= 4; i++ {
		f.create(t, i, 1, 100, nil, time.Hour)
	}

	_, err := q.ListBySeller(context.Background(), 1)
	require.NoError(t, err)
	// four items, one seller
	assert.Equal(t, 5, dir.lookups)
}

func TestQueryServiceWithoutDirectory(t *testing.T) {
	f := newFixture(t, BidStrategyCAS, models.ExpiryPolicyUnsold)
	q := NewQueryService(f.ledger, nil)
	a := f.create(t, 1, 1, 100, nil, time.Hour)

	view, err := q.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, view.ItemName)
	assert.Equal(t, a.ID, view.ID)
}
