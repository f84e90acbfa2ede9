package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"auction-service/internal/models"
)

var auctionColumns = []string{
	"id", "item_inst_id", "seller_id", "start_price", "buy_now_price",
	"current_highest_bid", "leading_bidder_id", "end_time", "last_bid_time",
	"status", "created_at",
}

var statusPrecedenceOrder = statusOrderExpr()

// statusOrderExpr ranks rows by models.StatusOrder
func statusOrderExpr() string {
	var b strings.Builder
	b.WriteString("CASE status")
	for _, st := range models.StatusOrder {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", st, st.Precedence())
	}
	fmt.Fprintf(&b, " ELSE %d END", len(models.StatusOrder))
	return b.String()
}

// CreateAuction inserts a listed auction and sets its ID
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	query, args, err := s.sb.Insert("auctions").
		Columns("item_inst_id", "seller_id", "start_price", "buy_now_price",
			"current_highest_bid", "end_time", "status", "created_at").
		Values(a.ItemInstID, a.SellerID, a.StartPrice, a.BuyNowPrice,
			a.CurrentHighestBid, a.EndTime, a.Status, a.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if err := s.db.GetContext(ctx, &a.ID, query, args...); err != nil {
		if isUniqueViolation(err) {
			return models.ErrItemAlreadyListed
		}
		return storageErr("create auction", err)
	}
	return nil
}

// GetAuctionByID retrieves an auction by ID
func (s *Store) GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error) {
	return s.getAuction(ctx, s.db, id, false)
}

func (s *Store) getAuction(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*models.Auction, error) {
	sb := s.sb.Select(auctionColumns...).From("auctions").Where(squirrel.Eq{"id": id})
	// SQLite has no row locks; the single connection serializes instead.
	if forUpdate && s.dialect == DialectPostgres {
		sb = sb.Suffix("FOR UPDATE")
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	var a models.Auction
	if err := sqlx.GetContext(ctx, q, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, storageErr("get auction", err)
	}
	return &a, nil
}

// ListAuctions returns every auction, listed first, then sold, then unsold,
// each group by end time descending.
func (s *Store) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	return s.selectAuctions(ctx, s.sb.Select(auctionColumns...).From("auctions").
		OrderBy(statusPrecedenceOrder, "end_time DESC", "id DESC"))
}

// ListAuctionsBySeller returns a seller's auctions in any status
func (s *Store) ListAuctionsBySeller(ctx context.Context, sellerID int64) ([]models.Auction, error) {
	return s.selectAuctions(ctx, s.sb.Select(auctionColumns...).From("auctions").
		Where(squirrel.Eq{"seller_id": sellerID}).
		OrderBy("end_time DESC", "id DESC"))
}

// ListAuctionsByBidder returns the auctions a bidder currently leads
func (s *Store) ListAuctionsByBidder(ctx context.Context, bidderID int64) ([]models.Auction, error) {
	return s.selectAuctions(ctx, s.sb.Select(auctionColumns...).From("auctions").
		Where(squirrel.Eq{"leading_bidder_id": bidderID}).
		OrderBy("last_bid_time DESC", "id DESC"))
}

func (s *Store) selectAuctions(ctx context.Context, sb squirrel.SelectBuilder) ([]models.Auction, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	auctions := []models.Auction{}
	if err := s.db.SelectContext(ctx, &auctions, query, args...); err != nil {
		return nil, storageErr("list auctions", err)
	}
	return auctions, nil
}

// ListListedIDsBySeller returns IDs of a seller's listed auctions
func (s *Store) ListListedIDsBySeller(ctx context.Context, sellerID int64) ([]int64, error) {
	return s.selectIDs(ctx, s.sb.Select("id").From("auctions").
		Where(squirrel.Eq{"seller_id": sellerID, "status": models.AuctionStatusListed}).
		OrderBy("id"))
}

// ListExpiredIDs returns up to limit listed auctions whose end time has passed
func (s *Store) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	sb := s.sb.Select("id").From("auctions").
		Where(squirrel.Eq{"status": models.AuctionStatusListed}).
		Where(squirrel.LtOrEq{"end_time": now}).
		OrderBy("end_time", "id")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}
	return s.selectIDs(ctx, sb)
}

func (s *Store) selectIDs(ctx context.Context, sb squirrel.SelectBuilder) ([]int64, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	ids := []int64{}
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, storageErr("list auction ids", err)
	}
	return ids, nil
}

// PlaceBid applies a bid with one conditional update. The update only
// matches a listed, unexpired auction not owned by the bidder whose
// highest bid is below amount, so two concurrent bids cannot both win.
// When nothing matches, the row is re-read in the same transaction to
// report why.
func (s *Store) PlaceBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin bid transaction", err)
	}
	defer tx.Rollback()

	const reachesBuyNow = "buy_now_price IS NOT NULL AND buy_now_price <= ?"
	query, args, err := s.sb.Update("auctions").
		Set("current_highest_bid", amount).
		Set("leading_bidder_id", bidderID).
		Set("last_bid_time", now).
		Set("status", squirrel.Expr("CASE WHEN "+reachesBuyNow+" THEN ? ELSE status END", amount, models.AuctionStatusSold)).
		Set("end_time", squirrel.Expr("CASE WHEN "+reachesBuyNow+" THEN ? ELSE end_time END", amount, now)).
		Where(squirrel.Eq{"id": auctionID, "status": models.AuctionStatusListed}).
		Where(squirrel.Lt{"current_highest_bid": amount}).
		Where(squirrel.Gt{"end_time": now}).
		Where(squirrel.NotEq{"seller_id": bidderID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build bid update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("apply bid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("apply bid", err)
	}

	current, err := s.getAuction(ctx, tx, auctionID, false)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		if reason := current.EvaluateBid(amount, bidderID, now); reason != nil {
			return nil, reason
		}
		return nil, storageErr("apply bid", ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit bid", err)
	}

	return &models.BidOutcome{
		Auction: current,
		Settled: current.Status == models.AuctionStatusSold,
	}, nil
}

// PlaceBidLocked applies a bid by locking the auction row, validating it
// in memory and writing the result back.
func (s *Store) PlaceBidLocked(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (*models.BidOutcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin bid transaction", err)
	}
	defer tx.Rollback()

	a, err := s.getAuction(ctx, tx, auctionID, true)
	if err != nil {
		return nil, err
	}
	if err := a.EvaluateBid(amount, bidderID, now); err != nil {
		return nil, err
	}

	previous := a.CurrentHighestBid
	settled := a.ApplyBid(amount, bidderID, now)

	query, args, err := s.sb.Update("auctions").
		Set("current_highest_bid", a.CurrentHighestBid).
		Set("leading_bidder_id", a.LeadingBidderID).
		Set("last_bid_time", a.LastBidTime).
		Set("status", a.Status).
		Set("end_time", a.EndTime).
		Where(squirrel.Eq{
			"id":                  auctionID,
			"status":              models.AuctionStatusListed,
			"current_highest_bid": previous,
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build bid update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("apply bid", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, storageErr("apply bid", err)
	} else if n == 0 {
		return nil, storageErr("apply bid", ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit bid", err)
	}
	return &models.BidOutcome{Auction: a, Settled: settled}, nil
}

// DeleteListedAuction removes a listed auction and returns it as it was.
// Terminal auctions are kept as history and yield ErrAuctionClosed.
func (s *Store) DeleteListedAuction(ctx context.Context, id int64) (*models.Auction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin delete transaction", err)
	}
	defer tx.Rollback()

	a, err := s.getAuction(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AuctionStatusListed {
		return nil, models.ErrAuctionClosed
	}

	query, args, err := s.sb.Delete("auctions").
		Where(squirrel.Eq{"id": id, "status": models.AuctionStatusListed}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("delete auction", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, storageErr("delete auction", err)
	} else if n == 0 {
		return nil, storageErr("delete auction", ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit delete", err)
	}
	return a, nil
}

// CloseExpiredAuction moves one expired listed auction to the status the
// policy picks. It returns nil when the auction was already closed or is
// not yet expired, so concurrent reconcilers close each auction once.
func (s *Store) CloseExpiredAuction(ctx context.Context, id int64, now time.Time, policy models.ExpiryPolicy) (*models.Auction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin close transaction", err)
	}
	defer tx.Rollback()

	query, args, err := s.sb.Update("auctions").
		Set("status", squirrel.Expr("CASE WHEN leading_bidder_id IS NOT NULL THEN ? ELSE ? END",
			policy.Resolve(true), policy.Resolve(false))).
		Where(squirrel.Eq{"id": id, "status": models.AuctionStatusListed}).
		Where(squirrel.LtOrEq{"end_time": now}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build close update: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("close auction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr("close auction", err)
	}
	if n == 0 {
		return nil, nil
	}

	a, err := s.getAuction(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit close", err)
	}
	return a, nil
}
