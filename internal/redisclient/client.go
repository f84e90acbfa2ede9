package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/check_bid.lua
var checkBidScript string

//go:embed scripts/raise_floor.lua
var raiseFloorScript string

// gateKeyTTL bounds how long per-auction gate keys outlive their auction
const gateKeyTTL = 7 * 24 * time.Hour

// GateVerdict is the cached answer for a bid attempt
type GateVerdict int

const (
	// GateUnknown means the cache cannot decide; the ledger must
	GateUnknown GateVerdict = iota
	// GateTooLow means the amount does not beat an already committed bid
	GateTooLow
	// GateClosed means the auction reached a terminal status
	GateClosed
	// GateExpired means the cached end time has passed
	GateExpired
	// GateSelfBid means the bidder is the auction's seller
	GateSelfBid
)

type Client struct {
	rdb         *redis.Client
	checkScript *redis.Script
	raiseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:         rdb,
		checkScript: redis.NewScript(checkBidScript),
		raiseScript: redis.NewScript(raiseFloorScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func gateKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d:gate", auctionID)
}

func closedKey(auctionID int64) string {
	return fmt.Sprintf("auction:%d:closed", auctionID)
}

// CheckBid consults the cached gate and closed marker. The gate only
// holds committed state of a listed auction, so any verdict other than
// GateUnknown is one the ledger would reach as well.
func (c *Client) CheckBid(ctx context.Context, auctionID, amount, bidderID int64, now time.Time) (GateVerdict, error) {
	keys := []string{gateKey(auctionID), closedKey(auctionID)}

	result, err := c.checkScript.Run(ctx, c.rdb, keys, amount, bidderID, now.UnixMicro()).Result()
	if err != nil {
		return GateUnknown, fmt.Errorf("check bid script failed: %w", err)
	}

	verdict, ok := result.(int64)
	if !ok {
		return GateUnknown, fmt.Errorf("unexpected script result type")
	}

	switch verdict {
	case 1:
		return GateTooLow, nil
	case 2:
		return GateClosed, nil
	case 3:
		return GateExpired, nil
	case 4:
		return GateSelfBid, nil
	}
	return GateUnknown, nil
}

// RaiseFloor records a committed bid together with the auction's seller and
// end time. Out-of-order calls are harmless since the floor never moves down.
func (c *Client) RaiseFloor(ctx context.Context, auctionID, amount, sellerID int64, endTime time.Time) error {
	keys := []string{gateKey(auctionID)}

	_, err := c.raiseScript.Run(ctx, c.rdb, keys,
		amount, sellerID, endTime.UnixMicro(), int(gateKeyTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("raise floor script failed: %w", err)
	}
	return nil
}

// MarkClosed records that an auction reached a terminal status
func (c *Client) MarkClosed(ctx context.Context, auctionID int64) error {
	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, closedKey(auctionID), "1", gateKeyTTL)
	pipe.Del(ctx, gateKey(auctionID))

	_, err := pipe.Exec(ctx)
	return err
}

// Forget drops every gate key of a removed auction
func (c *Client) Forget(ctx context.Context, auctionID int64) error {
	return c.rdb.Del(ctx, gateKey(auctionID), closedKey(auctionID)).Err()
}

// StoredResponse is a response replayed for a repeated idempotency key
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

const pendingMarker = "pending"

// ErrIdempotencyInFlight means another request with the same key has not finished
var ErrIdempotencyInFlight = errors.New("request with this idempotency key is in progress")

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ReserveIdempotencyKey claims key for a new request. It returns the
// stored response when the key was already completed.
func (c *Client) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (*StoredResponse, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls; let the caller retry the reservation
		return nil, ErrIdempotencyInFlight
	}
	if err != nil {
		return nil, err
	}
	if val == pendingMarker {
		return nil, ErrIdempotencyInFlight
	}

	var stored StoredResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, fmt.Errorf("corrupt idempotency record: %w", err)
	}
	return &stored, nil
}

// CompleteIdempotencyKey stores the final response for key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, idempotencyKey(key), data, ttl).Err()
}

// ReleaseIdempotencyKey drops a reservation whose request failed
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
