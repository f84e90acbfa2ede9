package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"auction-service/internal/redisclient"
	"auction-service/internal/util"
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// IdempotencyStore keeps responses of requests carrying an Idempotency-Key
type IdempotencyStore interface {
	ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (*redisclient.StoredResponse, error)
	CompleteIdempotencyKey(ctx context.Context, key string, resp redisclient.StoredResponse, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

const idempotencyHeader = "Idempotency-Key"

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware replays the stored response of a repeated key.
// Server failures and throttled requests release the key so the client
// can retry. When the store is down requests run without protection.
func idempotencyMiddleware(store IdempotencyStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if store == nil || key == "" {
			c.Next()
			return
		}

		scoped := c.Request.Method + " " + c.Request.URL.Path + " " + key
		ctx := c.Request.Context()
		log := util.GetLogger().With(zap.String("idempotency_key", key))

		stored, err := store.ReserveIdempotencyKey(ctx, scoped, ttl)
		switch {
		case errors.Is(err, redisclient.ErrIdempotencyInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":  "A request with this idempotency key is in progress",
				"reason": "idempotency_in_flight",
			})
			return
		case err != nil:
			log.Warn("Idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		case stored != nil:
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			c.Abort()
			return
		}

		bg := context.WithoutCancel(ctx)
		release := func() {
			if err := store.ReleaseIdempotencyKey(bg, scoped); err != nil {
				log.Warn("Failed to release idempotency key", zap.Error(err))
			}
		}

		// a panicking handler becomes a 500 further out; free the key first
		defer func() {
			if r := recover(); r != nil {
				release()
				panic(r)
			}
		}()

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			release()
			return
		}

		resp := redisclient.StoredResponse{
			Status: status,
			Body:   json.RawMessage(bytes.Clone(w.body.Bytes())),
		}
		if err := store.CompleteIdempotencyKey(bg, scoped, resp, ttl); err != nil {
			log.Warn("Failed to store idempotent response", zap.Error(err))
		}
	}
}

const maxTrackedBidders = 10000

// bidderLimiter is a token bucket per bidder
type bidderLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[int64]*rate.Limiter
}

// newBidderLimiter returns nil, which allows everything, when perSecond <= 0
func newBidderLimiter(perSecond float64, burst int) *bidderLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &bidderLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[int64]*rate.Limiter),
	}
}

func (l *bidderLimiter) Allow(bidderID int64) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[bidderID]
	if !ok {
		if len(l.limiters) >= maxTrackedBidders {
			l.limiters = make(map[int64]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[bidderID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
