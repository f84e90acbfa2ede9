package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auction-service/internal/service"
	"auction-service/internal/util"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Options configures the optional parts of the HTTP surface
type Options struct {
	// Idempotency enables replay of POST responses keyed by Idempotency-Key
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	// BidRate and BidBurst limit bid submissions per bidder; zero disables
	BidRate  float64
	BidBurst int
	Checks   map[string]HealthCheck
}

// Handler contains HTTP handlers
type Handler struct {
	auctions   *service.AuctionService
	queries    *service.QueryService
	reconciler *service.Reconciler
	limiter    *bidderLimiter
	opts       Options
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(auctions *service.AuctionService, queries *service.QueryService, reconciler *service.Reconciler, opts Options) *Handler {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}

	return &Handler{
		auctions:   auctions,
		queries:    queries,
		reconciler: reconciler,
		limiter:    newBidderLimiter(opts.BidRate, opts.BidBurst),
		opts:       opts,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	idempotent := idempotencyMiddleware(h.opts.Idempotency, h.opts.IdempotencyTTL)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auctions", idempotent, h.createAuction)
		v1.GET("/auctions", h.listAuctions)
		v1.GET("/auctions/:id", h.getAuction)
		v1.DELETE("/auctions/:id", h.cancelAuction)
		v1.POST("/auctions/:id/bids", idempotent, h.placeBid)

		v1.GET("/sellers/:id/auctions", h.listSellerAuctions)
		v1.GET("/bidders/:id/auctions", h.listBidderAuctions)

		v1.POST("/admin/reconcile", h.reconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	failed := gin.H{}
	for name, check := range h.opts.Checks {
		if err := check(c.Request.Context()); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createAuction handles listing an item
func (h *Handler) createAuction(c *gin.Context) {
	var req service.CreateAuctionRequest
	if !bindJSON(c, &req) {
		return
	}

	auction, err := h.auctions.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, auction)
}

// listAuctions handles the public auction list
func (h *Handler) listAuctions(c *gin.Context) {
	views, err := h.queries.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auctions": views})
}

// getAuction handles get auction by ID
func (h *Handler) getAuction(c *gin.Context) {
	auctionID, ok := pathID(c, "auction")
	if !ok {
		return
	}

	view, err := h.queries.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// cancelAuction removes a listed auction
func (h *Handler) cancelAuction(c *gin.Context) {
	auctionID, ok := pathID(c, "auction")
	if !ok {
		return
	}

	auction, err := h.auctions.Cancel(c.Request.Context(), auctionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, auction)
}

// placeBid handles a bid submission
func (h *Handler) placeBid(c *gin.Context) {
	auctionID, ok := pathID(c, "auction")
	if !ok {
		return
	}

	var req service.PlaceBidRequest
	if !bindJSON(c, &req) {
		return
	}

	if !h.limiter.Allow(req.BidderID) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  "Too many bids, slow down",
			"reason": "rate_limited",
		})
		return
	}

	outcome, err := h.auctions.PlaceBid(c.Request.Context(), auctionID, req.Amount, req.BidderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// listSellerAuctions handles the seller's own listings
func (h *Handler) listSellerAuctions(c *gin.Context) {
	sellerID, ok := pathID(c, "seller")
	if !ok {
		return
	}

	views, err := h.queries.ListBySeller(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auctions": views})
}

// listBidderAuctions handles the auctions a bidder leads
func (h *Handler) listBidderAuctions(c *gin.Context) {
	bidderID, ok := pathID(c, "bidder")
	if !ok {
		return
	}

	views, err := h.queries.ListByBidder(c.Request.Context(), bidderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"auctions": views})
}

// reconcile runs one reconciliation pass on demand
func (h *Handler) reconcile(c *gin.Context) {
	closed, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.Error("On-demand reconcile failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "Reconcile incomplete",
			"reason": "storage_failure",
			"closed": closed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"closed": closed,
		"policy": h.reconciler.Policy(),
	})
}

func pathID(c *gin.Context, kind string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid " + kind + " ID",
			"reason": "invalid_request",
		})
		return 0, false
	}
	return id, true
}
