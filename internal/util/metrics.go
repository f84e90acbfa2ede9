package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuctionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auctions_created_total",
		Help: "Total number of auctions listed",
	})

	AuctionsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctions_cancelled_total",
		Help: "Total number of listed auctions removed",
	}, []string{"reason"})

	AuctionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auctions_closed_total",
		Help: "Total number of auctions moved to a terminal status",
	}, []string{"status", "trigger"})

	AuctionRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_rejections_total",
		Help: "Total number of rejected auction operations",
	}, []string{"operation", "reason"})

	BidsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_accepted_total",
		Help: "Total number of accepted bids",
	})

	BidsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_rejected_total",
		Help: "Total number of rejected bids",
	}, []string{"reason"})

	BidRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bid_retries_total",
		Help: "Total number of bids retried after a transient storage error",
	})

	BidGateShortCircuitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bid_gate_short_circuit_total",
		Help: "Total number of bids rejected from the cached bid floor",
	})

	BidLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bid_latency_seconds",
		Help:    "Latency of bid placement",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy", "result"})

	StorageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_failures_total",
		Help: "Total number of operations failed by the ledger",
	}, []string{"operation"})

	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_runs_total",
		Help: "Total number of reconciliation passes",
	}, []string{"result"})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_latency_seconds",
		Help:    "Latency of a reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of domain events published",
	}, []string{"event_type", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Total number of inbound events handled",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
