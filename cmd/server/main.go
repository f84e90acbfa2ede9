package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auction-service/config"
	"auction-service/internal/api"
	"auction-service/internal/broker"
	"auction-service/internal/clients"
	"auction-service/internal/models"
	"auction-service/internal/redisclient"
	"auction-service/internal/service"
	"auction-service/internal/store"
	"auction-service/internal/util"
	"auction-service/internal/worker"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting auction service")

	expiryPolicy, err := models.ParseExpiryPolicy(cfg.Auction.ExpiryPolicy)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	bidStrategy, err := service.ParseBidStrategy(cfg.Auction.BidStrategy)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	if err := store.Migrate(cfg.Database.Driver, cfg.Database.URL); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	checks := map[string]api.HealthCheck{"database": db.Ping}

	// interface values stay untyped nil when Redis is disabled
	var (
		gateStore   service.GateStore
		idempotency api.IdempotencyStore
		locker      worker.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		gateStore, idempotency, locker = redisClient, redisClient, redisClient
		checks["redis"] = redisClient.Ping
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	eventPublisher := broker.NewEventPublisher(publisher)
	defer eventPublisher.Close()
	logger.Info("Event publisher initialized", zap.String("broker", cfg.Auction.EventBroker))

	var directory clients.DisplayDirectory
	if cfg.Directory.URL != "" {
		directory = clients.NewDirectoryClient(cfg.Directory.URL, cfg.Directory.Timeout)
	}

	gate := service.NewBidGate(gateStore)
	auctionService := service.NewAuctionService(db, eventPublisher, service.AuctionOptions{
		Strategy:   bidStrategy,
		BidTimeout: cfg.Auction.BidTimeout,
		Gate:       gate,
	})
	queryService := service.NewQueryService(db, directory)
	reconciler := service.NewReconciler(db, eventPublisher, service.ReconcilerOptions{
		Policy:    expiryPolicy,
		BatchSize: cfg.Auction.ReconcileBatch,
		Gate:      gate,
	})
	cascade := service.NewSellerCascade(db, auctionService, nil)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reconcilerWorker := worker.NewReconcilerWorker(reconciler, locker, cfg.Auction.ReconcileInterval)
	go func() {
		if err := reconcilerWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Reconciler worker error", zap.Error(err))
		}
	}()

	var cascadeWorker *worker.CascadeWorker
	if cfg.Auction.EventBroker == "kafka" {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCharacterEvents, cfg.Kafka.ConsumerGroup)
		cascadeWorker = worker.NewCascadeWorker(consumer, cascade)
		go func() {
			if err := cascadeWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Cascade worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(auctionService, queryService, reconciler, api.Options{
		Idempotency:    idempotency,
		IdempotencyTTL: cfg.Auction.IdempotencyTTL,
		BidRate:        cfg.Auction.BidRatePerSecond,
		BidBurst:       cfg.Auction.BidRateBurst,
		Checks:         checks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if cascadeWorker != nil {
		if err := cascadeWorker.Stop(); err != nil {
			logger.Error("Failed to stop cascade worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func newPublisher(cfg *config.Config) (broker.Publisher, error) {
	switch cfg.Auction.EventBroker {
	case "kafka":
		return broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAuctionEvents), nil
	case "nats":
		p, err := broker.NewJetStreamPublisher(context.Background(), cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "none", "":
		return broker.NopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown event broker %q", cfg.Auction.EventBroker)
}
