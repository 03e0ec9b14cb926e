package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evtrade/auctioncore/internal/auctions"
	"github.com/evtrade/auctioncore/internal/notifications"
	"github.com/evtrade/auctioncore/internal/ops"
	"github.com/evtrade/auctioncore/internal/release"
	"github.com/evtrade/auctioncore/internal/wallet"
	"github.com/evtrade/auctioncore/pkg/config"
	"github.com/evtrade/auctioncore/pkg/db"
	"github.com/evtrade/auctioncore/pkg/logger"
	"github.com/evtrade/auctioncore/pkg/metrics"
	"github.com/evtrade/auctioncore/pkg/migrate"
	"github.com/evtrade/auctioncore/pkg/outbox"
	"github.com/evtrade/auctioncore/pkg/outbox/idempotency"
	"github.com/evtrade/auctioncore/pkg/pubsub"
	"github.com/evtrade/auctioncore/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "release-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "release-worker"

	logg = logger.New(logger.Options{
		ServiceName: "release-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	subscription := pubsubClient.ReleaseFundsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "release funds subscription", errors.New("subscription not configured"))
	}
	// One in-flight message keeps hold releases strictly sequential.
	prefetch := cfg.Auction.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	subscription.ReceiveSettings.MaxOutstandingMessages = prefetch
	subscription.ReceiveSettings.NumGoroutines = 1

	walletService, err := wallet.NewService(dbClient, wallet.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "wallet service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), logg)
	requireResource(ctx, logg, "notification service", err)

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Auction.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := release.NewConsumer(release.ConsumerParams{
		Subscription:    subscription,
		DB:              dbClient,
		Ledger:          walletService,
		Bids:            auctions.NewRepository(dbClient.DB()),
		DLQ:             outbox.NewDLQRepository(dbClient.DB()),
		Idempotency:     idempotencyManager,
		Redeliveries:    redisClient,
		Notifier:        notificationService,
		Metrics:         metrics.NewConsumerMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		MaxRedeliveries: cfg.Auction.MaxRedeliveries,
		NackDelay:       cfg.Auction.NackDelay,
	})
	requireResource(ctx, logg, "release funds consumer", err)

	opsServer, err := ops.NewServer(ops.ServerParams{
		Logger:  logg,
		Port:    cfg.Ops.Port,
		Service: "release-worker",
		Readiness: map[string]ops.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
	})
	requireResource(ctx, logg, "ops server", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"env":         cfg.App.Env,
	})
	logg.Info(runCtx, "release worker ready")

	go func() {
		if err := opsServer.Run(runCtx); err != nil {
			logg.Error(runCtx, "ops server stopped unexpectedly", err)
		}
	}()

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "release worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
