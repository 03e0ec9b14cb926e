package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evtrade/auctioncore/internal/auctions"
	"github.com/evtrade/auctioncore/internal/notifications"
	"github.com/evtrade/auctioncore/internal/ops"
	"github.com/evtrade/auctioncore/internal/scheduler"
	"github.com/evtrade/auctioncore/internal/settlement"
	"github.com/evtrade/auctioncore/internal/wallet"
	"github.com/evtrade/auctioncore/pkg/config"
	"github.com/evtrade/auctioncore/pkg/db"
	"github.com/evtrade/auctioncore/pkg/logger"
	"github.com/evtrade/auctioncore/pkg/metrics"
	"github.com/evtrade/auctioncore/pkg/migrate"
	"github.com/evtrade/auctioncore/pkg/outbox"
	"github.com/evtrade/auctioncore/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "scheduler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "scheduler"

	logg = logger.New(logger.Options{
		ServiceName: "scheduler",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	auctionRepo := auctions.NewRepository(dbClient.DB())
	walletService, err := wallet.NewService(dbClient, wallet.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(), logg)
	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:         dbClient,
		Repo:       auctionRepo,
		Ledger:     walletService,
		Outbox:     outboxService,
		Notifier:   notificationService,
		Commission: settlement.NewBpsCalculator(cfg.Auction.CommissionBps),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	promoteJob, err := scheduler.NewPromoteJob(scheduler.PromoteJobParams{
		Logger: logg,
		Repo:   auctionRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create promote job", err)
		os.Exit(1)
	}
	finalizeJob, err := scheduler.NewFinalizeJob(scheduler.FinalizeJobParams{
		Logger:     logg,
		Repo:       auctionRepo,
		Settlement: settlementService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create finalize job", err)
		os.Exit(1)
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := scheduler.NewRedisLock(redisClient, redis.LockKey("scheduler", env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: scheduler.NewRegistry(promoteJob, finalizeJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Auction.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler service", err)
		os.Exit(1)
	}

	opsServer, err := ops.NewServer(ops.ServerParams{
		Logger:  logg,
		Port:    cfg.Ops.Port,
		Service: "scheduler",
		Readiness: map[string]ops.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ops server", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting scheduler")

	go func() {
		if err := opsServer.Run(ctx); err != nil {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "scheduler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "scheduler shutting down gracefully")
}
