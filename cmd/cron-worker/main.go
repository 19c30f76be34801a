package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/cron"
	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/delivery/fleet"
	"github.com/angelmondragon/orderflow-backend/internal/delivery/shadowfax"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/settlement"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe", err)

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	policy := retry.FromConfig(cfg.Retry)

	engineCfg, err := orders.ConfigFrom(cfg.Orders)
	requireResource(ctx, logg, "orders config", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	engine, err := orders.NewEngine(ordersRepo, dbClient, outbox.NewService(outboxRepo, logg), logg, orderMetrics, engineCfg)
	requireResource(ctx, logg, "transition engine", err)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	gateway, err := payments.NewStripeGateway(stripeClient, policy)
	requireResource(ctx, logg, "payment gateway", err)

	fleetProvider, err := fleet.New(pubsubClient.FleetDispatchPublisher())
	requireResource(ctx, logg, "fleet provider", err)
	providerList := []delivery.Provider{fleetProvider}
	if cfg.Delivery.ShadowfaxToken != "" {
		sfx, err := shadowfax.NewFromConfig(cfg.Delivery)
		requireResource(ctx, logg, "shadowfax provider", err)
		providerList = append(providerList, sfx)
	}
	providers, err := delivery.NewRegistry(providerList...)
	requireResource(ctx, logg, "delivery providers", err)

	// jobs run one at a time under a lock, so after-commit work stays inline
	dispatcher, err := delivery.NewDispatcher(delivery.DispatcherParams{
		Registry: providers,
		Engine:   engine,
		Vendors:  catalogRepo,
		Policy:   policy,
		Logger:   logg,
		Metrics:  orderMetrics,
		Sync:     true,
	})
	requireResource(ctx, logg, "delivery dispatcher", err)

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Engine:  engine,
		Reasons: catalogRepo,
		Gateway: gateway,
		Logger:  logg,
	})
	requireResource(ctx, logg, "settlement service", err)

	engine.OnCommit(dispatcher)
	engine.OnCommit(settlementService)

	pricing, err := checkout.PricingFrom(cfg.Orders)
	requireResource(ctx, logg, "order pricing", err)

	sessions := checkout.NewRepository(dbClient.DB())
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Cart:       catalogRepo,
		Vendors:    catalogRepo,
		Sessions:   sessions,
		Orders:     ordersRepo,
		Placer:     engine,
		Gateway:    gateway,
		Pricing:    pricing,
		Delivery:   cfg.Delivery,
		SessionTTL: cfg.Orders.PaymentSessionTTL,
		Logger:     logg,
	})
	requireResource(ctx, logg, "checkout service", err)

	registry := cron.NewRegistry()

	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:   logg,
		Sessions: sessions,
		Checkout: checkoutService,
		MinAge:   cfg.Cron.PaymentReconcileAge,
		Batch:    cfg.Cron.PaymentBatch,
	})
	requireResource(ctx, logg, "payment reconcile job", err)
	registry.Register(reconcileJob, cfg.Cron.Interval)

	dispatchJob, err := cron.NewDispatchRetryJob(cron.DispatchRetryJobParams{
		Logger:     logg,
		Orders:     ordersRepo,
		Dispatcher: dispatcher,
		Engine:     engine,
		MaxTries:   cfg.Delivery.MaxDispatchTries,
		Batch:      cfg.Cron.DispatchRetryBatch,
		StaleAfter: cfg.Cron.DispatchStaleAfter,
	})
	requireResource(ctx, logg, "dispatch retry job", err)
	registry.Register(dispatchJob, cfg.Cron.Interval)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		Retention:   cfg.Cron.OutboxRetention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Batch:       cfg.Cron.RetentionBatch,
	})
	requireResource(ctx, logg, "outbox retention job", err)
	registry.Register(retentionJob, cfg.Cron.RetentionEvery)

	locker, err := cron.NewRedisLocker(redisClient, cfg.Cron.LockTTL)
	requireResource(ctx, logg, "cron locker", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Locker:     locker,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL * 9 / 10,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	dispatcher.Wait()
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
