package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	"github.com/angelmondragon/orderflow-backend/api/routes"
	"github.com/angelmondragon/orderflow-backend/internal/catalog"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/delivery/fleet"
	"github.com/angelmondragon/orderflow-backend/internal/delivery/shadowfax"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/settlement"
	internalwebhooks "github.com/angelmondragon/orderflow-backend/internal/webhooks"
	deliverywebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/delivery"
	stripewebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/instance"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
	"github.com/angelmondragon/orderflow-backend/pkg/tracing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.App, "api")
	requireResource(ctx, logg, "tracing", err)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down tracing", err)
		}
	}()

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
	policy := retry.FromConfig(cfg.Retry)

	engineCfg, err := orders.ConfigFrom(cfg.Orders)
	requireResource(ctx, logg, "orders config", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	engine, err := orders.NewEngine(ordersRepo, dbClient, outboxService, logg, orderMetrics, engineCfg)
	requireResource(ctx, logg, "transition engine", err)

	ordersService, err := orders.NewService(ordersRepo, engineCfg)
	requireResource(ctx, logg, "orders service", err)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	gateway, err := payments.NewStripeGateway(stripeClient, policy)
	requireResource(ctx, logg, "payment gateway", err)

	providers, err := deliveryProviders(ctx, cfg, logg, pubsubClient)
	requireResource(ctx, logg, "delivery providers", err)

	dispatcher, err := delivery.NewDispatcher(delivery.DispatcherParams{
		Registry: providers,
		Engine:   engine,
		Vendors:  catalogRepo,
		Policy:   policy,
		Logger:   logg,
		Metrics:  orderMetrics,
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

	dedupe, err := internalwebhooks.NewDedupeGuard(redisClient, cfg.Eventing.WebhookDedupeTTL)
	requireResource(ctx, logg, "webhook dedupe guard", err)

	deliveryHooks, err := deliverywebhook.NewService(deliverywebhook.ServiceParams{
		Providers: providers,
		Orders:    ordersRepo,
		Engine:    engine,
		Guard:     dedupe,
		Policy:    policy,
		Logger:    logg,
		Metrics:   orderMetrics,
	})
	requireResource(ctx, logg, "delivery webhook service", err)

	stripeHooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Checkout: checkoutService,
		Sessions: sessions,
		Engine:   engine,
		Logger:   logg,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Pingers: map[string]controllers.Pinger{
			"db":     dbClient,
			"redis":  redisClient,
			"pubsub": pubsubClient,
		},
		Gatherer:       prometheus.DefaultGatherer,
		Redis:          redisClient,
		Engine:         engine,
		Orders:         ordersService,
		Checkout:       checkoutService,
		Settlement:     settlementService,
		DeliveryHooks:  deliveryHooks,
		StripeHooks:    stripeHooks,
		StripeVerifier: stripeClient,
		StripeDedupe:   dedupe,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}

	// in-flight dispatches and refunds finish before connections close
	dispatcher.Wait()
	logg.Info(ctx, "api server shutting down gracefully")
}

// deliveryProviders registers the fleet adapter and, when a token is
// configured, the Shadowfax client.
func deliveryProviders(ctx context.Context, cfg *config.Config, logg *logger.Logger, pubsubClient *pubsub.Client) (*delivery.Registry, error) {
	fleetProvider, err := fleet.New(pubsubClient.FleetDispatchPublisher())
	if err != nil {
		return nil, err
	}
	providers := []delivery.Provider{fleetProvider}

	if cfg.Delivery.ShadowfaxToken == "" {
		logg.Warn(ctx, "shadowfax token not configured, provider disabled")
	} else {
		sfx, err := shadowfax.NewFromConfig(cfg.Delivery)
		if err != nil {
			return nil, err
		}
		providers = append(providers, sfx)
	}
	return delivery.NewRegistry(providers...)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
