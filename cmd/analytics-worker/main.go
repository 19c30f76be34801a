package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/worker"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/writer"
	"github.com/angelmondragon/orderflow-backend/pkg/bigquery"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	"github.com/angelmondragon/orderflow-backend/pkg/tracing"
)

const serviceKind = "analytics-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

// run wires the worker and blocks until ctx is cancelled. Resources are
// closed in reverse order of creation.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.App, serviceKind)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	closers = append(closers, func() error { return shutdownTracing(context.Background()) })

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	closers = append(closers, redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	closers = append(closers, pubsubClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, types.LifecycleTable(cfg.BigQuery.OrderLifecycleTable))
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	closers = append(closers, bqClient.Close)

	ledger, err := idempotency.NewLedger(redisClient, worker.ConsumerName, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency ledger: %w", err)
	}
	rows, err := writer.New(bqClient, writer.Config{
		Table:       cfg.BigQuery.OrderLifecycleTable,
		BatchSize:   cfg.BigQuery.InsertBatchSize,
		RetryPolicy: retry.FromConfig(cfg.Retry),
	})
	if err != nil {
		return fmt.Errorf("lifecycle writer: %w", err)
	}
	handler, err := router.NewRouter(rows, logg)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(subscription, handler, ledger, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	if cfg.BigQuery.InsertBatchSize > 1 {
		go flushPeriodically(ctx, logg, rows, cfg.BigQuery.FlushInterval)
	}

	logg.Info(ctx, "analytics worker ready")
	runErr := service.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rows.Flush(flushCtx); err != nil {
		logg.Error(logg.WithField(ctx, "pending_rows", rows.Pending()), "final lifecycle flush failed", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// flushPeriodically pushes out partial batches so quiet periods do not hold
// rows back indefinitely.
func flushPeriodically(ctx context.Context, logg *logger.Logger, rows *writer.BigQueryWriter, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rows.Flush(ctx); err != nil && ctx.Err() == nil {
				logg.Error(logg.WithField(ctx, "pending_rows", rows.Pending()), "periodic lifecycle flush failed", err)
			}
		}
	}
}
