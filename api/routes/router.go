package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/settlement"
	deliverywebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/delivery"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// RedisStore backs idempotent replays and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type TransitionEngine interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type SettlementService interface {
	RequestCancellation(ctx context.Context, req settlement.CancelRequest) (*models.Order, error)
	SettleRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID, split settlement.Split) (*models.Order, error)
	MarkForRefund(ctx context.Context, orderID uuid.UUID, adminID *uuid.UUID) (*models.Order, error)
}

type DeliveryWebhookService interface {
	Ingest(ctx context.Context, providerName string, kind delivery.EventKind, body []byte) deliverywebhook.Result
}

type StripeVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, provider, eventKey string) (bool, error)
	Release(ctx context.Context, provider, eventKey string) error
}

// Dependencies carries everything the HTTP surface dispatches to. Nil
// services surface as internal errors on their routes rather than panics.
type Dependencies struct {
	Pingers        map[string]controllers.Pinger
	Gatherer       prometheus.Gatherer
	Redis          RedisStore
	Engine         TransitionEngine
	Orders         orders.Service
	Checkout       checkout.Service
	Settlement     SettlementService
	DeliveryHooks  DeliveryWebhookService
	StripeHooks    webhookcontrollers.StripeWebhookService
	StripeVerifier StripeVerifier
	StripeDedupe   WebhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutIPLimit, cfg.RateLimit.CheckoutUser)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, deps.Redis, logg))
		r.Post("/delivery/{provider}/status", webhookcontrollers.DeliveryStatus(deps.DeliveryHooks, logg))
		r.Post("/delivery/{provider}/location", webhookcontrollers.DeliveryLocation(deps.DeliveryHooks, logg))
		r.Post("/payment/stripe", webhookcontrollers.StripeWebhook(deps.StripeHooks, deps.StripeVerifier, deps.StripeDedupe, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(middleware.RequireRole(logg, enums.ActorCustomer, enums.ActorVendor, enums.ActorAdmin)).
			Get("/order/{orderId}", ordercontrollers.Detail(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorCustomer))
			r.With(
				middleware.RateLimit(checkoutPolicy, deps.Redis, logg),
				middleware.Idempotency(deps.Redis, middleware.OrderIdempotencyTTL, logg),
			).Post("/order/place_order", ordercontrollers.PlaceOrder(deps.Checkout, deps.Orders, logg))
			r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).
				Post("/order/confirm_payment/{paymentId}", ordercontrollers.ConfirmPayment(deps.Checkout, deps.Orders, logg))
			r.Post("/order/{orderId}/cancel", ordercontrollers.CustomerCancel(deps.Settlement, deps.Orders, logg))
			r.Post("/order/{orderId}/rate", ordercontrollers.Rate(deps.Engine, deps.Orders, logg))
		})

		r.Route("/vendor/order/{orderId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorVendor))
			r.Post("/accept", ordercontrollers.VendorDecision(deps.Engine, deps.Orders, logg))
			r.Post("/ready", ordercontrollers.VendorReady(deps.Engine, deps.Orders, logg))
			r.Post("/cancel", ordercontrollers.VendorCancel(deps.Settlement, deps.Orders, logg))
		})

		r.Route("/admin/order/{orderId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorAdmin))
			r.Post("/cancel", ordercontrollers.AdminCancel(deps.Settlement, deps.Orders, logg))
			r.With(middleware.Idempotency(deps.Redis, middleware.OrderIdempotencyTTL, logg)).
				Post("/settle_refund", ordercontrollers.SettleRefund(deps.Settlement, deps.Orders, logg))
			r.With(middleware.Idempotency(deps.Redis, middleware.DefaultIdempotencyTTL, logg)).
				Post("/mark_for_refund", ordercontrollers.MarkForRefund(deps.Settlement, deps.Orders, logg))
			r.Get("/events", ordercontrollers.History(deps.Orders, logg))
		})
	})

	return r
}
