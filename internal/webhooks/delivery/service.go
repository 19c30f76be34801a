// Package deliverywebhook ingests delivery partner callbacks: it normalizes
// them through the provider adapter, dedupes redeliveries, correlates them to
// an order and hands them to the transition engine.
package deliverywebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	"github.com/angelmondragon/orderflow-backend/pkg/tracing"
)

// Outcome is how a callback was handled. Every outcome is acknowledged.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDropped      Outcome = "dropped"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeUnknownOrder Outcome = "unknown_order"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFailed       Outcome = "failed"
)

type providerResolver interface {
	Get(service enums.DeliveryService) (delivery.Provider, error)
}

type orderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByDeliveryOrderID(ctx context.Context, service enums.DeliveryService, deliveryOrderID string) (*models.Order, error)
}

type transitionApplier interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type dedupeGuard interface {
	CheckAndMark(ctx context.Context, provider, eventKey string) (bool, error)
	Release(ctx context.Context, provider, eventKey string) error
}

type ServiceParams struct {
	Providers providerResolver
	Orders    orderLookup
	Engine    transitionApplier
	Guard     dedupeGuard
	Policy    retry.Policy
	Logger    *logger.Logger
	Metrics   *metrics.OrderMetrics
}

type Service struct {
	providers providerResolver
	orders    orderLookup
	engine    transitionApplier
	guard     dedupeGuard
	policy    retry.Policy
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
}

// Result reports what happened to a single callback.
type Result struct {
	Outcome    Outcome
	OrderID    uuid.UUID
	DropReason string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Providers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider registry required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transition engine required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		providers: params.Providers,
		orders:    params.Orders,
		engine:    params.Engine,
		guard:     params.Guard,
		policy:    params.Policy,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// Ingest processes one partner callback. It never fails the caller: anomalies
// are logged and reported through the Result.
func (s *Service) Ingest(ctx context.Context, providerName string, kind delivery.EventKind, body []byte) Result {
	ctx = s.logg.WithProvider(ctx, providerName)
	ctx = s.logg.WithField(ctx, "callback_kind", string(kind))

	ctx, span := tracing.Tracer().Start(ctx, "webhooks.delivery.ingest", trace.WithAttributes(
		attribute.String("delivery.provider", providerName),
		attribute.String("delivery.callback_kind", string(kind)),
	))
	defer span.End()

	res := s.ingest(ctx, providerName, kind, body)
	span.SetAttributes(attribute.String("delivery.outcome", string(res.Outcome)))
	s.metrics.IncWebhook(providerName, string(res.Outcome))
	return res
}

func (s *Service) ingest(ctx context.Context, providerName string, kind delivery.EventKind, body []byte) Result {
	service, err := enums.ParseDeliveryService(providerName)
	if err != nil {
		s.logg.Warn(ctx, "delivery callback for unknown provider")
		return Result{Outcome: OutcomeInvalid}
	}
	provider, err := s.providers.Get(service)
	if err != nil {
		s.logg.Warn(ctx, "delivery callback for unconfigured provider")
		return Result{Outcome: OutcomeInvalid}
	}

	evt, err := provider.NormalizeEvent(ctx, kind, body)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "delivery callback rejected by adapter")
		return Result{Outcome: OutcomeInvalid}
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"delivery_order_id": evt.DeliveryOrderID,
		"reported_status":   string(evt.ReportedStatus),
	})

	key := evt.DedupeKey()
	dup, err := s.guard.CheckAndMark(ctx, string(service), key)
	if err != nil {
		// Without the guard the engine's monotonic checks still reject replays.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook dedupe unavailable")
	} else if dup {
		s.logg.Info(ctx, "duplicate delivery callback ignored")
		return Result{Outcome: OutcomeDuplicate}
	}

	order, err := s.correlate(ctx, service, evt)
	if err != nil {
		s.release(ctx, service, key)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "delivery callback has unknown correlation")
			return Result{Outcome: OutcomeUnknownOrder}
		}
		s.logg.Error(ctx, "delivery callback correlation failed", err)
		return Result{Outcome: OutcomeFailed}
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if evt.DeliveryOrderID == "" && order.DeliveryOrderID != nil {
		evt.DeliveryOrderID = *order.DeliveryOrderID
	}

	var applied *orders.Result
	_, err = s.policy.Do(ctx, func(ctx context.Context) error {
		r, err := s.engine.Apply(ctx, orders.Command{
			OrderID: order.ID,
			Actor:   enums.ActorSystem,
			Action:  enums.ActionDeliverEvent,
			Payload: *evt,
		})
		if err != nil {
			if isTransient(err) {
				return err
			}
			return retry.Permanent(err)
		}
		applied = r
		return nil
	})
	if err != nil {
		if isTransient(err) {
			s.release(ctx, service, key)
			s.logg.Error(ctx, "delivery callback could not be applied", err)
			return Result{Outcome: OutcomeFailed, OrderID: order.ID}
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "delivery callback rejected by engine")
		return Result{Outcome: OutcomeRejected, OrderID: order.ID}
	}

	if !applied.Applied() {
		s.logg.Info(s.logg.WithField(ctx, "drop_reason", applied.DropReason), "delivery callback dropped")
		return Result{Outcome: OutcomeDropped, OrderID: order.ID, DropReason: applied.DropReason}
	}
	return Result{Outcome: OutcomeApplied, OrderID: order.ID}
}

// correlate finds the order by the provider's job id, falling back to the
// client order id the provider echoes back.
func (s *Service) correlate(ctx context.Context, service enums.DeliveryService, evt *orders.DeliveryStatusEvent) (*models.Order, error) {
	if ref := strings.TrimSpace(evt.DeliveryOrderID); ref != "" {
		order, err := s.orders.FindByDeliveryOrderID(ctx, service, ref)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by delivery order id")
		}
	}

	clientID, err := uuid.Parse(strings.TrimSpace(evt.ClientOrderID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for delivery callback")
	}
	order, err := s.orders.FindByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for delivery callback")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by client order id")
	}
	if order.DeliveryService != service {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order is served by another provider")
	}
	// A callback for a superseded booking must not touch the order.
	if order.DeliveryOrderID != nil && evt.DeliveryOrderID != "" && *order.DeliveryOrderID != evt.DeliveryOrderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "callback references a different booking")
	}
	return order, nil
}

func (s *Service) release(ctx context.Context, service enums.DeliveryService, key string) {
	if err := s.guard.Release(ctx, string(service), key); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release webhook dedupe key failed")
	}
}

func isTransient(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	switch typed.Code() {
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal, pkgerrors.CodeConcurrentModification:
		return true
	}
	return false
}
