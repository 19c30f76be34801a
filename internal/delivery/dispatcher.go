package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
	"github.com/angelmondragon/orderflow-backend/pkg/tracing"
)

const maxRecordedErrorLen = 500

type transitionApplier interface {
	Apply(ctx context.Context, cmd orders.Command) (*orders.Result, error)
}

type vendorReader interface {
	FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

// DispatcherParams wires the dispatcher.
type DispatcherParams struct {
	Registry *Registry
	Engine   transitionApplier
	Vendors  vendorReader
	Policy   retry.Policy
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
	// Sync runs after-commit work inline instead of on a goroutine.
	Sync bool
}

// Dispatcher hands committed orders to their delivery provider and cancels
// provider bookings for orders that no longer need them.
type Dispatcher struct {
	registry *Registry
	engine   transitionApplier
	vendors  vendorReader
	policy   retry.Policy
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics
	sync     bool
	wg       sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if params.Engine == nil {
		return nil, errors.New("transition engine is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Dispatcher{
		registry: params.Registry,
		engine:   params.Engine,
		vendors:  params.Vendors,
		policy:   params.Policy,
		logg:     params.Logger,
		metrics:  params.Metrics,
		sync:     params.Sync,
	}, nil
}

// Dispatch books the order with its provider, retrying transient failures,
// and records the outcome through a record_dispatch transition.
func (d *Dispatcher) Dispatch(ctx context.Context, order *models.Order) (*orders.Result, error) {
	if order == nil {
		return nil, errors.New("order is required")
	}
	provider, err := d.registry.Get(order.DeliveryService)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "delivery.dispatch", trace.WithAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("delivery.provider", string(provider.Service())),
	))
	defer span.End()

	ctx = d.logg.WithOrderID(ctx, order.ID.String())
	ctx = d.logg.WithProvider(ctx, string(provider.Service()))

	req := DispatchRequest{Order: order}
	if d.vendors != nil {
		vendor, err := d.vendors.FindVendor(ctx, order.VendorID)
		if err != nil {
			d.logg.Warn(ctx, "vendor lookup failed, dispatching without pickup details")
		} else {
			req.Vendor = vendor
		}
	}

	var receipt *DispatchReceipt
	attempts, dispatchErr := d.policy.Do(ctx, func(ctx context.Context) error {
		r, err := provider.DispatchOrder(ctx, req)
		if err != nil {
			return err
		}
		if r == nil || strings.TrimSpace(r.DeliveryOrderID) == "" {
			return retry.Permanent(errors.New("provider returned no delivery order id"))
		}
		receipt = r
		return nil
	})

	payload := orders.RecordDispatchPayload{Attempts: attempts}
	if dispatchErr != nil {
		span.RecordError(dispatchErr)
		span.SetStatus(codes.Error, dispatchErr.Error())
		d.metrics.IncDispatch(string(provider.Service()), "failed")
		d.logg.Error(d.logg.WithField(ctx, "attempts", attempts), "dispatch to delivery provider failed", dispatchErr)
		payload.Failed = true
		payload.Error = truncate(dispatchErr.Error(), maxRecordedErrorLen)
	} else {
		d.metrics.IncDispatch(string(provider.Service()), "dispatched")
		payload.DeliveryOrderID = receipt.DeliveryOrderID
	}

	res, err := d.engine.Apply(ctx, orders.Command{
		OrderID: order.ID,
		Actor:   enums.ActorSystem,
		Action:  enums.ActionRecordDispatch,
		Payload: payload,
	})
	if err != nil {
		d.logg.Error(ctx, "recording dispatch outcome failed", err)
		return nil, err
	}
	return res, nil
}

// CancelAtProvider cancels the provider booking for the order, if any.
func (d *Dispatcher) CancelAtProvider(ctx context.Context, order *models.Order, reason string) error {
	if order == nil || order.DeliveryOrderID == nil || *order.DeliveryOrderID == "" {
		return nil
	}
	provider, err := d.registry.Get(order.DeliveryService)
	if err != nil {
		return err
	}

	ctx, span := tracing.Tracer().Start(ctx, "delivery.cancel_at_provider", trace.WithAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("delivery.provider", string(provider.Service())),
		attribute.String("delivery.order_id", *order.DeliveryOrderID),
	))
	defer span.End()

	ctx = d.logg.WithOrderID(ctx, order.ID.String())
	ctx = d.logg.WithProvider(ctx, string(provider.Service()))

	attempts, err := d.policy.Do(ctx, func(ctx context.Context) error {
		return provider.CancelAtProvider(ctx, order, reason)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.IncDispatch(string(provider.Service()), "cancel_failed")
		d.logg.Error(d.logg.WithField(ctx, "attempts", attempts), "cancel at delivery provider failed", err)
		return err
	}
	d.metrics.IncDispatch(string(provider.Service()), "cancelled")
	d.logg.Info(ctx, "delivery booking cancelled at provider")
	return nil
}

// AfterCommit dispatches freshly placed orders and releases provider bookings
// of orders that were cancelled or rejected after dispatch.
func (d *Dispatcher) AfterCommit(ctx context.Context, res *orders.Result) {
	if res == nil || res.Order == nil || !res.Applied() {
		return
	}
	order := res.Order
	switch {
	case res.Action == enums.ActionPlace:
		d.run(ctx, func(ctx context.Context) {
			_, _ = d.Dispatch(ctx, order)
		})
	case res.CompensateDispatch:
		d.run(ctx, func(ctx context.Context) {
			_ = d.CancelAtProvider(ctx, order, "order cancelled before dispatch completed")
		})
	case cancelledByUs(res):
		reason := "order cancelled"
		if order.CancellationReason != nil && *order.CancellationReason != "" {
			reason = *order.CancellationReason
		} else if order.RejectionReason != nil && *order.RejectionReason != "" {
			reason = *order.RejectionReason
		}
		d.run(ctx, func(ctx context.Context) {
			_ = d.CancelAtProvider(ctx, order, reason)
		})
	}
}

// Wait blocks until background dispatch work has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, fn func(ctx context.Context)) {
	if d.sync {
		fn(ctx)
		return
	}
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(detached)
	}()
}

func cancelledByUs(res *orders.Result) bool {
	o := res.Order
	return res.Previous.OrderStatus != enums.OrderStatusCancelled &&
		o.OrderStatus == enums.OrderStatusCancelled &&
		o.CancelledBy != enums.CancelledByDeliveryPartner &&
		o.DeliveryOrderID != nil && *o.DeliveryOrderID != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
