package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/tracing"
)

const paymentIDConstraint = "ux_orders_payment_id"

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Config tunes the engine's lifecycle rules.
type Config struct {
	MaxAttempts     int
	RefundTolerance decimal.Decimal
	RefundWindow    time.Duration
}

// ConfigFrom reads the engine settings from the service configuration.
func ConfigFrom(cfg config.OrdersConfig) (Config, error) {
	tol, err := cfg.RefundTolerance()
	if err != nil {
		return Config{}, err
	}
	return Config{
		MaxAttempts:     cfg.TransitionMaxAttempts,
		RefundTolerance: tol,
		RefundWindow:    cfg.RefundEligibilityWindow,
	}, nil
}

// Command is one requested transition.
type Command struct {
	OrderID     uuid.UUID
	Actor       enums.Actor
	ActorUserID *uuid.UUID
	VendorID    *uuid.UUID
	Action      enums.TransitionAction
	Payload     any
}

// StatusSet is the status tuple guards are evaluated against.
type StatusSet struct {
	OrderStatus      enums.OrderStatus
	AcceptanceStatus enums.AcceptanceStatus
	DeliveryStatus   enums.DeliveryStatus
	PaymentStatus    enums.PaymentStatus
	RefundStatus     enums.RefundStatus
	DispatchStatus   enums.DispatchStatus
}

func statusesOf(o *models.Order) StatusSet {
	return StatusSet{
		OrderStatus:      o.OrderStatus,
		AcceptanceStatus: o.AcceptanceStatus,
		DeliveryStatus:   o.DeliveryStatus,
		PaymentStatus:    o.PaymentStatus,
		RefundStatus:     o.RefundStatus,
		DispatchStatus:   o.DispatchStatus,
	}
}

// Result describes what a command did to the order.
type Result struct {
	Order      *models.Order
	Previous   StatusSet
	Action     enums.TransitionAction
	Actor      enums.Actor
	Outcome    enums.OrderEventOutcome
	DropReason string
	Events     []enums.OutboxEventType
	Attempts   int

	// CompensateDispatch is set when a provider accepted an order that had
	// already been cancelled; the provider booking must be cancelled.
	CompensateDispatch bool
	// Superseded is set when a partner cancellation replaced a delivery completion.
	Superseded bool
}

// Applied reports whether the order row changed.
func (r *Result) Applied() bool {
	return r != nil && r.Outcome == enums.OrderEventOutcomeApplied
}

// Emitted reports whether the transition queued the given event.
func (r *Result) Emitted(eventType enums.OutboxEventType) bool {
	if r == nil {
		return false
	}
	for _, evt := range r.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}

// Engine applies guarded transitions to orders with optimistic concurrency.
type Engine struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
	cfg     Config
	hooks   []AfterCommitHook
	now     func() time.Time
}

// NewEngine wires the transition engine.
func NewEngine(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, m *metrics.OrderMetrics, cfg Config) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RefundTolerance.IsNegative() {
		return nil, fmt.Errorf("refund tolerance must be non-negative")
	}
	return &Engine{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		logg:    logg,
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// OnCommit registers a hook invoked after every committed command. Hooks
// must be registered before the engine starts serving.
func (e *Engine) OnCommit(hook AfterCommitHook) {
	if hook != nil {
		e.hooks = append(e.hooks, hook)
	}
}

// ApplyTransition runs one action against the order and returns the order as stored.
func (e *Engine) ApplyTransition(ctx context.Context, orderID uuid.UUID, actor enums.Actor, action enums.TransitionAction, payload any) (*models.Order, error) {
	res, err := e.Apply(ctx, Command{
		OrderID: orderID,
		Actor:   actor,
		Action:  action,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Apply evaluates the guard for cmd against a fresh read of the order and
// persists the result. Version conflicts are retried with a fresh read.
func (e *Engine) Apply(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !cmd.Actor.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid actor")
	}
	if _, ok := handlers[cmd.Action]; !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported action %q", cmd.Action)
	}

	ctx, span := tracing.Tracer().Start(ctx, "orders.apply_transition", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID.String()),
		attribute.String("order.action", string(cmd.Action)),
		attribute.String("order.actor", string(cmd.Actor)),
	))
	defer span.End()

	ctx = e.logg.WithOrderID(ctx, cmd.OrderID.String())
	ctx = e.logg.WithActor(ctx, string(cmd.Actor))
	ctx = e.logg.WithField(ctx, "action", string(cmd.Action))

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res, err = e.applyOnce(ctx, cmd)
		if err == nil {
			res.Attempts = attempt
			break
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) {
			break
		}
		e.metrics.IncConflict(string(cmd.Action))
		e.logg.Warn(e.logg.WithField(ctx, "attempt", attempt), "order version conflict, retrying")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if typed := pkgerrors.As(err); typed != nil {
			e.metrics.IncTransition(string(cmd.Action), "rejected_"+string(typed.Code()))
		} else {
			e.metrics.IncTransition(string(cmd.Action), "error")
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.outcome", string(res.Outcome)),
		attribute.Int("order.version", res.Order.Version),
	)
	e.metrics.IncTransition(string(cmd.Action), string(res.Outcome))
	if res.Applied() {
		e.logg.Info(e.logg.WithFields(ctx, map[string]any{
			"order_status":    res.Order.OrderStatus,
			"delivery_status": res.Order.DeliveryStatus,
			"refund_status":   res.Order.RefundStatus,
			"version":         res.Order.Version,
		}), "order transition applied")
	}
	e.runHooks(ctx, res)
	return res, nil
}

func (e *Engine) applyOnce(ctx context.Context, cmd Command) (*Result, error) {
	var res *Result
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if err := authorize(order, cmd); err != nil {
			return err
		}

		now := e.now()
		env := guardEnv{now: now, refundWindow: e.cfg.RefundWindow}
		rule, ok := lookupGuard(cmd.Action, cmd.Actor)
		if !ok {
			return invalidTransition(order, cmd, "actor may not perform this action")
		}
		if !rule.allow(order, env) {
			return invalidTransition(order, cmd, rule.description)
		}

		before := statusesOf(order)
		expected := order.Version
		t := &transition{order: order, cmd: cmd, now: now, cfg: e.cfg}
		if err := handlers[cmd.Action](t); err != nil {
			return err
		}

		res = &Result{
			Order:              order,
			Previous:           before,
			Action:             cmd.Action,
			Actor:              cmd.Actor,
			Events:             t.events,
			CompensateDispatch: t.compensate,
			Superseded:         t.superseded,
		}

		if t.dropReason != "" {
			res.Outcome = enums.OrderEventOutcomeDropped
			res.DropReason = t.dropReason
			res.Events = nil
			if t.skipAudit {
				return nil
			}
			if err := repo.InsertEvent(ctx, auditRow(order, before, t, enums.OrderEventOutcomeDropped)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record dropped order event")
			}
			return nil
		}

		res.Outcome = enums.OrderEventOutcomeApplied
		order.Version = expected + 1
		order.UpdatedAt = now
		updated, err := repo.UpdateWithVersion(ctx, order, expected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "order was modified concurrently")
		}
		if !t.skipAudit {
			if err := repo.InsertEvent(ctx, auditRow(order, before, t, enums.OrderEventOutcomeApplied)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order event")
			}
		}
		for _, eventType := range t.events {
			if err := e.outbox.Emit(ctx, tx, buildDomainEvent(order, cmd, t, eventType)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Place persists a new order together with its placement audit row and
// order_placed event. Online orders are keyed by payment_id; a second
// placement for the same payment returns the stored order with created=false.
func (e *Engine) Place(ctx context.Context, order *models.Order, actor *outbox.ActorRef) (*models.Order, bool, error) {
	if order == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	ctx, span := tracing.Tracer().Start(ctx, "orders.place", trace.WithAttributes(
		attribute.String("order.payment_method", string(order.PaymentMethod)),
		attribute.String("order.delivery_service", string(order.DeliveryService)),
	))
	defer span.End()

	now := e.now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderPlacedTime.IsZero() {
		order.OrderPlacedTime = now
	}
	order.OrderStatus = enums.OrderStatusPlaced
	order.AcceptanceStatus = enums.AcceptanceStatusPending
	order.DeliveryStatus = enums.DeliveryStatusPending
	order.RefundStatus = enums.RefundStatusNone
	order.CancelledBy = enums.CancelledByNone
	order.DispatchStatus = enums.DispatchStatusPending
	order.Version = 1
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}

	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return err
		}
		row := &models.OrderEvent{
			ID:                 uuid.New(),
			OrderID:            order.ID,
			Actor:              enums.Actor(actorRole(actor)),
			Action:             enums.ActionPlace,
			Outcome:            enums.OrderEventOutcomeApplied,
			FromOrderStatus:    enums.OrderStatusPlaced,
			ToOrderStatus:      enums.OrderStatusPlaced,
			FromDeliveryStatus: enums.DeliveryStatusPending,
			ToDeliveryStatus:   enums.DeliveryStatusPending,
			Version:            order.Version,
		}
		if err := repo.InsertEvent(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order event")
		}
		if err := e.outbox.Emit(ctx, tx, placedEvent(order, actor, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order event")
		}
		return nil
	})
	if err != nil {
		if order.PaymentID != nil && isPaymentIDConflict(err) {
			existing, findErr := e.repo.FindByPaymentID(ctx, *order.PaymentID)
			if findErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load order for payment")
			}
			return existing, false, nil
		}
		span.RecordError(err)
		if pkgerrors.As(err) != nil {
			return nil, false, err
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	e.metrics.IncTransition(string(enums.ActionPlace), string(enums.OrderEventOutcomeApplied))
	e.logg.Info(e.logg.WithFields(e.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"payment_method":   order.PaymentMethod,
		"delivery_service": order.DeliveryService,
		"total_amount":     order.TotalAmount.StringFixed(2),
	}), "order placed")

	e.runHooks(ctx, &Result{
		Order:    order,
		Previous: statusesOf(order),
		Action:   enums.ActionPlace,
		Actor:    enums.Actor(actorRole(actor)),
		Outcome:  enums.OrderEventOutcomeApplied,
		Events:   []enums.OutboxEventType{enums.EventOrderPlaced},
		Attempts: 1,
	})
	return order, true, nil
}

func (e *Engine) runHooks(ctx context.Context, res *Result) {
	for _, hook := range e.hooks {
		hook.AfterCommit(ctx, res)
	}
}

func isPaymentIDConflict(err error) bool {
	return db.IsUniqueViolation(err, paymentIDConstraint) || db.IsUniqueViolation(err, "orders.payment_id")
}

func actorRole(actor *outbox.ActorRef) string {
	if actor == nil || actor.Role == "" {
		return string(enums.ActorSystem)
	}
	return actor.Role
}

func authorize(o *models.Order, cmd Command) error {
	switch cmd.Actor {
	case enums.ActorCustomer:
		if cmd.ActorUserID == nil || *cmd.ActorUserID != o.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
	case enums.ActorVendor:
		if cmd.VendorID == nil || *cmd.VendorID != o.VendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to vendor")
		}
	}
	return nil
}

func invalidTransition(o *models.Order, cmd Command, requires string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("%s is not allowed for %s in the current order state", cmd.Action, cmd.Actor)).
		WithDetails(map[string]any{
			"action":                  cmd.Action,
			"actor":                   cmd.Actor,
			"requires":                requires,
			"order_status":            o.OrderStatus,
			"order_acceptance_status": o.AcceptanceStatus,
			"delivery_status":         o.DeliveryStatus,
			"refund_status":           o.RefundStatus,
		})
}

func auditRow(o *models.Order, before StatusSet, t *transition, outcome enums.OrderEventOutcome) *models.OrderEvent {
	row := &models.OrderEvent{
		ID:                 uuid.New(),
		OrderID:            o.ID,
		Actor:              t.cmd.Actor,
		Action:             t.cmd.Action,
		Outcome:            outcome,
		FromOrderStatus:    before.OrderStatus,
		ToOrderStatus:      o.OrderStatus,
		FromDeliveryStatus: before.DeliveryStatus,
		ToDeliveryStatus:   o.DeliveryStatus,
		Provider:           t.provider,
		Payload:            t.payload,
		Version:            o.Version,
	}
	if outcome == enums.OrderEventOutcomeDropped {
		reason := t.dropReason
		row.Reason = &reason
	} else if t.reason != "" {
		reason := t.reason
		row.Reason = &reason
	}
	return row
}
