package orders

import (
	"time"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type guardKey struct {
	action enums.TransitionAction
	actor  enums.Actor
}

// guardEnv is what a predicate may look at besides the order row.
type guardEnv struct {
	now          time.Time
	refundWindow time.Duration
}

type guardRule struct {
	action      enums.TransitionAction
	actor       enums.Actor
	description string
	allow       func(o *models.Order, env guardEnv) bool
}

// guardTable whitelists every (action, actor) pair. A pair missing from the
// table, or a predicate returning false, is an invalid transition.
var guardTable = []guardRule{
	{enums.ActionAccept, enums.ActorVendor, "order placed and acceptance pending", awaitingDecision},
	{enums.ActionAccept, enums.ActorAdmin, "order placed and acceptance pending", awaitingDecision},
	{enums.ActionReject, enums.ActorVendor, "order placed and acceptance pending", awaitingDecision},
	{enums.ActionReject, enums.ActorAdmin, "order placed and acceptance pending", awaitingDecision},

	{enums.ActionMarkReady, enums.ActorVendor, "order accepted and not yet ready", readyable},
	{enums.ActionMarkReady, enums.ActorAdmin, "order accepted and not yet ready", readyable},

	{enums.ActionCancel, enums.ActorCustomer, "delivery not yet dispatched", func(o *models.Order, _ guardEnv) bool {
		return live(o) && beforeDispatch(o)
	}},
	{enums.ActionCancel, enums.ActorVendor, "acceptance pending or delivery not yet dispatched", func(o *models.Order, _ guardEnv) bool {
		return live(o) && (o.AcceptanceStatus == enums.AcceptanceStatusPending || beforeDispatch(o))
	}},
	{enums.ActionCancel, enums.ActorAdmin, "order not terminal", func(o *models.Order, _ guardEnv) bool {
		return live(o)
	}},
	{enums.ActionCancel, enums.ActorSystem, "delivery not yet dispatched", func(o *models.Order, _ guardEnv) bool {
		return live(o) && beforeDispatch(o)
	}},

	{enums.ActionSettleRefund, enums.ActorAdmin, "order terminal and refund pending", func(o *models.Order, _ guardEnv) bool {
		return o.OrderStatus.IsTerminal() && o.RefundStatus.IsOpen()
	}},
	{enums.ActionMarkForRefund, enums.ActorAdmin, "order completed, no refund, within eligibility window", func(o *models.Order, env guardEnv) bool {
		if o.OrderStatus != enums.OrderStatusCompleted || o.RefundStatus != enums.RefundStatusNone {
			return false
		}
		return withinRefundWindow(o, env)
	}},

	{enums.ActionRate, enums.ActorCustomer, "order completed and not yet rated", func(o *models.Order, _ guardEnv) bool {
		return o.OrderStatus == enums.OrderStatusCompleted && o.CustomerRating == nil
	}},

	// Provider and gateway events are ranked inside the transition itself;
	// stale or conflicting ones are dropped and audited rather than rejected.
	{enums.ActionDeliverEvent, enums.ActorSystem, "any order", always},
	{enums.ActionPaymentEvent, enums.ActorSystem, "any order", always},
	{enums.ActionRecordDispatch, enums.ActorSystem, "any order", always},
}

var guardIndex = func() map[guardKey]guardRule {
	index := make(map[guardKey]guardRule, len(guardTable))
	for _, rule := range guardTable {
		index[guardKey{rule.action, rule.actor}] = rule
	}
	return index
}()

func lookupGuard(action enums.TransitionAction, actor enums.Actor) (guardRule, bool) {
	rule, ok := guardIndex[guardKey{action, actor}]
	return rule, ok
}

// allowedActions lists what actor may currently do to the order.
func allowedActions(o *models.Order, actor enums.Actor, env guardEnv) []enums.TransitionAction {
	var out []enums.TransitionAction
	for _, rule := range guardTable {
		if rule.actor == actor && rule.allow(o, env) {
			out = append(out, rule.action)
		}
	}
	return out
}

func always(*models.Order, guardEnv) bool { return true }

func live(o *models.Order) bool {
	return o.OrderStatus == enums.OrderStatusPlaced
}

func beforeDispatch(o *models.Order) bool {
	return o.DeliveryStatus.Before(enums.DeliveryStatusDispatched)
}

func awaitingDecision(o *models.Order, _ guardEnv) bool {
	return live(o) && o.AcceptanceStatus == enums.AcceptanceStatusPending
}

func readyable(o *models.Order, _ guardEnv) bool {
	return live(o) && o.AcceptanceStatus == enums.AcceptanceStatusAccepted && o.ReadyAt == nil
}

func withinRefundWindow(o *models.Order, env guardEnv) bool {
	anchor := o.DeliveredAt
	if anchor == nil {
		anchor = o.CompletedAt
	}
	if anchor == nil {
		return false
	}
	if env.refundWindow <= 0 {
		return true
	}
	return !env.now.After(anchor.Add(env.refundWindow))
}
