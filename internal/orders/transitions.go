package orders

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Drop reasons recorded on audit rows for events that did not change the order.
const (
	DropDuplicate        = "duplicate"
	DropStale            = "stale"
	DropTerminalConflict = "terminal_conflict"
	DropStaleLocation    = "stale_location"
	DropOrderTerminal    = "order_terminal"
	DropNonFinalPayment  = "non_final_payment_result"
	DropNotCaptured      = "payment_not_captured"
	DropAlreadyHandled   = "already_dispatched"
)

// transition is the in-memory working set of one apply attempt.
type transition struct {
	order *models.Order
	cmd   Command
	now   time.Time
	cfg   Config

	events     []enums.OutboxEventType
	dropReason string
	reason     string
	provider   *string
	payload    json.RawMessage
	skipAudit  bool
	compensate bool
	superseded bool
}

func (t *transition) emit(events ...enums.OutboxEventType) {
	t.events = append(t.events, events...)
}

func (t *transition) drop(reason string) {
	t.dropReason = reason
}

type handler func(t *transition) error

var handlers = map[enums.TransitionAction]handler{
	enums.ActionAccept:         applyAccept,
	enums.ActionReject:         applyReject,
	enums.ActionMarkReady:      applyMarkReady,
	enums.ActionCancel:         applyCancel,
	enums.ActionDeliverEvent:   applyDeliverEvent,
	enums.ActionPaymentEvent:   applyPaymentEvent,
	enums.ActionSettleRefund:   applySettleRefund,
	enums.ActionMarkForRefund:  applyMarkForRefund,
	enums.ActionRate:           applyRate,
	enums.ActionRecordDispatch: applyRecordDispatch,
}

func payloadAs[T any](payload any, required bool) (T, error) {
	var zero T
	switch v := payload.(type) {
	case nil:
		if required {
			return zero, pkgerrors.New(pkgerrors.CodeValidation, "payload required")
		}
		return zero, nil
	case T:
		return v, nil
	case *T:
		if v == nil {
			if required {
				return zero, pkgerrors.New(pkgerrors.CodeValidation, "payload required")
			}
			return zero, nil
		}
		return *v, nil
	default:
		return zero, pkgerrors.Newf(pkgerrors.CodeValidation, "unexpected payload type %T", payload)
	}
}

func applyAccept(t *transition) error {
	p, err := payloadAs[AcceptPayload](t.cmd.Payload, false)
	if err != nil {
		return err
	}
	if p.PreparationTimeMinutes != nil && *p.PreparationTimeMinutes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "preparation time must be positive")
	}
	o := t.order
	o.AcceptanceStatus = enums.AcceptanceStatusAccepted
	o.AcceptedAt = &t.now
	o.PreparationTimeMinutes = p.PreparationTimeMinutes
	t.emit(enums.EventOrderAccepted)
	return nil
}

func applyReject(t *transition) error {
	p, err := payloadAs[RejectPayload](t.cmd.Payload, false)
	if err != nil {
		return err
	}
	o := t.order
	o.AcceptanceStatus = enums.AcceptanceStatusRejected
	o.RejectedAt = &t.now
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		o.RejectionReason = &reason
		t.reason = reason
	}
	t.emit(enums.EventOrderRejected)
	t.cancelOrder(t.cmd.Actor.CancelledBy())
	return nil
}

func applyMarkReady(t *transition) error {
	t.order.ReadyAt = &t.now
	t.emit(enums.EventOrderReady)
	return nil
}

func applyCancel(t *transition) error {
	p, err := payloadAs[CancelPayload](t.cmd.Payload, false)
	if err != nil {
		return err
	}
	o := t.order
	if p.ReasonID != nil {
		id := *p.ReasonID
		o.CancellationReasonID = &id
	}
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		o.CancellationReason = &reason
		t.reason = reason
	}
	t.cancelOrder(t.cmd.Actor.CancelledBy())
	return nil
}

// cancelOrder moves the order to its cancelled terminal state and opens a
// refund when the customer was charged.
func (t *transition) cancelOrder(by enums.CancelledBy) {
	o := t.order
	o.OrderStatus = enums.OrderStatusCancelled
	o.CancelledBy = by
	o.CancelledAt = &t.now
	o.DeliveryStatus = enums.DeliveryStatusCancelled
	t.emit(enums.EventOrderCancelled)
	t.openRefund()
}

func (t *transition) openRefund() {
	o := t.order
	if !o.PaymentCaptured() || o.RefundStatus != enums.RefundStatusNone {
		return
	}
	o.RefundStatus = enums.RefundStatusPending
	o.MarkedForRefundAt = &t.now
	t.emit(enums.EventOrderRefundPending)
}

func applyDeliverEvent(t *transition) error {
	ev, err := payloadAs[DeliveryStatusEvent](t.cmd.Payload, true)
	if err != nil {
		return err
	}
	provider := string(ev.Provider)
	t.provider = &provider
	t.payload = ev.auditPayload()

	if ev.IsLocationOnly() {
		return applyLocationPing(t, ev)
	}
	if !ev.ReportedStatus.IsValid() || ev.ReportedStatus == enums.DeliveryStatusPending {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported delivery status %q", ev.ReportedStatus)
	}

	o := t.order
	reported := ev.ReportedStatus
	t.reason = string(reported)

	if o.OrderStatus.IsTerminal() || o.DeliveryStatus.IsTerminal() {
		return applyTerminalDeliveryEvent(t, ev)
	}

	switch {
	case reported == enums.DeliveryStatusCancelled:
		t.recordDeliveryFields(ev)
		t.emit(enums.EventOrderDeliveryStatusChanged)
		t.cancelOrder(enums.CancelledByDeliveryPartner)
		return nil
	case reported == o.DeliveryStatus:
		t.drop(DropDuplicate)
		return nil
	case !o.DeliveryStatus.Before(reported):
		t.drop(DropStale)
		return nil
	}

	o.DeliveryStatus = reported
	t.recordDeliveryFields(ev)
	t.emit(enums.EventOrderDeliveryStatusChanged)
	if reported == enums.DeliveryStatusDelivered {
		t.completeOrder()
	}
	return nil
}

// applyTerminalDeliveryEvent handles partner events for an order that already
// reached delivered or cancelled. A partner cancellation stamped at or after
// the recorded delivery supersedes the completion; everything else is dropped.
func applyTerminalDeliveryEvent(t *transition, ev DeliveryStatusEvent) error {
	o := t.order
	reported := ev.ReportedStatus
	switch {
	case reported == o.DeliveryStatus:
		t.drop(DropDuplicate)
	case reported == enums.DeliveryStatusCancelled &&
		o.OrderStatus == enums.OrderStatusCompleted &&
		o.RefundStatus != enums.RefundStatusSettled &&
		!t.predatesDelivery(ev):
		t.superseded = true
		t.recordDeliveryFields(ev)
		t.emit(enums.EventOrderDeliveryStatusChanged)
		t.cancelOrder(enums.CancelledByDeliveryPartner)
	case reported == enums.DeliveryStatusDelivered || reported == enums.DeliveryStatusCancelled:
		t.drop(DropTerminalConflict)
	default:
		t.drop(DropStale)
	}
	return nil
}

// predatesDelivery reports whether ev happened before the delivery event the
// order recorded.
func (t *transition) predatesDelivery(ev DeliveryStatusEvent) bool {
	recorded := t.order.DeliveryEventAt
	if recorded == nil {
		return false
	}
	ts := ev.EventTimestamp
	if ts.IsZero() {
		ts = t.now
	}
	return ts.Before(*recorded)
}

func (t *transition) completeOrder() {
	o := t.order
	o.OrderStatus = enums.OrderStatusCompleted
	o.DeliveredAt = &t.now
	o.CompletedAt = &t.now
	t.emit(enums.EventOrderCompleted)
	if o.PaymentMethod == enums.PaymentMethodPayOnDelivery && o.PaymentStatus == enums.PaymentStatusPending {
		o.PaymentStatus = enums.PaymentStatusCaptured
		t.emit(enums.EventOrderPaymentUpdated)
	}
}

func (t *transition) recordDeliveryFields(ev DeliveryStatusEvent) {
	o := t.order
	t.recordLocation(ev)
	if ev.PickupETAMinutes != nil {
		o.PickupETAMinutes = ev.PickupETAMinutes
	}
	if ev.DropETAMinutes != nil {
		o.DropETAMinutes = ev.DropETAMinutes
	}
	if len(ev.ReturnSKUs) > 0 {
		o.ReturnSKUs = append(o.ReturnSKUs[:0:0], ev.ReturnSKUs...)
	}
	ts := ev.EventTimestamp
	if ts.IsZero() {
		ts = t.now
	}
	o.DeliveryEventAt = &ts
}

func (t *transition) recordLocation(ev DeliveryStatusEvent) {
	if !ev.HasLocation() {
		return
	}
	o := t.order
	ts := ev.EventTimestamp
	if ts.IsZero() {
		ts = t.now
	}
	if o.RiderLocationUpdatedAt != nil && ts.Before(*o.RiderLocationUpdatedAt) {
		return
	}
	o.RiderLatitude = ev.RiderLatitude
	o.RiderLongitude = ev.RiderLongitude
	o.RiderLocationAccuracy = ev.RiderLocationAccuracy
	o.RiderLocationUpdatedAt = &ts
}

// applyLocationPing stores the newest known rider position. Pings never touch
// delivery_status and are not audited.
func applyLocationPing(t *transition, ev DeliveryStatusEvent) error {
	t.skipAudit = true
	o := t.order
	if o.OrderStatus.IsTerminal() {
		t.drop(DropOrderTerminal)
		return nil
	}
	if !ev.HasLocation() && ev.PickupETAMinutes == nil && ev.DropETAMinutes == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "location ping carries no location or eta")
	}
	ts := ev.EventTimestamp
	if ts.IsZero() {
		ts = t.now
	}
	if o.RiderLocationUpdatedAt != nil && !ts.After(*o.RiderLocationUpdatedAt) {
		t.drop(DropStaleLocation)
		return nil
	}
	if ev.HasLocation() {
		o.RiderLatitude = ev.RiderLatitude
		o.RiderLongitude = ev.RiderLongitude
		o.RiderLocationAccuracy = ev.RiderLocationAccuracy
	}
	if ev.PickupETAMinutes != nil {
		o.PickupETAMinutes = ev.PickupETAMinutes
	}
	if ev.DropETAMinutes != nil {
		o.DropETAMinutes = ev.DropETAMinutes
	}
	o.RiderLocationUpdatedAt = &ts
	return nil
}

func applyPaymentEvent(t *transition) error {
	p, err := payloadAs[PaymentEventPayload](t.cmd.Payload, true)
	if err != nil {
		return err
	}
	if !p.Result.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment result %q", p.Result)
	}
	t.payload = marshalAudit(p)
	t.reason = string(p.Result)
	o := t.order
	ref := strings.TrimSpace(p.GatewayReference)

	switch p.Result {
	case enums.PaymentResultCaptured:
		switch o.PaymentStatus {
		case enums.PaymentStatusCaptured:
			t.drop(DropDuplicate)
			return nil
		case enums.PaymentStatusRefunded:
			t.drop(DropStale)
			return nil
		}
		o.PaymentStatus = enums.PaymentStatusCaptured
		if ref != "" {
			o.PaymentGatewayReference = &ref
		}
		t.emit(enums.EventOrderPaymentUpdated)
		if o.OrderStatus == enums.OrderStatusCancelled {
			t.openRefund()
		}
	case enums.PaymentResultFailed:
		switch o.PaymentStatus {
		case enums.PaymentStatusFailed:
			t.drop(DropDuplicate)
			return nil
		case enums.PaymentStatusCaptured, enums.PaymentStatusRefunded:
			t.drop(DropStale)
			return nil
		}
		o.PaymentStatus = enums.PaymentStatusFailed
		t.emit(enums.EventOrderPaymentUpdated)
	case enums.PaymentResultRefunded:
		if o.PaymentStatus == enums.PaymentStatusRefunded {
			t.drop(DropDuplicate)
			return nil
		}
		if o.PaymentStatus != enums.PaymentStatusCaptured {
			t.drop(DropNotCaptured)
			return nil
		}
		o.PaymentStatus = enums.PaymentStatusRefunded
		if ref != "" {
			o.RefundGatewayReference = &ref
		}
		t.emit(enums.EventOrderPaymentUpdated)
	default:
		t.drop(DropNonFinalPayment)
	}
	return nil
}

func applySettleRefund(t *transition) error {
	p, err := payloadAs[SettleRefundPayload](t.cmd.Payload, true)
	if err != nil {
		return err
	}
	if p.CustomerAmount.IsNegative() || p.VendorPayoutAmount.IsNegative() || p.DeliveryCharges.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement amounts must be non-negative")
	}
	o := t.order
	total := p.Total()
	if total.Sub(o.TotalAmount).Abs().GreaterThan(t.cfg.RefundTolerance) {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement split must add up to the charged amount").
			WithDetails(map[string]any{
				"charged_amount": o.TotalAmount.StringFixed(2),
				"split_total":    total.StringFixed(2),
				"tolerance":      t.cfg.RefundTolerance.String(),
			})
	}

	o.RefundSettledCustomerAmount = decimal.NewNullDecimal(p.CustomerAmount)
	o.RefundSettledVendorPayoutAmount = decimal.NewNullDecimal(p.VendorPayoutAmount)
	o.RefundSettledDeliveryCharges = decimal.NewNullDecimal(p.DeliveryCharges)
	o.RefundNoteToCustomer = optionalString(p.NoteToCustomer)
	o.RefundNoteToVendor = optionalString(p.NoteToVendor)
	o.RefundNoteToDeliveryPartner = optionalString(p.NoteToDeliveryPartner)
	settledBy := p.SettledBy
	if settledBy == nil {
		settledBy = t.cmd.ActorUserID
	}
	o.RefundSettledBy = settledBy
	o.RefundSettledAt = &t.now
	o.RefundStatus = enums.RefundStatusSettled
	t.payload = marshalAudit(p)
	t.emit(enums.EventOrderRefundSettled)
	return nil
}

func applyMarkForRefund(t *transition) error {
	o := t.order
	o.RefundStatus = enums.RefundStatusPending
	o.MarkedForRefundAt = &t.now
	t.emit(enums.EventOrderRefundPending)
	return nil
}

func applyRate(t *transition) error {
	p, err := payloadAs[RatePayload](t.cmd.Payload, true)
	if err != nil {
		return err
	}
	if p.Rating < 1 || p.Rating > 5 {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	o := t.order
	rating := p.Rating
	o.CustomerRating = &rating
	o.CustomerReview = optionalString(p.Review)
	o.RatedAt = &t.now
	t.emit(enums.EventOrderRated)
	return nil
}

func applyRecordDispatch(t *transition) error {
	p, err := payloadAs[RecordDispatchPayload](t.cmd.Payload, true)
	if err != nil {
		return err
	}
	t.payload = marshalAudit(p)
	o := t.order
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	if p.Failed {
		if o.DispatchStatus == enums.DispatchStatusDispatched {
			t.drop(DropAlreadyHandled)
			return nil
		}
		o.DispatchStatus = enums.DispatchStatusFailed
		o.DispatchAttempts += attempts
		o.LastDispatchError = optionalString(p.Error)
		t.reason = p.Error
		t.emit(enums.EventOrderDispatchFailed)
		return nil
	}

	id := strings.TrimSpace(p.DeliveryOrderID)
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery order id required")
	}
	if o.DispatchStatus == enums.DispatchStatusDispatched && o.DeliveryOrderID != nil && *o.DeliveryOrderID == id {
		t.drop(DropDuplicate)
		return nil
	}
	o.DeliveryOrderID = &id
	o.DispatchStatus = enums.DispatchStatusDispatched
	o.DispatchAttempts += attempts
	o.LastDispatchError = nil
	if o.OrderStatus == enums.OrderStatusCancelled {
		t.compensate = true
	}
	t.emit(enums.EventOrderDispatched)
	return nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func marshalAudit(v any) json.RawMessage {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return buf
}

func (e DeliveryStatusEvent) auditPayload() json.RawMessage {
	if len(e.Raw) > 0 && json.Valid(e.Raw) {
		return e.Raw
	}
	copyEvent := e
	copyEvent.Raw = nil
	return marshalAudit(copyEvent)
}
