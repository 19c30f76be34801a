// Package fleet dispatches orders to the in-house rider fleet over Pub/Sub and
// normalizes the rider app's callbacks.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
)

const (
	CommandDispatch = "dispatch"
	CommandCancel   = "cancel"

	attrCommand = "command"
)

var statusMap = map[string]enums.DeliveryStatus{
	"ALLOTTED":                  enums.DeliveryStatusAllotted,
	"ARRIVED":                   enums.DeliveryStatusArrived,
	"DISPATCHED":                enums.DeliveryStatusDispatched,
	"ARRIVED_CUSTOMER_DOORSTEP": enums.DeliveryStatusArrivedAtDoorstep,
	"DELIVERED":                 enums.DeliveryStatusDelivered,
	"CANCELLED":                 enums.DeliveryStatusCancelled,
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type gcpPublisher struct {
	publisher *gcppubsub.Publisher
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.publisher.Publish(ctx, msg)
}

// Provider books jobs with the rider fleet by publishing dispatch commands.
type Provider struct {
	publisher publisher
	now       func() time.Time
}

var _ delivery.Provider = (*Provider)(nil)

// New wraps the fleet dispatch topic publisher.
func New(p *gcppubsub.Publisher) (*Provider, error) {
	if p == nil {
		return nil, errors.New("fleet dispatch publisher is required")
	}
	p.EnableMessageOrdering = true
	return newWithPublisher(&gcpPublisher{publisher: p}, time.Now), nil
}

func newWithPublisher(p publisher, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{publisher: p, now: now}
}

func (p *Provider) Service() enums.DeliveryService {
	return enums.DeliveryServiceFleet
}

// Command is the message the fleet service consumes.
type Command struct {
	Command       string          `json:"command"`
	OrderID       uuid.UUID       `json:"order_id"`
	VendorID      uuid.UUID       `json:"vendor_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CollectAmount string          `json:"collect_amount,omitempty"`
	Pickup        *Pickup         `json:"pickup,omitempty"`
	Items         []CommandItem   `json:"items,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type Pickup struct {
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type CommandItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// DispatchOrder publishes a dispatch command. The fleet keys jobs by our
// order id, so that is the delivery order id.
func (p *Provider) DispatchOrder(ctx context.Context, req delivery.DispatchRequest) (*delivery.DispatchReceipt, error) {
	order := req.Order
	if order == nil {
		return nil, retry.Permanent(pkgerrors.New(pkgerrors.CodeValidation, "order is required"))
	}
	cmd := Command{
		Command:       CommandDispatch,
		OrderID:       order.ID,
		VendorID:      order.VendorID,
		CustomerID:    order.CustomerID,
		PaymentMethod: string(order.PaymentMethod),
		IssuedAt:      p.now().UTC(),
	}
	if order.PaymentMethod.CollectsCash() {
		cmd.CollectAmount = order.TotalAmount.StringFixed(2)
	}
	if v := req.Vendor; v != nil {
		cmd.Pickup = &Pickup{Name: v.Name, Latitude: v.Latitude, Longitude: v.Longitude}
		if v.Address != nil {
			cmd.Pickup.Address = *v.Address
		}
	}
	for _, item := range order.Items {
		cmd.Items = append(cmd.Items, CommandItem{Name: item.Name, Quantity: item.Quantity})
	}

	if err := p.publish(ctx, cmd); err != nil {
		return nil, err
	}
	return &delivery.DispatchReceipt{DeliveryOrderID: order.ID.String()}, nil
}

// CancelAtProvider publishes a cancel command for the order's job.
func (p *Provider) CancelAtProvider(ctx context.Context, order *models.Order, reason string) error {
	if order == nil {
		return retry.Permanent(pkgerrors.New(pkgerrors.CodeValidation, "order is required"))
	}
	return p.publish(ctx, Command{
		Command:    CommandCancel,
		OrderID:    order.ID,
		VendorID:   order.VendorID,
		CustomerID: order.CustomerID,
		Reason:     reason,
		IssuedAt:   p.now().UTC(),
	})
}

func (p *Provider) publish(ctx context.Context, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return retry.Permanent(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal fleet command"))
	}
	msg := &gcppubsub.Message{
		Data:        data,
		OrderingKey: cmd.OrderID.String(),
		Attributes: map[string]string{
			attrCommand: cmd.Command,
			"order_id":  cmd.OrderID.String(),
		},
	}
	if _, err := p.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish fleet command")
	}
	return nil
}

// callback is the rider app's status or location payload. Location pings
// carry no order_status.
type callback struct {
	OrderID          string   `json:"order_id"`
	EventID          string   `json:"event_id"`
	OrderStatus      string   `json:"order_status"`
	Time             string   `json:"time"`
	RiderLatitude    *float64 `json:"rider_latitude"`
	RiderLongitude   *float64 `json:"rider_longitude"`
	LocationAccuracy *float64 `json:"location_accuracy"`
	PickupETA        *int     `json:"pickup_eta"`
	DropETA          *int     `json:"drop_eta"`
	ReturnSKUs       []string `json:"return_skus"`
}

// NormalizeEvent maps a rider app callback onto the canonical delivery event.
func (p *Provider) NormalizeEvent(_ context.Context, kind delivery.EventKind, body []byte) (*orders.DeliveryStatusEvent, error) {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fleet callback payload")
	}
	orderID := strings.TrimSpace(cb.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fleet callback missing order_id")
	}

	evt := &orders.DeliveryStatusEvent{
		Provider:              enums.DeliveryServiceFleet,
		DeliveryOrderID:       orderID,
		ClientOrderID:         orderID,
		EventID:               strings.TrimSpace(cb.EventID),
		RiderLatitude:         cb.RiderLatitude,
		RiderLongitude:        cb.RiderLongitude,
		RiderLocationAccuracy: cb.LocationAccuracy,
		PickupETAMinutes:      cb.PickupETA,
		DropETAMinutes:        cb.DropETA,
		ReturnSKUs:            cb.ReturnSKUs,
		Raw:                   json.RawMessage(append([]byte(nil), body...)),
	}
	if kind == delivery.EventKindStatus {
		status, ok := statusMap[strings.ToUpper(strings.TrimSpace(cb.OrderStatus))]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported fleet status %q", cb.OrderStatus)
		}
		evt.ReportedStatus = status
	}

	evt.EventTimestamp = p.now().UTC()
	if raw := strings.TrimSpace(cb.Time); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid fleet time")
		}
		evt.EventTimestamp = ts.UTC()
	}
	return evt, nil
}
