package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

type stubPublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (s *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	s.messages = append(s.messages, msg)
	return stubResult{err: s.err}
}

type stubResult struct {
	err error
}

func (r stubResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "msg-1", nil
}

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestProvider(pub *stubPublisher) *Provider {
	return newWithPublisher(pub, func() time.Time { return fixedNow })
}

func podOrder() *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		VendorID:        uuid.New(),
		CustomerID:      uuid.New(),
		PaymentMethod:   enums.PaymentMethodPayOnDelivery,
		DeliveryService: enums.DeliveryServiceFleet,
		TotalAmount:     decimal.RequireFromString("175"),
		Items:           []models.OrderLineItem{{Name: "Idli", Quantity: 3}},
	}
}

func TestDispatchPublishesCommand(t *testing.T) {
	pub := &stubPublisher{}
	p := newTestProvider(pub)
	order := podOrder()

	receipt, err := p.DispatchOrder(context.Background(), delivery.DispatchRequest{
		Order:  order,
		Vendor: &models.Vendor{Name: "Idli House"},
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), receipt.DeliveryOrderID)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, order.ID.String(), msg.OrderingKey)
	assert.Equal(t, CommandDispatch, msg.Attributes["command"])

	var cmd Command
	require.NoError(t, json.Unmarshal(msg.Data, &cmd))
	assert.Equal(t, order.ID, cmd.OrderID)
	assert.Equal(t, "175.00", cmd.CollectAmount)
	require.NotNil(t, cmd.Pickup)
	assert.Equal(t, "Idli House", cmd.Pickup.Name)
	assert.Equal(t, []CommandItem{{Name: "Idli", Quantity: 3}}, cmd.Items)
	assert.Equal(t, fixedNow, cmd.IssuedAt)
}

func TestDispatchPublishFailureIsDependencyError(t *testing.T) {
	p := newTestProvider(&stubPublisher{err: errors.New("unavailable")})

	_, err := p.DispatchOrder(context.Background(), delivery.DispatchRequest{Order: podOrder()})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestCancelPublishesCommand(t *testing.T) {
	pub := &stubPublisher{}
	p := newTestProvider(pub)
	order := podOrder()

	require.NoError(t, p.CancelAtProvider(context.Background(), order, "vendor rejected"))
	require.Len(t, pub.messages, 1)

	var cmd Command
	require.NoError(t, json.Unmarshal(pub.messages[0].Data, &cmd))
	assert.Equal(t, CommandCancel, cmd.Command)
	assert.Equal(t, "vendor rejected", cmd.Reason)
}

func TestNormalizeFleetStatus(t *testing.T) {
	p := newTestProvider(&stubPublisher{})
	orderID := uuid.New().String()

	evt, err := p.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(`{
		"order_id": "`+orderID+`",
		"event_id": "evt-42",
		"order_status": "DISPATCHED",
		"rider_latitude": 12.9,
		"rider_longitude": 77.6,
		"pickup_eta": 0,
		"drop_eta": 14,
		"time": "2026-03-02T12:10:00+05:30"
	}`))
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDispatched, evt.ReportedStatus)
	assert.Equal(t, orderID, evt.DeliveryOrderID)
	assert.Equal(t, "fleet:evt-42", evt.DedupeKey())
	assert.Equal(t, time.Date(2026, 3, 2, 6, 40, 0, 0, time.UTC), evt.EventTimestamp)
	require.NotNil(t, evt.RiderLatitude)
	assert.Equal(t, 12.9, *evt.RiderLatitude)
	require.NotNil(t, evt.DropETAMinutes)
	assert.Equal(t, 14, *evt.DropETAMinutes)
}

func TestNormalizeFleetStatusSet(t *testing.T) {
	p := newTestProvider(&stubPublisher{})
	cases := map[string]enums.DeliveryStatus{
		"ALLOTTED":                  enums.DeliveryStatusAllotted,
		"ARRIVED":                   enums.DeliveryStatusArrived,
		"DISPATCHED":                enums.DeliveryStatusDispatched,
		"ARRIVED_CUSTOMER_DOORSTEP": enums.DeliveryStatusArrivedAtDoorstep,
		"DELIVERED":                 enums.DeliveryStatusDelivered,
		"CANCELLED":                 enums.DeliveryStatusCancelled,
	}
	for status, want := range cases {
		t.Run(status, func(t *testing.T) {
			body := `{"order_id":"abc","order_status":"` + status + `","return_skus":["sku-1"]}`
			evt, err := p.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, want, evt.ReportedStatus)
			assert.Equal(t, []string{"sku-1"}, evt.ReturnSKUs)
		})
	}
}

func TestNormalizeFleetLocationPing(t *testing.T) {
	p := newTestProvider(&stubPublisher{})

	evt, err := p.NormalizeEvent(context.Background(), delivery.EventKindLocation, []byte(`{
		"order_id": "abc",
		"rider_latitude": 12.9,
		"rider_longitude": 77.6,
		"location_accuracy": 5,
		"pickup_eta": 3,
		"drop_eta": 11,
		"time": "2026-03-01T10:00:00Z"
	}`))
	require.NoError(t, err)
	assert.True(t, evt.IsLocationOnly())
	require.True(t, evt.HasLocation())
	assert.Equal(t, 77.6, *evt.RiderLongitude)
	require.NotNil(t, evt.RiderLocationAccuracy)
	assert.Equal(t, 5.0, *evt.RiderLocationAccuracy)
	require.NotNil(t, evt.PickupETAMinutes)
	assert.Equal(t, 3, *evt.PickupETAMinutes)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), evt.EventTimestamp)
}

func TestNormalizeFleetWithoutTimeUsesClock(t *testing.T) {
	p := newTestProvider(&stubPublisher{})

	evt, err := p.NormalizeEvent(context.Background(), delivery.EventKindLocation, []byte(`{"order_id":"abc","rider_latitude":12.9,"rider_longitude":77.6}`))
	require.NoError(t, err)
	assert.Equal(t, fixedNow, evt.EventTimestamp)
}

func TestNormalizeFleetRejectsBadCallbacks(t *testing.T) {
	p := newTestProvider(&stubPublisher{})
	bodies := map[string]string{
		"unknown status": `{"order_id":"abc","order_status":"TELEPORTED"}`,
		"missing status": `{"order_id":"abc","rider_latitude":12.9}`,
		"missing order":  `{"order_status":"DELIVERED"}`,
		"bad time":       `{"order_id":"abc","order_status":"DELIVERED","time":"yesterday"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := p.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(body))
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}
